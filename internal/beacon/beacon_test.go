package beacon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannelRotationExample reproduces spec.md §8's worked beacon-rotation
// scenario verbatim.
func TestChannelRotationExample(t *testing.T) {
	const period, freqNb, step, base = 128, 8, 200000, 869525000

	idx, freq := Channel(1024, period, freqNb, step, base)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, uint32(869525000), freq)

	idx, freq = Channel(1152, period, freqNb, step, base)
	assert.Equal(t, uint32(1), idx)
	assert.Equal(t, uint32(869725000), freq)
}

func TestNextGPSSecondRoundsUpToPeriod(t *testing.T) {
	assert.Equal(t, uint32(128), NextGPSSecond(0, 128))
	assert.Equal(t, uint32(256), NextGPSSecond(128, 128))
	assert.Equal(t, uint32(256), NextGPSSecond(200, 128))
}

func TestPlanRefillReachesLookhead(t *testing.T) {
	p := NewPlan(128, 8, 200000, 869525000, 8)
	added := p.Refill(1000)
	require.Len(t, added, 8)
	require.Len(t, p.Pending(), 8)
	assert.Equal(t, uint32(1024), added[0])
	assert.Equal(t, uint32(1024+7*128), added[7])

	// A second refill with nothing dispatched should add nothing more.
	assert.Empty(t, p.Refill(1000))

	p.PopDispatched(1024)
	assert.Len(t, p.Pending(), 7)
	refilled := p.Refill(1000)
	require.Len(t, refilled, 1)
	assert.Equal(t, uint32(1024+8*128), refilled[0])
}

func TestBuildPayloadSizesPerSF(t *testing.T) {
	for sf, sizes := range rfuSizes {
		payload, err := BuildPayload(sf, 1024, true, 45.0, -122.0)
		require.NoError(t, err)
		wantLen := sizes[0] + 4 + 2 + 1 + 3 + 3 + sizes[1] + 2
		assert.Len(t, payload, wantLen)
	}
}

func TestBuildPayloadRejectsNonBeaconSF(t *testing.T) {
	_, err := BuildPayload(7, 1024, true, 0, 0)
	assert.Error(t, err)
}

func TestClampAngleSaturates(t *testing.T) {
	assert.Equal(t, int32(1<<23-1), clampAngle(90, 90))
	assert.Equal(t, int32(-(1 << 23)), clampAngle(-90, 90))
}
