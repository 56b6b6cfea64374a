package gpsref

import (
	"math"
	"testing"
	"time"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestXtalConvergesForConstantInput is spec.md §8's XTAL IIR stability
// property: for a constant raw error e, after enough samples the
// correction converges to 1/e within epsilon.
func TestXtalConvergesForConstantInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := rapid.Float64Range(0.9995, 1.0005).Draw(t, "e")

		x := NewXtalState()
		const epsilon = 1e-6
		const maxSteps = XErrInitAvg + int(XErrFiltCoef*20)

		target := 1 / e
		converged := false
		for i := 0; i < maxSteps; i++ {
			x.Observe(e)
			c, stable := x.Correction()
			if stable && math.Abs(c-target) < epsilon {
				converged = true
				break
			}
		}
		assert.True(t, converged, "xtal correction did not converge to %f for input %f", target, e)
	})
}

func TestXtalResetReturnsToUnstableUnity(t *testing.T) {
	x := NewXtalState()
	for i := 0; i < XErrInitAvg; i++ {
		x.Observe(1.001)
	}
	_, stable := x.Correction()
	require.True(t, stable)

	x.Reset()
	c, stable := x.Correction()
	assert.False(t, stable)
	assert.Equal(t, 1.0, c)
}

// TestTimeRefFreshnessInvariant is spec.md §8's time-reference-freshness
// property: gps_ref_valid iff (now - systime) is in [0, GPSRefMaxAge].
func TestTimeRefFreshnessInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ref := &TimeRef{}
		base := time.Unix(1_700_000_000, 0)
		offsetMS := rapid.Int64Range(-5_000, int64(GPSRefMaxAge/time.Millisecond)+5_000).Draw(t, "offset_ms")

		ref.Update(base, base, counter.Counter(0))
		now := base.Add(time.Duration(offsetMS) * time.Millisecond)

		want := offsetMS >= 0 && time.Duration(offsetMS)*time.Millisecond <= GPSRefMaxAge
		assert.Equal(t, want, ref.Valid(now))
	})
}

func TestCountToGPSRoundTrip(t *testing.T) {
	ref := &TimeRef{}
	base := time.Unix(1_700_000_000, 0).UTC()
	ref.Update(base, base, counter.Counter(1_000_000))

	target, ok := ref.GPSToCount(base.Add(5*time.Second), 1.0)
	require.True(t, ok)

	got, ok := ref.CountToGPS(target, 1.0)
	require.True(t, ok)
	assert.WithinDuration(t, base.Add(5*time.Second), got, time.Microsecond)
}
