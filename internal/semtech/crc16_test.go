package semtech

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCRC16CanonicalVector(t *testing.T) {
	assert.Equal(t, uint16(0x31C3), CRC16([]byte("123456789")))
}

func TestCRC16Empty(t *testing.T) {
	assert.Equal(t, uint16(0), CRC16(nil))
}

func TestFormatFreqMHzRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hz := rapid.Uint32Range(100_000_000, 1_000_000_000).Draw(t, "hz")
		s := FormatFreqMHz(hz)
		got, err := ParseFreqMHz(s)
		require.NoError(t, err)
		assert.Equal(t, hz, got)
	})
}

func TestPayloadBase64RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 255).Draw(t, "n")
		payload := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "payload")
		enc := base64.StdEncoding.EncodeToString(payload)
		dec, err := base64.StdEncoding.DecodeString(enc)
		require.NoError(t, err)
		assert.Equal(t, payload, dec)
	})
}
