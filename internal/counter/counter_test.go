package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestLessBasic(t *testing.T) {
	tests := []struct {
		name string
		a, b Counter
		want bool
	}{
		{"equal", 100, 100, false},
		{"simple less", 100, 200, true},
		{"simple greater", 200, 100, false},
		{"wrap around zero, a before b", 0xFFFFFFF0, 0x00000010, true},
		{"wrap around zero, a after b", 0x00000010, 0xFFFFFFF0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Less(tt.a, tt.b))
		})
	}
}

// TestWrapShiftInvariance checks spec.md's "wrap-safety" property: ordering
// of any pair of counters is unaffected by adding the same offset to both,
// including offsets that carry the pair across the 0/2^32 boundary.
func TestWrapShiftInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Counter(rapid.Uint32().Draw(t, "a"))
		b := Counter(rapid.Uint32().Draw(t, "b"))
		shift := Counter(rapid.Uint32().Draw(t, "shift"))

		before := Less(a, b)
		after := Less(a+shift, b+shift)

		assert.Equal(t, before, after, "Less(%d,%d)=%v but Less(%d,%d)=%v after shifting by %d", a, b, before, a+shift, b+shift, after, shift)
	})
}

func TestLessIsStrictTotalOrderOnDistinctPairs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Counter(rapid.Uint32().Draw(t, "a"))
		b := Counter(rapid.Uint32().Draw(t, "b"))
		if a == b {
			return
		}
		// Exactly one direction holds for any distinct pair.
		assert.NotEqual(t, Less(a, b), Less(b, a))
	})
}
