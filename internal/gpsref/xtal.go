package gpsref

import "sync"

// XErrInitAvg and XErrFiltCoef are spec.md §4.5's tuning constants for the
// two-phase crystal-error estimator: a simple average over the first
// XErrInitAvg samples, then a first-order IIR with time constant
// XErrFiltCoef.
const (
	XErrInitAvg   = 16
	XErrFiltCoef  = 256
	initialCorrection = 1.0
)

// XtalState is the crystal-frequency-error correction factor, refined from
// GPS-derived samples and applied multiplicatively to beacon carrier
// frequency at dispatch time (spec.md §4.5, §4.4).
type XtalState struct {
	mu sync.RWMutex

	accumCount int
	accumSum   float64
	correction float64
	stable     bool
}

// NewXtalState returns a fresh, unstable correction state with a unity
// correction factor.
func NewXtalState() *XtalState {
	return &XtalState{correction: initialCorrection}
}

// Observe folds in one raw crystal-error sample (a ratio of actual to
// nominal elapsed counter ticks over a known GPS interval, centered on
// 1.0). During the initial averaging phase samples accumulate toward a
// simple mean; once XErrInitAvg samples have been seen the state becomes
// stable and subsequent samples are folded in via the IIR update
// `c <- c - c/K + (1/sample)/K`.
func (x *XtalState) Observe(raw float64) {
	if raw == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.accumCount < XErrInitAvg {
		x.accumSum += raw
		x.accumCount++
		if x.accumCount == XErrInitAvg {
			x.correction = float64(XErrInitAvg) / x.accumSum
			x.stable = true
		}
		return
	}

	x.correction = x.correction - x.correction/XErrFiltCoef + (1/raw)/XErrFiltCoef
}

// Correction returns the current correction factor and whether the filter
// has stabilized (seen at least XErrInitAvg samples since the last Reset).
func (x *XtalState) Correction() (factor float64, stable bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.correction, x.stable
}

// Reset clears the accumulator and returns the correction factor to unity,
// unstable — used when the GPS time reference goes stale (spec.md §4.5).
func (x *XtalState) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.accumCount = 0
	x.accumSum = 0
	x.correction = initialCorrection
	x.stable = false
}
