package gpsref

import (
	"context"
	"time"
)

// Validator is the validator activity (V): it watches the time reference
// for staleness and owns the XTAL correction's reset-on-stale behavior
// (spec.md §4.5). Crystal-error samples themselves arrive via Observe,
// called by the GPS reader each time a new PPS interval is measured.
type Validator struct {
	Ref  *TimeRef
	Xtal *XtalState
}

// NewValidator constructs a Validator wired to the given shared state.
func NewValidator(ref *TimeRef, xtal *XtalState) *Validator {
	return &Validator{Ref: ref, Xtal: xtal}
}

// Observe forwards a raw crystal-error sample to the XTAL filter.
func (v *Validator) Observe(raw float64) {
	v.Xtal.Observe(raw)
}

// Run ticks at 1Hz (spec.md §4.5) checking reference freshness; once the
// reference goes stale it invalidates both the time reference and the
// XTAL correction, exactly as spec.md requires.
func (v *Validator) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.tick()
		}
	}
}

func (v *Validator) tick() {
	if !v.Ref.Valid(time.Now()) {
		v.Ref.Invalidate()
		v.Xtal.Reset()
	}
}
