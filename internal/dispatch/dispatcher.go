// Package dispatch implements the J activity (spec.md §2/§4.1): peek each
// RF chain's JIT queue against the current concentrator counter, hand due
// packets to the radio, and record the outcome.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/jit"
	"github.com/agsys/packetfwd/internal/radio"
)

const pollInterval = time.Millisecond

// Dispatcher runs the JIT dispatch loop for every configured RF chain.
type Dispatcher struct {
	GW *gateway.Context
}

// Run polls every chain's queue until ctx fires.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Dispatcher) tick() {
	var now counter.Counter
	err := d.GW.WithRadio(func(hal radio.HAL) error {
		c, err := hal.GetInstCnt()
		now = c
		return err
	})
	if err != nil {
		log.Printf("dispatch: get_instcnt: %v", err)
		return
	}

	for chain, q := range d.GW.JIT {
		d.dispatchOne(chain, q, now)
	}
}

func (d *Dispatcher) dispatchOne(chain uint8, q *jit.Queue, now counter.Counter) {
	idx, ok := q.Peek(now)
	if !ok {
		return
	}
	entry, ok := q.EntryAt(idx)
	if !ok {
		return
	}

	// A scheduled entry whose target time has already passed is dropped
	// unsent and recorded as a failure.
	if entry.Pkt.Mode != radio.TXModeImmediate && counter.Less(entry.Target, now) {
		q.Dequeue(idx)
		log.Printf("dispatch: chain %d entry missed its target, dropped", chain)
		if entry.Type == jit.Beacon {
			d.GW.Downstream.AddBeacon(false, false, true)
		} else {
			d.GW.Downstream.AddDispatchFailure()
		}
		return
	}

	// A beacon about to transmit takes priority over any in-progress
	// spectral scan on its chain (spec.md §4.6).
	if entry.Type == jit.Beacon {
		d.GW.WithRadio(func(hal radio.HAL) error {
			if state, _ := hal.SpectralScanStatus(chain); state == radio.SpectralScanRunning {
				hal.SpectralScanAbort(chain)
			}
			return nil
		})
	}

	pkt := entry.Pkt
	if entry.Type == jit.Beacon {
		if xf, stable := d.GW.Xtal.Correction(); stable {
			pkt.FreqHz = applyXtalCorrection(pkt.FreqHz, xf)
		}
	}

	err := d.GW.WithRadio(func(hal radio.HAL) error {
		return hal.Send(pkt)
	})

	q.Dequeue(idx)

	if err != nil {
		log.Printf("dispatch: chain %d send failed: %v", chain, err)
		if entry.Type == jit.Beacon {
			d.GW.Downstream.AddBeacon(false, false, true)
		} else {
			d.GW.Downstream.AddDispatchFailure()
		}
		return
	}
	if entry.Type == jit.Beacon {
		d.GW.Downstream.AddBeacon(false, true, false)
	}
}

// applyXtalCorrection trims a carrier frequency by the current XTAL
// correction factor, matching spec.md §4.5's "applied multiplicatively to
// beacon carrier frequency at dispatch time".
func applyXtalCorrection(freqHz uint32, factor float64) uint32 {
	return uint32(float64(freqHz) * factor)
}
