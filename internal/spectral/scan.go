// Package spectral implements the S activity (spec.md §4.6): an
// opportunistic background loop that scans otherwise-idle RF chains and
// records the resulting histograms, tagging each completed scan result with
// a fresh UUID.
package spectral

import (
	"context"
	"log"
	"time"

	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/google/uuid"
)

const scanTimeout = 2 * time.Second

// Config is the per-chain spectral scan parameters.
type Config struct {
	RFChain   uint8
	FreqStart uint32
	StepHz    uint32
	NbChan    uint32
	NbScan    uint32
	Pace      time.Duration
}

// Result is one completed scan, ready for a monitor/statslog consumer.
type Result struct {
	ScanID    uuid.UUID
	RFChain   uint8
	FreqHz    uint32
	Histogram []uint32
	At        time.Time
}

// Loop runs Config's scan cycle until ctx fires, publishing each
// completed Result to Results (buffered; scans block if the channel is
// full rather than drop data silently).
type Loop struct {
	GW      *gateway.Context
	Cfg     Config
	Results chan<- Result
}

// Run iterates freq_start, freq_start+step, ... nb_chan times, pacing
// each full sweep by Cfg.Pace.
func (l *Loop) Run(ctx context.Context) error {
	pace := l.Cfg.Pace
	if pace <= 0 {
		pace = 10 * time.Second
	}

	for {
		for i := uint32(0); i < l.Cfg.NbChan; i++ {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			freq := l.Cfg.FreqStart + i*l.Cfg.StepHz
			if res, ok := l.scanOne(ctx, freq); ok {
				select {
				case l.Results <- res:
				case <-ctx.Done():
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pace):
		}
	}
}

func (l *Loop) scanOne(ctx context.Context, freqHz uint32) (Result, bool) {
	var started bool
	err := l.GW.WithRadio(func(hal radio.HAL) error {
		status, err := hal.Status(l.Cfg.RFChain)
		if err != nil {
			return err
		}
		if status.TXInProgress || status.TXScheduled {
			return nil // chain busy, skip this round
		}
		if err := hal.SpectralScanStart(l.Cfg.RFChain, freqHz, l.Cfg.NbScan); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		log.Printf("spectral: start scan chain %d: %v", l.Cfg.RFChain, err)
		return Result{}, false
	}
	if !started {
		return Result{}, false
	}

	deadline := time.Now().Add(scanTimeout)
	for time.Now().Before(deadline) {
		var state radio.SpectralScanState
		l.GW.WithRadio(func(hal radio.HAL) error {
			s, err := hal.SpectralScanStatus(l.Cfg.RFChain)
			state = s
			return err
		})
		switch state {
		case radio.SpectralScanDone:
			var hist []uint32
			l.GW.WithRadio(func(hal radio.HAL) error {
				h, err := hal.SpectralScanResults(l.Cfg.RFChain)
				hist = h
				return err
			})
			return Result{
				ScanID:    uuid.New(),
				RFChain:   l.Cfg.RFChain,
				FreqHz:    freqHz,
				Histogram: hist,
				At:        time.Now(),
			}, true
		case radio.SpectralScanAborted:
			return Result{}, false
		}

		select {
		case <-ctx.Done():
			return Result{}, false
		case <-time.After(20 * time.Millisecond):
		}
	}
	l.GW.WithRadio(func(hal radio.HAL) error { return hal.SpectralScanAbort(l.Cfg.RFChain) })
	return Result{}, false
}
