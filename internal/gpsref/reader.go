package gpsref

import (
	"context"
	"log"
	"time"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/radio"
)

// MessageKind distinguishes the two decoded GPS message kinds this loop
// reacts to (spec.md §4.5).
type MessageKind int

const (
	MessageTimeGPS MessageKind = iota
	MessageRMC
)

// Message is a single decoded GPS message. The NMEA/UBX framing and parsing
// itself is an external collaborator (spec.md §1/§6); this package only
// consumes the decoded result.
type Message struct {
	Kind MessageKind

	// Valid when Kind == MessageTimeGPS.
	GPSTime time.Time

	// Valid when Kind == MessageRMC.
	Lat, Lon float64
}

// Decoder is the opaque NMEA/UBX decoder + PPS sync library this codebase
// consumes. Next blocks until a full message has been decoded from the GPS
// TTY stream, or ctx is done.
type Decoder interface {
	Next(ctx context.Context) (Message, error)
}

// walltimeSanityFloor is the "only if the computed GPS time is later than
// 2020-03-05" sanity gate spec.md §4.5 calls for, guarding against a cold
// GPS receiver's bogus pre-fix timestamps before it resetting the host
// clock.
var walltimeSanityFloor = time.Date(2020, time.March, 5, 0, 0, 0, 0, time.UTC)

// Reader is the GPS reader activity (G). It decodes the GPS stream,
// updates the shared TimeRef on every TIMEGPS message, and feeds raw
// crystal-error samples to a Validator.
type Reader struct {
	Decoder   Decoder
	HAL       radio.HAL
	Ref       *TimeRef
	Validator *Validator

	// SetWallClock, if non-nil, is called at most once to correct the
	// host clock when it drifts from GPS by more than 10s. Left nil in
	// tests and in deployments that manage system time some other way.
	SetWallClock func(time.Time) error

	walltimeWasSet bool
	havePrevPPS    bool
	prevGPSTime    time.Time
	prevCountUS    counter.Counter
}

// Run consumes decoded GPS messages until ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := r.Decoder.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		switch msg.Kind {
		case MessageTimeGPS:
			r.handleTimeGPS(msg.GPSTime)
		case MessageRMC:
			r.Ref.UpdateLocation(msg.Lat, msg.Lon)
		}
	}
}

func (r *Reader) handleTimeGPS(gpsTime time.Time) {
	countUS, err := r.HAL.GetTrigCnt()
	if err != nil {
		log.Printf("gpsref: failed to capture PPS counter: %v", err)
		return
	}
	sysNow := time.Now()

	r.Ref.Update(sysNow, gpsTime, countUS)
	if err := r.HAL.GPSSync(sysNow, gpsTime, countUS); err != nil {
		log.Printf("gpsref: HAL GPS sync failed: %v", err)
	}

	if r.havePrevPPS && r.Validator != nil {
		elapsedTicks := counter.Diff(r.prevCountUS, countUS)
		expectedTicks := gpsTime.Sub(r.prevGPSTime).Microseconds()
		if expectedTicks > 0 {
			raw := float64(elapsedTicks) / float64(expectedTicks)
			r.Validator.Observe(raw)
		}
	}
	r.havePrevPPS = true
	r.prevGPSTime = gpsTime
	r.prevCountUS = countUS

	r.maybeSetWallClock(sysNow, gpsTime)
}

func (r *Reader) maybeSetWallClock(sysNow, gpsTime time.Time) {
	if r.walltimeWasSet || r.SetWallClock == nil {
		return
	}
	if gpsTime.Before(walltimeSanityFloor) {
		return
	}
	drift := sysNow.Sub(gpsTime)
	if drift < 0 {
		drift = -drift
	}
	if drift <= 10*time.Second {
		return
	}
	if err := r.SetWallClock(gpsTime); err != nil {
		log.Printf("gpsref: failed to set system clock from GPS: %v", err)
		return
	}
	r.walltimeWasSet = true
}
