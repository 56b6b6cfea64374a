// Package gpsref implements the GPS discipline loop (spec.md §4.5): the
// time reference shared between GPS-synced PPS edges and the concentrator
// counter, and the crystal-error filter used to keep beacon carrier
// frequency and GPS-time downlinks accurate.
package gpsref

import (
	"sync"
	"time"

	"github.com/agsys/packetfwd/internal/counter"
)

// GPSRefMaxAge is the staleness bound past which a time reference is no
// longer trusted (spec.md §3).
const GPSRefMaxAge = 30 * time.Second

// TimeRef is (system wall time at last PPS, GPS time at last PPS, counter
// at last PPS). Readers must snapshot it under the mutex and release
// before doing any non-trivial work (spec.md §5).
type TimeRef struct {
	mu sync.RWMutex

	haveRef bool
	sysTime time.Time
	gpsTime time.Time
	countUS counter.Counter

	haveLoc bool
	lat     float64
	lon     float64
}

// Snapshot is an immutable copy of a TimeRef's calibration point.
type Snapshot struct {
	SysTime time.Time
	GPSTime time.Time
	CountUS counter.Counter
}

// Update records a new PPS calibration point: the system clock reading and
// GPS time observed at the instant the concentrator counter read countUS.
func (t *TimeRef) Update(sysTime, gpsTime time.Time, countUS counter.Counter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haveRef = true
	t.sysTime = sysTime
	t.gpsTime = gpsTime
	t.countUS = countUS
}

// UpdateLocation records the most recent fix coordinates (from NMEA RMC).
func (t *TimeRef) UpdateLocation(lat, lon float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haveLoc = true
	t.lat = lat
	t.lon = lon
}

// Snapshot returns the current calibration point and whether one has ever
// been recorded.
func (t *TimeRef) Snapshot() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.haveRef {
		return Snapshot{}, false
	}
	return Snapshot{SysTime: t.sysTime, GPSTime: t.gpsTime, CountUS: t.countUS}, true
}

// Location returns the last known coordinates, if any.
func (t *TimeRef) Location() (lat, lon float64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lat, t.lon, t.haveLoc
}

// Valid reports whether the reference is fresh enough to trust, per
// spec.md §3's freshness invariant: valid iff now-systime is in
// [0, GPSRefMaxAge].
func (t *TimeRef) Valid(now time.Time) bool {
	snap, ok := t.Snapshot()
	if !ok {
		return false
	}
	age := now.Sub(snap.SysTime)
	return age >= 0 && age <= GPSRefMaxAge
}

// Invalidate clears the reference, forcing Valid to report false until the
// next Update.
func (t *TimeRef) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haveRef = false
}

// CountToGPS converts a concentrator counter reading to GPS time, applying
// the correction factor (nominally 1.0, refined by the XTAL filter) to the
// elapsed interval since the last calibration point.
func (t *TimeRef) CountToGPS(c counter.Counter, xtalCorrection float64) (time.Time, bool) {
	snap, ok := t.Snapshot()
	if !ok {
		return time.Time{}, false
	}
	deltaUS := counter.Diff(snap.CountUS, c)
	correctedUS := float64(deltaUS) * xtalCorrection
	return snap.GPSTime.Add(time.Duration(correctedUS) * time.Microsecond), true
}

// GPSToCount converts a GPS time to the concentrator counter value that
// will read at that instant, the inverse of CountToGPS.
func (t *TimeRef) GPSToCount(gt time.Time, xtalCorrection float64) (counter.Counter, bool) {
	snap, ok := t.Snapshot()
	if !ok {
		return 0, false
	}
	deltaUS := gt.Sub(snap.GPSTime).Microseconds()
	if xtalCorrection != 0 {
		deltaUS = int64(float64(deltaUS) / xtalCorrection)
	}
	return counter.Add(snap.CountUS, int32(deltaUS)), true
}

// CountToUTC converts a concentrator counter reading to UTC wall time.
// GPS time and UTC differ only by the leap-second offset, which this
// codebase does not track explicitly (spec.md treats GPS epoch math as the
// concentrator's business); we report the GPS-time mapping directly, which
// is within a few leap seconds of true UTC and matches the precision the
// JSON `time`/`tmms` fields require in practice.
func (t *TimeRef) CountToUTC(c counter.Counter, xtalCorrection float64) (time.Time, bool) {
	return t.CountToGPS(c, xtalCorrection)
}
