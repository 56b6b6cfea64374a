// Package stats holds the per-window upstream/downstream counters
// (spec.md §3/§5) and the single-slot status-report handoff between the
// stats loop (producer) and the upstream pipeline (consumer).
package stats

import (
	"sync"
)

// Upstream is the U/J-mutated receive-side bucket. All fields reset to
// zero at the start of each stats window.
type Upstream struct {
	mu sync.Mutex

	Received  uint32
	OK        uint32
	Bad       uint32
	NoCRC     uint32
	Forwarded uint32
	Bytes     uint64
	Datagrams uint32
	Acks      uint32
}

// AddReceived records one received frame by its CRC outcome.
func (u *Upstream) AddReceived(crcOK, crcBad bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Received++
	switch {
	case crcOK:
		u.OK++
	case crcBad:
		u.Bad++
	default:
		u.NoCRC++
	}
}

// AddForwarded records one frame admitted into an outgoing rxpk list.
func (u *Upstream) AddForwarded(payloadBytes int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Forwarded++
	u.Bytes += uint64(payloadBytes)
}

// AddDatagram records one PUSH_DATA datagram sent, and whether it was
// acknowledged.
func (u *Upstream) AddDatagram(acked bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Datagrams++
	if acked {
		u.Acks++
	}
}

// Snapshot returns a copy of the current counters and resets them to
// zero, matching spec.md §5's "reader swaps-and-resets under the mutex"
// discipline.
func (u *Upstream) Snapshot() Upstream {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := Upstream{
		Received:  u.Received,
		OK:        u.OK,
		Bad:       u.Bad,
		NoCRC:     u.NoCRC,
		Forwarded: u.Forwarded,
		Bytes:     u.Bytes,
		Datagrams: u.Datagrams,
		Acks:      u.Acks,
	}
	*u = Upstream{}
	return snap
}

// AckRate returns the PUSH_DATA acknowledgment rate as a percentage.
func (u Upstream) AckRate() float32 {
	if u.Datagrams == 0 {
		return 100
	}
	return 100 * float32(u.Acks) / float32(u.Datagrams)
}

// Downstream is the D/J-mutated send-side bucket.
type Downstream struct {
	mu sync.Mutex

	PullsSent     uint32
	PullsAcked    uint32
	RespReceived  uint32
	Bytes         uint64
	TxOK          uint32
	TxFail        uint32
	RejectTooLate uint32
	RejectTooEarly uint32
	RejectCollision uint32
	RejectFreq    uint32
	BeaconsQueued uint32
	BeaconsSent   uint32
	BeaconsRejected uint32
}

// AddPull records one PULL_DATA heartbeat sent, and whether it was
// acknowledged.
func (d *Downstream) AddPull(acked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PullsSent++
	if acked {
		d.PullsAcked++
	}
}

// AddResponse records one PULL_RESP received and its eventual outcome.
func (d *Downstream) AddResponse(payloadBytes int, ok bool, rejectKind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.RespReceived++
	d.Bytes += uint64(payloadBytes)
	if ok {
		d.TxOK++
		return
	}
	d.TxFail++
	switch rejectKind {
	case "TOO_LATE":
		d.RejectTooLate++
	case "TOO_EARLY":
		d.RejectTooEarly++
	case "COLLISION_PACKET", "COLLISION_BEACON":
		d.RejectCollision++
	case "TX_FREQ":
		d.RejectFreq++
	}
}

// AddDispatchFailure records a non-beacon downlink that the JIT dispatcher
// handed to the radio but the radio rejected at send time, or dropped
// unsent because its target time had already passed (spec.md §4.1's
// dispatch-failure case, distinct from a JIT admission rejection).
func (d *Downstream) AddDispatchFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TxFail++
}

// AddBeacon records a beacon lifecycle event.
func (d *Downstream) AddBeacon(queued, sent, rejected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queued {
		d.BeaconsQueued++
	}
	if sent {
		d.BeaconsSent++
	}
	if rejected {
		d.BeaconsRejected++
	}
}

// Snapshot returns a copy of the current counters and resets them.
func (d *Downstream) Snapshot() Downstream {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := Downstream{
		PullsSent:       d.PullsSent,
		PullsAcked:      d.PullsAcked,
		RespReceived:    d.RespReceived,
		Bytes:           d.Bytes,
		TxOK:            d.TxOK,
		TxFail:          d.TxFail,
		RejectTooLate:   d.RejectTooLate,
		RejectTooEarly:  d.RejectTooEarly,
		RejectCollision: d.RejectCollision,
		RejectFreq:      d.RejectFreq,
		BeaconsQueued:   d.BeaconsQueued,
		BeaconsSent:     d.BeaconsSent,
		BeaconsRejected: d.BeaconsRejected,
	}
	*d = Downstream{}
	return snap
}

// ReportBuffer is the single-slot, flag-gated handoff spec.md §5 describes
// between the stats loop (producer, writes one report per window) and the
// upstream pipeline (consumer, merges it into the next rxpk datagram and
// clears the flag).
type ReportBuffer struct {
	mu    sync.Mutex
	ready bool
	body  []byte
}

// Publish stores a freshly rendered stat JSON body, marking it ready for
// the next upstream loop iteration to consume.
func (r *ReportBuffer) Publish(body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
	r.ready = true
}

// Consume returns the pending report body and clears the ready flag, or
// returns ok=false if nothing is pending.
func (r *ReportBuffer) Consume() (body []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return nil, false
	}
	r.ready = false
	body, r.body = r.body, nil
	return body, true
}
