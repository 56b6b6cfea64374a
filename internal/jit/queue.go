// Package jit implements the per-RF-chain just-in-time transmit queue: an
// ordered, collision-free reservation of future transmissions (downlinks
// and beacons) enforced against a wrap-safe 32-bit concentrator counter.
package jit

import (
	"sort"
	"sync"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/radio"
)

// PacketType classifies a queued entry for tie-break and priority rules.
type PacketType int

const (
	DownlinkA PacketType = iota
	DownlinkB
	DownlinkC
	Beacon
)

// Result is the outcome of an Enqueue call (spec.md §4.1). The String forms
// of TooLate, TooEarly, CollisionPacket and CollisionBeacon are TX_ACK
// error tokens; Full and Invalid have no TX_ACK token of their own.
type Result int

const (
	OK Result = iota
	Full
	CollisionPacket
	CollisionBeacon
	TooLate
	TooEarly
	Invalid
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Full:
		return "FULL"
	case CollisionPacket:
		return "COLLISION_PACKET"
	case CollisionBeacon:
		return "COLLISION_BEACON"
	case TooLate:
		return "TOO_LATE"
	case TooEarly:
		return "TOO_EARLY"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Tuning parameters, in microseconds unless noted. NewQueue always uses
// these values; no constructor takes others.
const (
	DefaultCapacity       = 32
	DefaultBeaconLookhead = 8
	DefaultMinLeadUS      = 1500
	DefaultMaxLeadUS      = 3_000_000
	DefaultDispatchLeadUS = 10_000
	DefaultGuardUS        = 1_000
)

// Entry is a single reservation in the queue.
type Entry struct {
	Pkt        radio.TXPacket
	EnqueuedAt counter.Counter
	Type       PacketType
	Target     counter.Counter
	TOA        uint32
	PreTOA     counter.Counter // Target - TOA
	WindowEnd  counter.Counter // Target + TOA + guard
	seq        uint64
}

// Queue is a bounded, ordered, mutex-guarded container of Entry values for
// a single RF chain.
type Queue struct {
	mu sync.Mutex

	capacity       int
	beaconLookhead int
	minLeadUS      int32
	maxLeadUS      int32
	dispatchLeadUS int32
	guardUS        int32

	entries []*Entry
	nextSeq uint64
}

// NewQueue constructs a Queue with spec.md's default tuning parameters.
func NewQueue() *Queue {
	return &Queue{
		capacity:       DefaultCapacity,
		beaconLookhead: DefaultBeaconLookhead,
		minLeadUS:      DefaultMinLeadUS,
		maxLeadUS:      DefaultMaxLeadUS,
		dispatchLeadUS: DefaultDispatchLeadUS,
		guardUS:        DefaultGuardUS,
	}
}

// Len returns the number of resident entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue attempts to reserve pkt at its requested time. The queue is left
// completely unmodified on any non-OK result (spec.md §4.1 failure
// semantics).
func (q *Queue) Enqueue(now counter.Counter, pkt radio.TXPacket, typ PacketType) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	toa := radio.TimeOnAir(pkt)
	if toa == 0 || len(pkt.Payload) == 0 {
		return Invalid
	}

	immediate := typ != Beacon && pkt.Mode == radio.TXModeImmediate

	var target counter.Counter
	switch {
	case immediate:
		target = now
		if len(q.entries) > 0 {
			return CollisionPacket
		}
	default:
		target = pkt.TargetCountUS
		lead := counter.Diff(now, target) // target - now
		if lead < q.minLeadUS {
			return TooLate
		}
		if lead > q.maxLeadUS {
			return TooEarly
		}
	}

	preToa := counter.Add(target, -int32(toa))
	windowEnd := counter.Add(target, int32(toa)+q.guardUS)

	for _, e := range q.entries {
		if windowsIntersect(preToa, windowEnd, e.PreTOA, e.WindowEnd) {
			if typ == Beacon || e.Type == Beacon {
				return CollisionBeacon
			}
			return CollisionPacket
		}
	}

	if typ == Beacon {
		beacons := 0
		for _, e := range q.entries {
			if e.Type == Beacon {
				beacons++
			}
		}
		if beacons >= q.beaconLookhead {
			return Full
		}
	} else if len(q.entries) >= q.capacity {
		return Full
	}

	entry := &Entry{
		Pkt:        pkt,
		EnqueuedAt: now,
		Type:       typ,
		Target:     target,
		TOA:        toa,
		PreTOA:     preToa,
		WindowEnd:  windowEnd,
		seq:        q.nextSeq,
	}
	q.nextSeq++
	q.insertSorted(entry)
	return OK
}

// insertSorted inserts entry keeping q.entries ordered by ascending target
// counter (wrap-safe), with beacons preceding downlinks at equal targets and
// first-enqueued-wins among equals otherwise (spec.md §4.1 "Ordering &
// tie-breaks").
func (q *Queue) insertSorted(entry *Entry) {
	idx := sort.Search(len(q.entries), func(i int) bool {
		return entryLess(entry, q.entries[i])
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = entry
}

func entryLess(a, b *Entry) bool {
	if counter.Less(a.Target, b.Target) {
		return true
	}
	if counter.Less(b.Target, a.Target) {
		return false
	}
	aBeacon := a.Type == Beacon
	bBeacon := b.Type == Beacon
	if aBeacon != bBeacon {
		return aBeacon
	}
	return a.seq < b.seq
}

// windowsIntersect reports whether closed intervals [s1,e1] and [s2,e2]
// overlap under wrap-safe ordering.
func windowsIntersect(s1, e1, s2, e2 counter.Counter) bool {
	return !(counter.Less(e1, s2) || counter.Less(e2, s1))
}

// Peek returns the index of the earliest resident entry whose target is
// due within the dispatch lead time, per spec.md §4.1. If the earliest
// entry has already passed its target it is still returned — the caller
// (the JIT dispatcher) is responsible for evicting it and recording a
// failure.
func (q *Queue) Peek(now counter.Counter) (idx int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return 0, false
	}
	lead := counter.Diff(now, q.entries[0].Target)
	if lead <= q.dispatchLeadUS {
		return 0, true
	}
	return 0, false
}

// EntryAt returns a copy of the entry at idx, or false if idx is out of
// range. Intended for dispatchers that peeked an index and need its data
// before dequeuing.
func (q *Queue) EntryAt(idx int) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.entries) {
		return Entry{}, false
	}
	return *q.entries[idx], true
}

// Dequeue removes and returns the entry at idx, preserving the order of the
// rest.
func (q *Queue) Dequeue(idx int) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.entries) {
		return Entry{}, false
	}
	e := *q.entries[idx]
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return e, true
}

// Snapshot returns a copy of every resident entry, in order, for
// diagnostics (internal/monitor, internal/statslog).
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}
