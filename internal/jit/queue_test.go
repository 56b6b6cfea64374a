package jit

import (
	"testing"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func lora(target counter.Counter, sf uint32) radio.TXPacket {
	return radio.TXPacket{
		Mode:          radio.TXModeTimestamped,
		TargetCountUS: target,
		Modulation:    radio.ModulationLoRa,
		Bandwidth:     radio.Bandwidth125kHz,
		DataRate:      sf,
		CodeRate:      radio.CodeRate4_5,
		Payload:       []byte{0xAA, 0xBB},
	}
}

func TestEnqueueTooLate(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	pkt := lora(now+500, 9) // well under MinLeadUS
	assert.Equal(t, TooLate, q.Enqueue(now, pkt, DownlinkA))
	assert.Equal(t, 0, q.Len())
}

func TestEnqueueTooEarly(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	pkt := lora(now+DefaultMaxLeadUS+1_000_000, 9)
	assert.Equal(t, TooEarly, q.Enqueue(now, pkt, DownlinkA))
	assert.Equal(t, 0, q.Len())
}

func TestEnqueueOnTimeAccepted(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	pkt := lora(2_000_000, 9)
	require.Equal(t, OK, q.Enqueue(now, pkt, DownlinkA))
	require.Equal(t, 1, q.Len())

	idx, ok := q.Peek(2_000_000 - DefaultDispatchLeadUS)
	require.True(t, ok)
	entry, ok := q.EntryAt(idx)
	require.True(t, ok)
	assert.Equal(t, counter.Counter(2_000_000), entry.Target)
}

func TestCollisionRejectsAndLeavesQueueUnchanged(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	first := lora(2_000_000, 9)
	require.Equal(t, OK, q.Enqueue(now, first, DownlinkA))

	// Same modulation/SF: the TOA windows will overlap heavily for any
	// nearby target.
	second := lora(2_000_050, 9)
	result := q.Enqueue(now, second, DownlinkA)
	assert.Equal(t, CollisionPacket, result)
	assert.Equal(t, 1, q.Len())

	entries := q.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, counter.Counter(2_000_000), entries[0].Target)
}

func TestBeaconCollisionReportsCollisionBeacon(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	beacon := lora(2_000_000, 9)
	require.Equal(t, OK, q.Enqueue(now, beacon, Beacon))

	downlink := lora(2_000_010, 9)
	assert.Equal(t, CollisionBeacon, q.Enqueue(now, downlink, DownlinkA))
}

func TestImmediateRequiresEmptyQueue(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	scheduled := lora(2_000_000, 9)
	require.Equal(t, OK, q.Enqueue(now, scheduled, DownlinkA))

	immediate := radio.TXPacket{
		Mode:       radio.TXModeImmediate,
		Modulation: radio.ModulationLoRa,
		Bandwidth:  radio.Bandwidth125kHz,
		DataRate:   9,
		CodeRate:   radio.CodeRate4_5,
		Payload:    []byte{0x01},
	}
	assert.Equal(t, CollisionPacket, q.Enqueue(now, immediate, DownlinkC))
}

// TestOrderingInvariant is spec.md §8's JIT-ordering property: after any
// sequence of enqueues, resident entries are strictly ordered by target
// counter under wrap-safe comparison.
func TestOrderingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := NewQueue()
		now := counter.Counter(rapid.Uint32().Draw(t, "now"))

		n := rapid.IntRange(0, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			spacing := int32(rapid.IntRange(0, 500_000).Draw(t, "spacing"))
			target := counter.Add(now, q.minLeadUS+10_000+spacing*int32(i+1))
			pkt := lora(target, uint32(rapid.IntRange(7, 12).Draw(t, "sf")))
			q.Enqueue(now, pkt, DownlinkA)
		}

		entries := q.Snapshot()
		for i := 1; i < len(entries); i++ {
			assert.False(t, counter.Less(entries[i].Target, entries[i-1].Target),
				"entries out of order at %d: %d before %d", i, entries[i-1].Target, entries[i].Target)
		}
	})
}

// TestCollisionFreedomInvariant is spec.md §8's collision-freedom property:
// for every pair of resident entries on the same chain, their TX windows
// never overlap.
func TestCollisionFreedomInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := NewQueue()
		now := counter.Counter(rapid.Uint32().Draw(t, "now"))

		n := rapid.IntRange(0, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			delta := int32(rapid.IntRange(int(q.minLeadUS), int(q.maxLeadUS)).Draw(t, "delta"))
			target := counter.Add(now, delta)
			pkt := lora(target, uint32(rapid.IntRange(7, 12).Draw(t, "sf")))
			typ := DownlinkA
			if rapid.Bool().Draw(t, "beacon") {
				typ = Beacon
			}
			q.Enqueue(now, pkt, typ)
		}

		entries := q.Snapshot()
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				overlap := windowsIntersect(entries[i].PreTOA, entries[i].WindowEnd, entries[j].PreTOA, entries[j].WindowEnd)
				assert.False(t, overlap, "entries %d and %d have overlapping windows", i, j)
			}
		}
	})
}

func TestDequeuePreservesOrder(t *testing.T) {
	q := NewQueue()
	now := counter.Counter(1_000_000)
	for i := 0; i < 3; i++ {
		target := counter.Add(now, q.minLeadUS+10_000+int32(i)*200_000)
		pkt := lora(target, 7)
		require.Equal(t, OK, q.Enqueue(now, pkt, DownlinkA))
	}

	_, ok := q.Dequeue(1)
	require.True(t, ok)

	entries := q.Snapshot()
	require.Len(t, entries, 2)
	assert.True(t, counter.Less(entries[0].Target, entries[1].Target))
}
