package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamSnapshotResets(t *testing.T) {
	var u Upstream
	u.AddReceived(true, false)
	u.AddReceived(false, true)
	u.AddForwarded(10)
	u.AddDatagram(true)
	u.AddDatagram(false)

	snap := u.Snapshot()
	assert.Equal(t, uint32(2), snap.Received)
	assert.Equal(t, uint32(1), snap.OK)
	assert.Equal(t, uint32(1), snap.Bad)
	assert.Equal(t, uint32(1), snap.Forwarded)
	assert.Equal(t, uint32(2), snap.Datagrams)
	assert.Equal(t, uint32(1), snap.Acks)
	assert.InDelta(t, 50.0, snap.AckRate(), 0.01)

	again := u.Snapshot()
	assert.Equal(t, uint32(0), again.Received)
}

func TestDownstreamRejectionBuckets(t *testing.T) {
	var d Downstream
	d.AddResponse(5, false, "TOO_LATE")
	d.AddResponse(5, false, "COLLISION_PACKET")
	d.AddResponse(5, true, "")

	snap := d.Snapshot()
	assert.Equal(t, uint32(1), snap.RejectTooLate)
	assert.Equal(t, uint32(1), snap.RejectCollision)
	assert.Equal(t, uint32(1), snap.TxOK)
	assert.Equal(t, uint32(2), snap.TxFail)
}

func TestDownstreamDispatchFailureCountsAsTxFail(t *testing.T) {
	var d Downstream
	d.AddResponse(5, true, "") // admitted into the JIT queue
	d.AddDispatchFailure()     // ...but the radio rejected it at send time

	snap := d.Snapshot()
	assert.Equal(t, uint32(1), snap.TxOK)
	assert.Equal(t, uint32(1), snap.TxFail)
}

func TestReportBufferSingleSlotConsume(t *testing.T) {
	var rb ReportBuffer
	_, ok := rb.Consume()
	assert.False(t, ok)

	rb.Publish([]byte(`{"rxnb":1}`))
	body, ok := rb.Consume()
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"rxnb":1}`), body)

	_, ok = rb.Consume()
	assert.False(t, ok)
}
