package semtech

import (
	"encoding/json"
	"fmt"

	"github.com/agsys/packetfwd/internal/jit"
)

// TX_ACK error tokens (spec.md §6), sent back to the server inside the
// txpk_ack.error field so it knows why a downlink was or wasn't scheduled.
const (
	TxAckNone            = "NONE"
	TxAckTooLate         = "TOO_LATE"
	TxAckTooEarly        = "TOO_EARLY"
	TxAckCollisionPacket = "COLLISION_PACKET"
	TxAckCollisionBeacon = "COLLISION_BEACON"
	TxAckTxFreq          = "TX_FREQ"
	TxAckTxPower         = "TX_POWER"
	TxAckGPSUnlocked     = "GPS_UNLOCKED"
	TxAckTxPowerWarn     = "TX_POWER"
)

// TokenForRejection maps a jit.Result to the TX_ACK error token the
// downstream activity must report (spec.md §6's error vocabulary). ok is
// false when the rejection has no corresponding vocabulary entry, in which
// case the caller must drop the PULL_RESP without sending any tx_ack, the
// same way the reference server drops a malformed one.
func TokenForRejection(r jit.Result) (token string, ok bool) {
	switch r {
	case jit.OK:
		return TxAckNone, true
	case jit.TooLate:
		return TxAckTooLate, true
	case jit.TooEarly:
		return TxAckTooEarly, true
	case jit.CollisionPacket:
		return TxAckCollisionPacket, true
	case jit.CollisionBeacon:
		return TxAckCollisionBeacon, true
	case jit.Full:
		// spec.md's TX_ACK vocabulary has no dedicated "queue full" token;
		// a full queue is a collision with the chain's own admitted work.
		return TxAckCollisionPacket, true
	default:
		return "", false
	}
}

// TxAckDetail is the inner txpk_ack object of a TX_ACK body. Error and
// Warn/Value are mutually exclusive per spec.md §6: a rejection reports
// error (+ optional text), a clamped-but-accepted transmission reports
// warn (+ the numeric value actually used).
type TxAckDetail struct {
	Error string `json:"error,omitempty"`
	Text  string `json:"text,omitempty"`
	Warn  string `json:"warn,omitempty"`
	Value *int8  `json:"value,omitempty"`
}

// TxAckBody is the full JSON body of a TX_ACK datagram.
type TxAckBody struct {
	TxpkAck TxAckDetail `json:"txpk_ack"`
}

// MarshalJSON encodes the TX_ACK body.
func (b TxAckBody) MarshalJSON() ([]byte, error) {
	type alias TxAckBody
	data, err := json.Marshal(alias(b))
	if err != nil {
		return nil, fmt.Errorf("semtech: marshal txack: %w", err)
	}
	return data, nil
}

// NewTxAckBody builds the body for a given error token, with an optional
// human-readable text field.
func NewTxAckBody(errToken, text string) TxAckBody {
	return TxAckBody{TxpkAck: TxAckDetail{Error: errToken, Text: text}}
}

// NewTxAckWarnBody builds the body for a warning ack: the downlink was
// scheduled, but warnToken+value record what was clamped to admit it.
func NewTxAckWarnBody(warnToken string, value int8) TxAckBody {
	return TxAckBody{TxpkAck: TxAckDetail{Warn: warnToken, Value: &value}}
}
