// Package semtech implements the Semtech UDP gateway-to-server protocol
// wire format (spec.md §6): the 12-byte datagram header, the rxpk/stat/txpk
// JSON bodies, and the TX_ACK error/warning token vocabulary. It is
// generalized from this codebase's earlier device-protocol header
// (magic+version+type+UID+sequence), adapted to the server protocol's own
// fixed field layout.
package semtech

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// ProtocolVersion is the only version this codebase speaks.
const ProtocolVersion uint8 = 2

// Packet type codes (spec.md §6).
const (
	PushData uint8 = 0
	PushAck  uint8 = 1
	PullData uint8 = 2
	PullResp uint8 = 3
	PullAck  uint8 = 4
	TxAck    uint8 = 5
)

// HeaderSize is the fixed size of every datagram's header.
const HeaderSize = 12

// Header is the 12-byte header shared by every datagram:
// [ver(1), token(2), type(1), gateway_id(8, MSB-first)].
type Header struct {
	Version   uint8
	Token     [2]byte
	Type      uint8
	GatewayID [8]byte
}

// Encode serializes the header.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = h.Token[0]
	buf[2] = h.Token[1]
	buf[3] = h.Type
	copy(buf[4:12], h.GatewayID[:])
	return buf
}

// DecodeHeader parses a header from the front of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("semtech: header too short: %d bytes", len(data))
	}
	var h Header
	h.Version = data[0]
	h.Token[0] = data[1]
	h.Token[1] = data[2]
	h.Type = data[3]
	copy(h.GatewayID[:], data[4:12])
	return h, nil
}

// TokenUint16 returns the token as a big-endian uint16, for comparing
// against a previously sent token.
func (h Header) TokenUint16() uint16 {
	return binary.BigEndian.Uint16(h.Token[:])
}

// NewToken draws two random bytes for a request token. The Semtech
// protocol only needs these to disambiguate in-flight requests from their
// acknowledgments; they carry no security meaning, so an unseeded
// non-cryptographic generator is the right tool.
func NewToken() [2]byte {
	var t [2]byte
	binary.BigEndian.PutUint16(t[:], uint16(rand.IntN(1<<16)))
	return t
}

// GatewayIDFromUint64 packs a 64-bit EUI into the 8-byte MSB-first form the
// header uses.
func GatewayIDFromUint64(eui uint64) [8]byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], eui)
	return id
}

// GatewayIDString renders a gateway ID as the lowercase hex string used in
// logs and the monitor feed.
func GatewayIDString(id [8]byte) string {
	return fmt.Sprintf("%016x", binary.BigEndian.Uint64(id[:]))
}
