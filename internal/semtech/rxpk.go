package semtech

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
)

// JverValue is the protocol-format version stamped into every rxpk object.
const JverValue = "1.0"

// RXPK is one received-frame record, matching spec.md §6's rxpk JSON keys.
type RXPK struct {
	Tmst uint32 // raw counter timestamp, always present

	// Time and TmmsMS are only populated when the time reference is valid.
	TimeISO string // RFC3339-with-microseconds UTC timestamp, empty if unset
	TmmsMS  uint64 // GPS time in ms since epoch, 0 if unset
	HaveGPS bool

	FineTimestamp    uint32
	HaveFineTimestamp bool

	Chan    uint8
	RFChain uint8
	ModemID uint8
	Stat    int8 // 1 (CRC OK), -1 (CRC bad), 0 (no CRC)

	FreqHz uint32 // carrier frequency in Hz; rendered as MHz with 6 decimals

	Modu string // "LORA" or "FSK"
	Datr string // "SF7BW125" or a bps literal for FSK
	Codr string // "4/5".."4/8" or "OFF"

	RSSIChan   float32
	RSSISignal float32
	SNR        float32
	FreqOffset int32

	Payload []byte
}

// WriteJSON appends this rxpk's JSON object representation to buf. Building
// the upstream datagram object-by-object this way (rather than
// json.Marshal-ing a []RXPK slice all at once) is the "streaming" approach
// spec.md §9 calls for: no intermediate slice of encoded packets is ever
// materialized.
func (p RXPK) WriteJSON(buf *bytes.Buffer) {
	buf.WriteByte('{')
	writeStringField(buf, "jver", JverValue, true)
	writeUintField(buf, "tmst", uint64(p.Tmst), false)
	if p.HaveGPS {
		writeStringField(buf, "time", p.TimeISO, false)
		writeUintField(buf, "tmms", p.TmmsMS, false)
	}
	if p.HaveFineTimestamp {
		writeUintField(buf, "ftime", uint64(p.FineTimestamp), false)
	}
	writeUintField(buf, "chan", uint64(p.Chan), false)
	writeUintField(buf, "rfch", uint64(p.RFChain), false)
	writeIntField(buf, "stat", int64(p.Stat), false)
	writeStringField(buf, "modu", p.Modu, false)
	writeStringField(buf, "datr", p.Datr, false)
	writeStringField(buf, "codr", p.Codr, false)
	buf.WriteString(`,"rssis":`)
	buf.WriteString(strconv.FormatFloat(roundHalfAwayFromZero(float64(p.RSSIChan)), 'f', -1, 64))
	buf.WriteString(`,"rssi":`)
	buf.WriteString(strconv.FormatFloat(roundHalfAwayFromZero(float64(p.RSSISignal)), 'f', -1, 64))
	buf.WriteString(`,"lsnr":`)
	buf.WriteString(strconv.FormatFloat(roundToDecimals(float64(p.SNR), 1), 'f', -1, 64))
	writeIntField(buf, "foff", int64(p.FreqOffset), false)
	writeUintField(buf, "size", uint64(len(p.Payload)), false)
	buf.WriteString(`,"data":"`)
	buf.WriteString(base64.StdEncoding.EncodeToString(p.Payload))
	buf.WriteByte('"')
	buf.WriteString(`,"mid":`)
	buf.WriteString(strconv.FormatUint(uint64(p.ModemID), 10))
	buf.WriteString(`,"freq":`)
	buf.WriteString(FormatFreqMHz(p.FreqHz))
	buf.WriteByte('}')
}

// FormatFreqMHz renders a frequency in Hz as MHz with 6 decimal digits,
// e.g. 868500000 -> "868.500000" (spec.md §6).
func FormatFreqMHz(hz uint32) string {
	return strconv.FormatFloat(float64(hz)/1e6, 'f', 6, 64)
}

// ParseFreqMHz parses a MHz string (as sent in PULL_RESP's `freq`) back to
// Hz, rounding to the nearest Hz.
func ParseFreqMHz(s string) (uint32, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("semtech: invalid freq %q: %w", s, err)
	}
	return uint32(f*1e6 + 0.5), nil
}

func roundHalfAwayFromZero(v float64) float64 {
	return roundToDecimals(v, 0)
}

func roundToDecimals(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}

func writeStringField(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":"`)
	buf.WriteString(value)
	buf.WriteByte('"')
}

func writeUintField(buf *bytes.Buffer, key string, value uint64, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":`)
	buf.WriteString(strconv.FormatUint(value, 10))
}

func writeIntField(buf *bytes.Buffer, key string, value int64, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":`)
	buf.WriteString(strconv.FormatInt(value, 10))
}
