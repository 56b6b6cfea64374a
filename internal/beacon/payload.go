// Package beacon builds the class-B beacon payload and computes its
// scheduling (spec.md §4.4): which GPS second the next beacon falls on and
// which of the rotating carrier frequencies it transmits on.
package beacon

import (
	"fmt"
	"math"

	"github.com/agsys/packetfwd/internal/semtech"
)

// rfuSizes gives (S1, S2) for each spreading factor the beacon may use, per
// spec.md §4.4's table. SF7 and SF11 aren't beacon-eligible under LoRaWAN
// and have no entry.
var rfuSizes = map[uint32][2]int{
	8:  {1, 3},
	9:  {2, 0},
	10: {3, 1},
	12: {5, 3},
}

// InfoDesc values identify which frame format variant (GPS time + optional
// location) the beacon carries. This codebase always includes location
// when one is available.
const (
	InfoDescNoLocation uint8 = 0
	InfoDescWithLatLon uint8 = 1
)

// BuildPayload lays out the beacon frame for the given spreading factor,
// GPS second, and (optional) gateway location, per spec.md §4.4's
// little-endian layout:
//
//	[ RFU1(S1) | time u32 | crc16 u16 | infodesc u8 | lat i24 | lon i24 | RFU2(S2) | crc16 u16 ]
//
// The two CRC-16 fields are computed independently over the "network" part
// (RFU1+time, big-endian per field per spec) and the "gateway" part
// (infodesc+lat+lon+RFU2), matching the reference beacon's split.
func BuildPayload(sf uint32, gpsSeconds uint32, haveLocation bool, latDeg, lonDeg float64) ([]byte, error) {
	sizes, ok := rfuSizes[sf]
	if !ok {
		return nil, fmt.Errorf("beacon: spreading factor %d is not beacon-eligible", sf)
	}
	s1, s2 := sizes[0], sizes[1]

	infodesc := InfoDescNoLocation
	if haveLocation {
		infodesc = InfoDescWithLatLon
	}

	netPart := make([]byte, s1+4) // RFU1 + time
	putLE32(netPart[s1:], gpsSeconds)
	netCRC := semtech.CRC16(netPart)

	gwPart := make([]byte, 1+3+3+s2) // infodesc + lat + lon + RFU2
	gwPart[0] = infodesc
	putI24(gwPart[1:4], clampAngle(latDeg, 90))
	putI24(gwPart[4:7], clampAngle(lonDeg, 180))
	gwCRC := semtech.CRC16(gwPart)

	out := make([]byte, 0, len(netPart)+2+len(gwPart)+2)
	out = append(out, netPart...)
	out = appendBE16(out, netCRC)
	out = append(out, gwPart...)
	out = appendBE16(out, gwCRC)
	return out, nil
}

// clampAngle converts a degree value to the signed 24-bit fixed-point
// representation spec.md §4.4 defines: round(deg/span * 2^23), clamped to
// the representable range.
func clampAngle(deg float64, span float64) int32 {
	const scale = 1 << 23
	v := math.Round(deg / span * scale)
	if v > scale-1 {
		v = scale - 1
	}
	if v < -scale {
		v = -scale
	}
	return int32(v)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putI24(b []byte, v int32) {
	u := uint32(v) & 0xFFFFFF
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
}

func appendBE16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}
