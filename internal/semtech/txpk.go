package semtech

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/radio"
)

// wireTXPK mirrors the exact JSON shape of a PULL_RESP txpk object
// (spec.md §6). Unlike rxpk, the forwarder only ever parses one of these
// per datagram, so json.Unmarshal is the right tool here; there's no
// streaming concern to design around.
type wireTXPK struct {
	Imme bool    `json:"imme"`
	Tmst *uint32 `json:"tmst"`
	Tmms *uint64 `json:"tmms"`
	Freq float64 `json:"freq"`
	RFCh uint8   `json:"rfch"`
	Powe int8    `json:"powe"`
	Modu string  `json:"modu"`
	Datr string  `json:"datr"`
	Codr string  `json:"codr"`
	FDev uint16  `json:"fdev,omitempty"`
	IPol *bool   `json:"ipol,omitempty"`
	Prea uint16  `json:"prea,omitempty"`
	NCRC bool    `json:"ncrc,omitempty"`
	Data string  `json:"data"`
	Size int     `json:"size"`
}

// ParseTXPK decodes a PULL_RESP txpk JSON object into a radio.TXPacket
// ready for internal/jit admission.
func ParseTXPK(data []byte) (radio.TXPacket, error) {
	var w wireTXPK
	if err := json.Unmarshal(data, &w); err != nil {
		return radio.TXPacket{}, fmt.Errorf("semtech: parse txpk: %w", err)
	}

	payload, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return radio.TXPacket{}, fmt.Errorf("semtech: txpk data: %w", err)
	}
	if w.Size != 0 && w.Size != len(payload) {
		return radio.TXPacket{}, fmt.Errorf("semtech: txpk size %d does not match decoded payload length %d", w.Size, len(payload))
	}

	freqHz, err := ParseFreqMHz(strconv.FormatFloat(w.Freq, 'f', 6, 64))
	if err != nil {
		return radio.TXPacket{}, err
	}

	pkt := radio.TXPacket{
		RFChain:  w.RFCh,
		FreqHz:   freqHz,
		PowerDBm: w.Powe,
		Payload:  payload,
		NoCRC:    w.NCRC,
	}

	switch strings.ToUpper(w.Modu) {
	case "LORA":
		pkt.Modulation = radio.ModulationLoRa
		bw, sf, err := parseDatrLoRa(w.Datr)
		if err != nil {
			return radio.TXPacket{}, err
		}
		pkt.Bandwidth = bw
		pkt.DataRate = sf
		pkt.PreambleLen = defaultPreamble(radio.MinLoraPreamble, radio.StdLoraPreamble, w.Prea)
		cr, ok := radio.ParseCodeRate(w.Codr)
		if !ok {
			return radio.TXPacket{}, fmt.Errorf("semtech: unknown codr %q", w.Codr)
		}
		pkt.CodeRate = cr
	case "FSK":
		pkt.Modulation = radio.ModulationFSK
		rate, err := parseDatrFSK(w.Datr)
		if err != nil {
			return radio.TXPacket{}, err
		}
		pkt.DataRate = rate
		pkt.FreqDeviation = uint32(w.FDev)
		pkt.PreambleLen = defaultPreamble(radio.MinFskPreamble, radio.MinFskPreamble, w.Prea)
	default:
		return radio.TXPacket{}, fmt.Errorf("semtech: unknown modu %q", w.Modu)
	}

	if w.IPol != nil {
		pkt.PolarityInv = *w.IPol
	} else {
		pkt.PolarityInv = true // Semtech's documented default for downlinks
	}

	switch {
	case w.Imme:
		pkt.Mode = radio.TXModeImmediate
	case w.Tmms != nil:
		pkt.Mode = radio.TXModeOnGPS
		pkt.TargetCountUS = 0 // resolved by the caller via gpsref.TimeRef.GPSToCount
	case w.Tmst != nil:
		pkt.Mode = radio.TXModeTimestamped
		pkt.TargetCountUS = counter.Counter(*w.Tmst)
	default:
		return radio.TXPacket{}, fmt.Errorf("semtech: txpk has neither imme, tmst, nor tmms")
	}

	return pkt, nil
}

// TmmsRequested reports the GPS-epoch-ms target for a txpk parsed with
// Mode == radio.TXModeOnGPS, so the caller can resolve it through
// gpsref.TimeRef.GPSToCount before enqueuing.
func TmmsRequested(data []byte) (ms uint64, ok bool, err error) {
	var w wireTXPK
	if err := json.Unmarshal(data, &w); err != nil {
		return 0, false, fmt.Errorf("semtech: parse txpk: %w", err)
	}
	if w.Tmms == nil {
		return 0, false, nil
	}
	return *w.Tmms, true, nil
}

func defaultPreamble(min, std uint16, requested uint16) uint16 {
	if requested == 0 {
		return std
	}
	if requested < min {
		return min
	}
	return requested
}

func parseDatrLoRa(datr string) (radio.Bandwidth, uint32, error) {
	// e.g. "SF7BW125"
	datr = strings.ToUpper(datr)
	bwIdx := strings.Index(datr, "BW")
	if !strings.HasPrefix(datr, "SF") || bwIdx < 0 {
		return 0, 0, fmt.Errorf("semtech: malformed LoRa datr %q", datr)
	}
	sf, err := strconv.Atoi(datr[2:bwIdx])
	if err != nil {
		return 0, 0, fmt.Errorf("semtech: malformed LoRa SF in datr %q: %w", datr, err)
	}
	bwKHz, err := strconv.Atoi(datr[bwIdx+2:])
	if err != nil {
		return 0, 0, fmt.Errorf("semtech: malformed LoRa BW in datr %q: %w", datr, err)
	}
	var bw radio.Bandwidth
	switch bwKHz {
	case 125:
		bw = radio.Bandwidth125kHz
	case 250:
		bw = radio.Bandwidth250kHz
	case 500:
		bw = radio.Bandwidth500kHz
	default:
		return 0, 0, fmt.Errorf("semtech: unsupported LoRa bandwidth %dkHz", bwKHz)
	}
	return bw, uint32(sf), nil
}

func parseDatrFSK(datr string) (uint32, error) {
	bps, err := strconv.Atoi(datr)
	if err != nil {
		return 0, fmt.Errorf("semtech: malformed FSK datr %q: %w", datr, err)
	}
	return uint32(bps), nil
}
