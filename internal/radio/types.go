// Package radio defines the data model and driver interface for the radio
// concentrator (the radio HAL), and ships a Simulator implementation so the
// rest of the tree can run and be tested without real SX130x hardware.
//
// The HAL itself is an external collaborator (spec.md §1/§6): this package
// only fixes the shape of the contract, generalized from the ChirpStack
// Concentratord mirror structs this codebase used to speak over ZeroMQ.
package radio

import (
	"time"

	"github.com/agsys/packetfwd/internal/counter"
)

// Modulation identifies the physical layer in use for a packet.
type Modulation int32

const (
	ModulationUndefined Modulation = iota
	ModulationLoRa
	ModulationFSK
)

func (m Modulation) String() string {
	switch m {
	case ModulationLoRa:
		return "LORA"
	case ModulationFSK:
		return "FSK"
	default:
		return "undefined"
	}
}

// Bandwidth is a LoRa channel bandwidth in Hz.
type Bandwidth uint32

const (
	Bandwidth125kHz Bandwidth = 125000
	Bandwidth250kHz Bandwidth = 250000
	Bandwidth500kHz Bandwidth = 500000
)

// CodeRate is a LoRa forward error correction coding rate.
type CodeRate int32

const (
	CodeRateUndefined CodeRate = iota
	CodeRate4_5
	CodeRate4_6
	CodeRate4_7
	CodeRate4_8
)

func (c CodeRate) String() string {
	switch c {
	case CodeRate4_5:
		return "4/5"
	case CodeRate4_6:
		return "4/6"
	case CodeRate4_7:
		return "4/7"
	case CodeRate4_8:
		return "4/8"
	default:
		return "OFF"
	}
}

// ParseCodeRate accepts the PULL_RESP codr strings, including the two
// aliases the server is known to send ("2/3" -> 4/6, "1/2" -> 4/8). See
// spec.md §9's open question: the aliasing is preserved without further
// justification, matching upstream server behavior.
func ParseCodeRate(s string) (CodeRate, bool) {
	switch s {
	case "4/5":
		return CodeRate4_5, true
	case "4/6", "2/3":
		return CodeRate4_6, true
	case "4/7":
		return CodeRate4_7, true
	case "4/8", "1/2":
		return CodeRate4_8, true
	default:
		return CodeRateUndefined, false
	}
}

// CRCStatus is the result of a received frame's CRC check.
type CRCStatus int32

const (
	CRCNone CRCStatus = iota
	CRCBad
	CRCOK
)

// TXMode selects how a downlink's transmission time is determined.
type TXMode int32

const (
	TXModeImmediate TXMode = iota
	TXModeTimestamped
	TXModeOnGPS
)

// RXPacket is a single frame received from the concentrator, already
// adapted from whatever wire shape the real HAL produces.
type RXPacket struct {
	Modulation    Modulation
	RFChain       uint8
	IFChain       uint8
	FreqHz        uint32
	Bandwidth     Bandwidth
	DataRate      uint32 // spreading factor for LoRa, bps for FSK
	CodeRate      CodeRate
	CRCStatus     CRCStatus
	RSSIChan      float32
	RSSISignal    float32
	SNR           float32
	FreqOffsetHz  int32
	FineTimestamp *uint32 // optional, sub-microsecond fine timestamp
	CountUS       counter.Counter
	Payload       []byte
}

// TXPacket is a single downlink opportunity to hand to the concentrator.
type TXPacket struct {
	Mode          TXMode
	TargetCountUS counter.Counter // only meaningful when Mode == TXModeTimestamped
	RFChain       uint8
	FreqHz        uint32
	PowerDBm      int8
	Modulation    Modulation
	Bandwidth     Bandwidth
	DataRate      uint32
	CodeRate      CodeRate
	FreqDeviation uint32 // Hz, FSK only
	PreambleLen   uint16
	PolarityInv   bool
	ImplicitHdr   bool
	NoCRC         bool
	Payload       []byte
}

// ChainStatus reports per-RF-chain concentrator state as returned by the
// HAL's status() call.
type ChainStatus struct {
	TXInProgress bool
	TXScheduled  bool
}

// HAL is the opaque radio driver contract this codebase consumes. A real
// implementation wraps libloragw (or a vendor SPI/USB driver); Simulator
// below is the in-process stand-in used for development and tests.
type HAL interface {
	Start() error
	Stop() error

	// Receive returns up to max newly-arrived frames. It must not block
	// longer than the driver's own internal poll interval.
	Receive(max int) ([]RXPacket, error)

	// Send hands a single frame to the concentrator for transmission. It
	// returns an error if the concentrator rejected the frame outright
	// (not a scheduling rejection — those are handled entirely within
	// the JIT queue before Send is ever called).
	Send(pkt TXPacket) error

	Status(rfChain uint8) (ChainStatus, error)

	GetInstCnt() (counter.Counter, error)
	GetTrigCnt() (counter.Counter, error)
	GetEUI() (uint64, error)
	GetTemperature() (float32, error)

	SpectralScanStart(rfChain uint8, freqHz uint32, nbScan uint32) error
	SpectralScanStatus(rfChain uint8) (SpectralScanState, error)
	SpectralScanResults(rfChain uint8) ([]uint32, error)
	SpectralScanAbort(rfChain uint8) error

	// GPSEnable/GPSDisable toggle the concentrator's own PPS capture.
	GPSEnable() error
	GPSDisable() error

	// GPSSync tells the concentrator's internal clock discipline about a
	// freshly observed PPS edge, mirroring lgw_gps_sync. The gateway's own
	// internal.gpsref.TimeRef is the source of truth used for scheduling;
	// this call just keeps the HAL's copy (if it has one) consistent.
	GPSSync(systemTime time.Time, gpsTime time.Time, countUS counter.Counter) error
}

// SpectralScanState is the lifecycle state of a background spectral scan.
type SpectralScanState int32

const (
	SpectralScanIdle SpectralScanState = iota
	SpectralScanRunning
	SpectralScanDone
	SpectralScanAborted
)
