package radio

import (
	"fmt"
	"sync"
	"time"

	"github.com/agsys/packetfwd/internal/counter"
)

// Simulator is an in-process stand-in for a real HAL. It lets the rest of
// this codebase run end to end (and be exercised by tests) without SX130x
// hardware: Inject queues a frame for the next Receive, Send just records
// what it was asked to transmit, and the instruction/trigger counters are
// driven explicitly by Advance rather than a real crystal.
//
// This mirrors the teacher driver's initHardware/receivePacket stubs: a
// stand-in with the right call shape, not a re-implementation of the SX1301
// register protocol.
type Simulator struct {
	mu sync.Mutex

	running   bool
	instCount counter.Counter
	trigCount counter.Counter
	eui       uint64
	temp      float32

	rxQueue []RXPacket
	sent    []TXPacket

	failNextSend bool

	scans map[uint8]*scanJob

	gpsEnabled  bool
	lastGPSSync gpsSyncPoint
}

type gpsSyncPoint struct {
	systemTime time.Time
	gpsTime    time.Time
	countUS    counter.Counter
}

type scanJob struct {
	state   SpectralScanState
	results []uint32
}

// NewSimulator constructs a Simulator with a fixed EUI and ambient
// temperature, ready for Start.
func NewSimulator(eui uint64) *Simulator {
	return &Simulator{
		eui:   eui,
		temp:  25.0,
		scans: make(map[uint8]*scanJob),
	}
}

func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("radio: simulator already started")
	}
	s.running = true
	return nil
}

func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Inject makes pkt available to the next Receive call(s).
func (s *Simulator) Inject(pkt RXPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxQueue = append(s.rxQueue, pkt)
}

// Advance moves the simulated instruction and trigger counters forward by
// d, as if that much wall time had elapsed on the concentrator's crystal.
func (s *Simulator) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := int32(d.Microseconds())
	s.instCount = counter.Add(s.instCount, delta)
	s.trigCount = counter.Add(s.trigCount, delta)
}

// SetCount pins the instruction counter to an exact value, for tests that
// need deterministic scheduling math.
func (s *Simulator) SetCount(c counter.Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instCount = c
	s.trigCount = c
}

// FailNextSend arms a one-shot failure for the next Send call.
func (s *Simulator) FailNextSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSend = true
}

// SentPackets returns every packet handed to Send so far, in order.
func (s *Simulator) SentPackets() []TXPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TXPacket, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Simulator) Receive(max int) ([]RXPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, fmt.Errorf("radio: simulator not running")
	}
	if len(s.rxQueue) == 0 {
		return nil, nil
	}
	n := max
	if n > len(s.rxQueue) {
		n = len(s.rxQueue)
	}
	out := s.rxQueue[:n]
	s.rxQueue = s.rxQueue[n:]
	return out, nil
}

func (s *Simulator) Send(pkt TXPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("radio: simulator not running")
	}
	if s.failNextSend {
		s.failNextSend = false
		return fmt.Errorf("radio: simulated send failure")
	}
	s.sent = append(s.sent, pkt)
	return nil
}

func (s *Simulator) Status(rfChain uint8) (ChainStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.scans[rfChain]
	return ChainStatus{
		TXInProgress: false,
		TXScheduled:  job != nil && job.state == SpectralScanRunning,
	}, nil
}

func (s *Simulator) GetInstCnt() (counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instCount, nil
}

func (s *Simulator) GetTrigCnt() (counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigCount, nil
}

func (s *Simulator) GetEUI() (uint64, error) {
	return s.eui, nil
}

func (s *Simulator) GetTemperature() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp, nil
}

func (s *Simulator) SpectralScanStart(rfChain uint8, freqHz uint32, nbScan uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.scans[rfChain]; ok && job.state == SpectralScanRunning {
		return fmt.Errorf("radio: scan already running on chain %d", rfChain)
	}
	results := make([]uint32, nbScan)
	for i := range results {
		results[i] = freqHz % 1000
	}
	s.scans[rfChain] = &scanJob{state: SpectralScanDone, results: results}
	return nil
}

func (s *Simulator) SpectralScanStatus(rfChain uint8) (SpectralScanState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.scans[rfChain]
	if !ok {
		return SpectralScanIdle, nil
	}
	return job.state, nil
}

func (s *Simulator) SpectralScanResults(rfChain uint8) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.scans[rfChain]
	if !ok {
		return nil, fmt.Errorf("radio: no scan on chain %d", rfChain)
	}
	return job.results, nil
}

func (s *Simulator) SpectralScanAbort(rfChain uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.scans[rfChain]; ok {
		job.state = SpectralScanAborted
	}
	return nil
}

func (s *Simulator) GPSEnable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpsEnabled = true
	return nil
}

func (s *Simulator) GPSDisable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpsEnabled = false
	return nil
}

func (s *Simulator) GPSSync(systemTime, gpsTime time.Time, countUS counter.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGPSSync = gpsSyncPoint{systemTime: systemTime, gpsTime: gpsTime, countUS: countUS}
	return nil
}

var _ HAL = (*Simulator)(nil)
