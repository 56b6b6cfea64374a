// Package gateway wires the six concurrent activities (spec.md §2) around
// the shared state they cooperate through: the radio mutex, the per-chain
// JIT queues, the GPS time reference, the XTAL correction, and the
// upstream/downstream statistics buckets.
package gateway

import (
	"context"
	"sync"

	"github.com/agsys/packetfwd/internal/beacon"
	"github.com/agsys/packetfwd/internal/config"
	"github.com/agsys/packetfwd/internal/gpsref"
	"github.com/agsys/packetfwd/internal/jit"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/agsys/packetfwd/internal/stats"
)

// Context holds every piece of state the six activities share, plus the
// two cancellation tokens spec.md §5 defines: Exit (drain and shut down
// hardware) and Quit (drop immediately). Both are derived contexts so
// activities can select on either with no extra plumbing.
type Context struct {
	Config config.Config

	RadioMu sync.Mutex
	Radio   radio.HAL

	JIT map[uint8]*jit.Queue // keyed by RF chain

	TimeRef   *gpsref.TimeRef
	Xtal      *gpsref.XtalState
	Validator *gpsref.Validator

	Upstream   *stats.Upstream
	Downstream *stats.Downstream
	Reports    *stats.ReportBuffer

	Beacon *beacon.Plan

	exitCtx    context.Context
	exitCancel context.CancelFunc
	quitCtx    context.Context
	quitCancel context.CancelFunc
}

// New assembles a Context for the given configuration and radio HAL. The
// JIT queue set has one entry per TX-enabled RF chain in cfg.
func New(cfg config.Config, hal radio.HAL) *Context {
	exitCtx, exitCancel := context.WithCancel(context.Background())
	quitCtx, quitCancel := context.WithCancel(context.Background())

	ref := &gpsref.TimeRef{}
	xtal := gpsref.NewXtalState()

	queues := make(map[uint8]*jit.Queue)
	for i, r := range cfg.SX130x.Radios {
		if r.TxEnable {
			queues[uint8(i)] = jit.NewQueue()
		}
	}
	if len(queues) == 0 {
		queues[0] = jit.NewQueue() // simulator/default single-chain layout
	}

	var plan *beacon.Plan
	if cfg.Gateway.Beacon.Period > 0 {
		plan = beacon.NewPlan(
			cfg.Gateway.Beacon.Period,
			cfg.Gateway.Beacon.FreqNb,
			cfg.Gateway.Beacon.FreqStep,
			cfg.Gateway.Beacon.FreqHz,
			jit.DefaultBeaconLookhead,
		)
	}

	return &Context{
		Config:     cfg,
		Radio:      hal,
		JIT:        queues,
		TimeRef:    ref,
		Xtal:       xtal,
		Validator:  gpsref.NewValidator(ref, xtal),
		Upstream:   &stats.Upstream{},
		Downstream: &stats.Downstream{},
		Reports:    &stats.ReportBuffer{},
		Beacon:     plan,
		exitCtx:    exitCtx,
		exitCancel: exitCancel,
		quitCtx:    quitCtx,
		quitCancel: quitCancel,
	}
}

// ExitDone returns a channel closed once a graceful shutdown has been
// requested: activities should drain their in-flight step, stop the
// radio, and return.
func (c *Context) ExitDone() <-chan struct{} { return c.exitCtx.Done() }

// QuitDone returns a channel closed once an immediate shutdown has been
// requested: activities must terminate without touching hardware.
func (c *Context) QuitDone() <-chan struct{} { return c.quitCtx.Done() }

// ExitContext returns the context activities should run under: it is
// canceled on a graceful shutdown request.
func (c *Context) ExitContext() context.Context { return c.exitCtx }

// QuitContext returns the context that is canceled on an immediate
// shutdown request.
func (c *Context) QuitContext() context.Context { return c.quitCtx }

// RequestExit begins a graceful shutdown.
func (c *Context) RequestExit() { c.exitCancel() }

// RequestQuit begins an immediate shutdown. It also requests Exit so any
// code only watching ExitDone still unblocks.
func (c *Context) RequestQuit() {
	c.quitCancel()
	c.exitCancel()
}

// Chain returns the JIT queue for the given RF chain, and whether one is
// configured.
func (c *Context) Chain(rfChain uint8) (*jit.Queue, bool) {
	q, ok := c.JIT[rfChain]
	return q, ok
}

// WithRadio runs fn while holding the radio mutex, matching spec.md §5's
// rule: hold the lock only for the call's minimal duration, never across
// a blocking network operation.
func (c *Context) WithRadio(fn func(radio.HAL) error) error {
	c.RadioMu.Lock()
	defer c.RadioMu.Unlock()
	return fn(c.Radio)
}
