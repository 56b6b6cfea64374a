package beacon

// NextGPSSecond returns the GPS second (since the GPS epoch) the next
// beacon after nowGPSSeconds falls on: ceil(now/period)*period, per
// spec.md §4.4. A beacon due exactly at nowGPSSeconds counts as the next
// one (matches the reference's "queue the one we haven't sent yet"
// behavior), so ties round up to the following period.
func NextGPSSecond(nowGPSSeconds uint32, period uint32) uint32 {
	if period == 0 {
		return 0
	}
	return ((nowGPSSeconds / period) + 1) * period
}

// Channel selects the rotating beacon carrier frequency for a given GPS
// second, per spec.md §4.4: index = (gpsSeconds/period) mod freqNb,
// frequency = baseHz + index*stepHz.
func Channel(gpsSeconds uint32, period uint32, freqNb uint32, stepHz uint32, baseHz uint32) (index uint32, freqHz uint32) {
	if period == 0 || freqNb == 0 {
		return 0, baseHz
	}
	index = (gpsSeconds / period) % freqNb
	freqHz = baseHz + index*stepHz
	return index, freqHz
}

// Plan holds the queue of upcoming beacon GPS seconds the downstream
// pipeline maintains, up to JIT_NUM_BEACON_IN_QUEUE ahead (spec.md §4.4).
type Plan struct {
	Period   uint32
	FreqNb   uint32
	StepHz   uint32
	BaseHz   uint32
	Lookhead int

	pending []uint32
}

// NewPlan constructs a beacon Plan with the given configuration.
func NewPlan(period, freqNb, stepHz, baseHz uint32, lookhead int) *Plan {
	return &Plan{Period: period, FreqNb: freqNb, StepHz: stepHz, BaseHz: baseHz, Lookhead: lookhead}
}

// Refill appends beacon GPS seconds after the last queued one (or after
// nowGPSSeconds if the queue is empty) until Lookhead entries are pending,
// returning the newly appended seconds in order.
func (p *Plan) Refill(nowGPSSeconds uint32) []uint32 {
	if p.Period == 0 {
		return nil
	}
	var added []uint32
	last := nowGPSSeconds
	if n := len(p.pending); n > 0 {
		last = p.pending[n-1]
	}
	for len(p.pending) < p.Lookhead {
		var next uint32
		if len(p.pending) == 0 && last == nowGPSSeconds {
			next = NextGPSSecond(nowGPSSeconds, p.Period)
		} else {
			next = last + p.Period
		}
		p.pending = append(p.pending, next)
		added = append(added, next)
		last = next
	}
	return added
}

// PopDispatched removes the given GPS second from the pending queue once
// the JIT dispatcher has sent it (or it has been superseded).
func (p *Plan) PopDispatched(gpsSeconds uint32) {
	for i, s := range p.pending {
		if s == gpsSeconds {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the currently queued beacon GPS seconds.
func (p *Plan) Pending() []uint32 {
	out := make([]uint32, len(p.pending))
	copy(out, p.pending)
	return out
}
