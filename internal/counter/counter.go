// Package counter implements wrap-safe arithmetic over the concentrator's
// free-running 32-bit microsecond counter.
package counter

// Counter is a sample of the concentrator's free-running microsecond timer.
// It wraps every 2^32 microseconds (~71.6 minutes); all comparisons between
// two Counters must go through Less, never a plain "<".
type Counter uint32

// Less reports whether a is ordered before b under modular 32-bit
// arithmetic, i.e. whether (a-b) is negative when reinterpreted as a
// signed 32-bit integer. This is the single predicate every JIT ordering,
// collision, and timeout check in this codebase must use.
func Less(a, b Counter) bool {
	return int32(a-b) < 0 //nolint:gosec // intentional wraparound subtraction
}

// LessOrEqual reports whether a is ordered at or before b.
func LessOrEqual(a, b Counter) bool {
	return a == b || Less(a, b)
}

// Diff returns b-a as a signed microsecond delta, wrap-safe. A positive
// result means b is ahead of a (in the future relative to a).
func Diff(a, b Counter) int32 {
	return int32(b - a) //nolint:gosec // intentional wraparound subtraction
}

// Add returns a advanced by d microseconds (d may be negative).
func Add(a Counter, d int32) Counter {
	return Counter(int32(a) + d) //nolint:gosec // intentional wraparound arithmetic
}

// Max returns whichever of a, b is later under wrap-safe ordering.
func Max(a, b Counter) Counter {
	if Less(a, b) {
		return b
	}
	return a
}

// Min returns whichever of a, b is earlier under wrap-safe ordering.
func Min(a, b Counter) Counter {
	if Less(a, b) {
		return a
	}
	return b
}
