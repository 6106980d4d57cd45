// Package clock provides an injectable notion of wall-clock time so that
// timeout- and deadline-sensitive code (the read planner's wave timers, the
// token-bucket limiter's refill accounting, the readahead adviser's
// throughput window) can be driven deterministically under test.
package clock

import "time"

// Clock is the time source used throughout the engine. Production code uses
// RealClock; tests use FakeClock or SimulatedClock to control elapsed time
// without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*FakeClock)(nil)
	_ Clock = (*SimulatedClock)(nil)
)
