package clock

import "time"

// Clock supplies the single time source used for every deadline and
// validity comparison. Implementations must be second-granularity.
type Clock interface {
	// Now returns the current unix time in seconds.
	Now() int64
}

// System reads the wall clock, truncated to seconds.
type System struct{}

func (System) Now() int64 {
	return time.Now().Unix()
}

// Fixed is a settable clock for tests.
type Fixed struct {
	Unix int64
}

func (f *Fixed) Now() int64 {
	return f.Unix
}

// Advance moves the fixed clock forward by d (rounded down to seconds).
func (f *Fixed) Advance(d time.Duration) {
	f.Unix += int64(d / time.Second)
}
