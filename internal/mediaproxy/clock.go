package mediaproxy

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. TTLCache depends on it so expiration can be
// driven by a fake in tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock schedules on the runtime timer wheel.
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
