package port

import "time"

// Clock abstracts wall-clock time for throttling and history timestamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
