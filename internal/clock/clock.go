package clock

import "time"

// Clock abstracts time.Now so jobs can be driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
