package service

import "time"

// Clock abstracts the time source so expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the local system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
