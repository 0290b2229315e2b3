package idgen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Clock abstracts the time source for the ID generator.
type Clock interface {
	// Now returns the current timestamp in milliseconds.
	Now() int64
}

// SystemClock uses the local system time.
type SystemClock struct{}

func (s *SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// RedisClock sources timestamps from the Redis TIME command so session
// ids stay monotonic across gateway restarts on hosts with drifting clocks.
type RedisClock struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisClock(client *redis.Client) *RedisClock {
	return &RedisClock{
		client: client,
		ctx:    context.Background(),
	}
}

func (r *RedisClock) Now() int64 {
	res, err := r.client.Time(r.ctx).Result()
	if err != nil {
		// Redis down: fall back to the local clock rather than stalling
		// session creation.
		return time.Now().UnixMilli()
	}

	return res.Unix()*1000 + int64(res.Nanosecond())/1000000
}
