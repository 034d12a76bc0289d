// Package ratelimit throttles the public authentication endpoints per client.
// A Redis fixed window is used when Redis is configured, an in-process sliding
// window otherwise.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 100
	DefaultWindow = 15 * time.Minute
)

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
