// Package throttle bounds how often a client may attempt to log in.
package throttle

import (
	"context"
	"time"
)

// Policy is a sliding window budget: at most Limit attempts per Window.
type Policy struct {
	Window time.Duration
	Limit  int
}

// LoginPolicy is five attempts per five minutes.
var LoginPolicy = Policy{Window: 5 * time.Minute, Limit: 5}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed bool
	// Remaining is the number of attempts left in the window after this one.
	Remaining int
	// RetryAfter is set on rejection: time until the oldest counted attempt leaves the window.
	RetryAfter time.Duration
}

// Limiter records attempts per key. An admitted attempt is counted;
// a rejected one is not.
type Limiter interface {
	Attempt(ctx context.Context, key string) (Decision, error)
}

func normalize(p Policy) Policy {
	if p.Window <= 0 {
		p.Window = LoginPolicy.Window
	}
	if p.Limit <= 0 {
		p.Limit = LoginPolicy.Limit
	}
	return p
}
