// Package lockout decides when repeated failed logins lock an account and for
// how long. Counters live in the credential store and are updated atomically
// there.
package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/server/models"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// Store is the slice of the user repository the policy writes through.
type Store interface {
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLockedUntil(ctx context.Context, id string, until time.Time) error
}

// State is the derived lock status of a user at a given instant.
type State struct {
	Locked    bool
	Remaining time.Duration
}

// Policy locks an account for Duration once Threshold consecutive failed
// logins have been recorded.
type Policy struct {
	Threshold int
	Duration  time.Duration
	Now       func() time.Time
}

// NewPolicy substitutes the package defaults for non-positive arguments.
func NewPolicy(threshold int, duration time.Duration) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Policy{Threshold: threshold, Duration: duration, Now: time.Now}
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// StateOf reports Locked while locked_until lies strictly in the future.
func (p *Policy) StateOf(user *models.User) State {
	if user.LockedUntil == nil {
		return State{}
	}
	remaining := user.LockedUntil.Sub(p.now())
	if remaining <= 0 {
		return State{}
	}
	return State{Locked: true, Remaining: remaining}
}

// Check returns a *common.LockedError for an actively locked user. It never
// touches the store.
func (p *Policy) Check(user *models.User) error {
	if s := p.StateOf(user); s.Locked {
		return &common.LockedError{Remaining: s.Remaining}
	}
	return nil
}

// ExpireIfElapsed resets the counter of a user whose lock has run out, so the
// next failure starts a fresh count.
func (p *Policy) ExpireIfElapsed(ctx context.Context, store Store, user *models.User) error {
	if user.LockedUntil == nil || p.StateOf(user).Locked {
		return nil
	}
	if err := store.ResetFailedAttempts(ctx, user.ID); err != nil {
		return fmt.Errorf("expire lock: %w", err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return nil
}

// RegisterFailure records a wrong password. It returns a *common.LockedError
// when this failure reaches the threshold and common.ErrInvalidCredentials
// otherwise. Any other error comes from the store.
func (p *Policy) RegisterFailure(ctx context.Context, store Store, user *models.User) error {
	count, err := store.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("register failure: %w", err)
	}
	user.FailedLoginCount = count

	if count < p.Threshold {
		return common.ErrInvalidCredentials
	}

	until := p.now().Add(p.Duration)
	if err := store.SetLockedUntil(ctx, user.ID, until); err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	user.LockedUntil = &until

	return &common.LockedError{Remaining: p.Duration}
}

// RegisterSuccess clears the counter and any stale lock after a correct password.
func (p *Policy) RegisterSuccess(ctx context.Context, store Store, user *models.User) error {
	if user.FailedLoginCount == 0 && user.LockedUntil == nil {
		return nil
	}
	if err := store.ResetFailedAttempts(ctx, user.ID); err != nil {
		return fmt.Errorf("register success: %w", err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return nil
}
