package lockout

import (
	"context"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
)

type Policy struct {
	Threshold uint          `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

func DefaultPrimaryPolicy() Policy {
	return Policy{Threshold: params.PrimaryLockThreshold, Duration: params.PrimaryLockDuration}
}

func DefaultSecondFactorPolicy() Policy {
	return Policy{Threshold: params.TwoFactorLockThreshold, Duration: params.TwoFactorLockDuration}
}

// State is the lock state of one counter.
type State struct {
	Locked    bool
	Remaining time.Duration
	Attempts  uint
	// LockedNow is set by RecordFailure when that failure engaged the lock.
	LockedNow bool
}

// counter selects the pair of account columns a Guard operates on.
type counter struct {
	name           string
	attemptsColumn string
	lockedColumn   string
	attempts       func(*model.Account) *uint
	lockedUntil    func(*model.Account) **time.Time
}

var (
	primaryCounter = counter{
		name:           "primary",
		attemptsColumn: "failed_attempts",
		lockedColumn:   "locked_until",
		attempts:       func(a *model.Account) *uint { return &a.FailedAttempts },
		lockedUntil:    func(a *model.Account) **time.Time { return &a.LockedUntil },
	}
	secondFactorCounter = counter{
		name:           "second_factor",
		attemptsColumn: "twofa_failed_attempts",
		lockedColumn:   "twofa_locked_until",
		attempts:       func(a *model.Account) *uint { return &a.TwoFAFailedAttempts },
		lockedUntil:    func(a *model.Account) **time.Time { return &a.TwoFALockedUntil },
	}
)

// Guard counts failed attempts for one counter of an account and enforces
// timed locks. Every update is a compare-and-set on the account row.
type Guard struct {
	repo    accounts.AccountRepository
	policy  Policy
	counter counter
	now     func() time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

func newGuard(repo accounts.AccountRepository, policy Policy, c counter, opts ...Option) *Guard {
	if policy.Threshold == 0 {
		policy.Threshold = 1
	}
	g := &Guard{repo: repo, policy: policy, counter: c, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewPrimaryGuard guards password attempts.
func NewPrimaryGuard(repo accounts.AccountRepository, policy Policy, opts ...Option) *Guard {
	return newGuard(repo, policy, primaryCounter, opts...)
}

// NewSecondFactorGuard guards TOTP and backup code attempts.
func NewSecondFactorGuard(repo accounts.AccountRepository, policy Policy, opts ...Option) *Guard {
	return newGuard(repo, policy, secondFactorCounter, opts...)
}

func (g *Guard) Name() string {
	return g.counter.name
}

func (g *Guard) Policy() Policy {
	return g.policy
}

func (g *Guard) Now() time.Time {
	return g.now()
}

// Check reports whether the account is locked at the given time. It does not
// touch storage.
func (g *Guard) Check(account *model.Account, now time.Time) State {
	state := State{Attempts: *g.counter.attempts(account)}
	lockedUntil := *g.counter.lockedUntil(account)
	if lockedUntil != nil && now.Before(*lockedUntil) {
		state.Locked = true
		state.Remaining = lockedUntil.Sub(now)
	}
	return state
}

// RecordFailure increments the counter. The attempt that brings the count to
// the threshold sets the lock.
func (g *Guard) RecordFailure(ctx context.Context, accountID uint) (State, error) {
	var state State
	_, err := accounts.Mutate(ctx, g.repo, accountID, func(account *model.Account) ([]string, error) {
		now := g.now()
		attempts := g.counter.attempts(account)
		*attempts++
		state = State{Attempts: *attempts}
		if *attempts >= g.policy.Threshold {
			until := now.Add(g.policy.Duration)
			*g.counter.lockedUntil(account) = &until
			state.Locked = true
			state.LockedNow = true
			state.Remaining = g.policy.Duration
		}
		return []string{g.counter.attemptsColumn, g.counter.lockedColumn}, nil
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// RecordSuccess zeroes the counter and clears the lock.
func (g *Guard) RecordSuccess(ctx context.Context, accountID uint) error {
	_, err := accounts.Mutate(ctx, g.repo, accountID, func(account *model.Account) ([]string, error) {
		if *g.counter.attempts(account) == 0 && *g.counter.lockedUntil(account) == nil {
			return nil, nil
		}
		*g.counter.attempts(account) = 0
		*g.counter.lockedUntil(account) = nil
		return []string{g.counter.attemptsColumn, g.counter.lockedColumn}, nil
	})
	return err
}
