package password

import (
	"errors"
	"fmt"
	"log/slog"
)

// Outcome is the result of checking a password against a stored hash.
type Outcome struct {
	Valid        bool
	RehashNeeded bool
	Scheme       Scheme
}

// Verifier tries the current scheme first and then each legacy scheme,
// newest to oldest. The first matching strategy wins.
type Verifier struct {
	current Hasher
	legacy  []VerificationStrategy
}

func NewVerifier(current Hasher, legacy ...VerificationStrategy) *Verifier {
	return &Verifier{current: current, legacy: legacy}
}

// DefaultVerifier uses argon2id as the current scheme with every legacy
// scheme still present in the account table.
func DefaultVerifier(cfg Argon2Config) (*Verifier, error) {
	current, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return NewVerifier(current, Argon2SHA256{}, Bcrypt{}, PBKDF2{}, SHA256{}), nil
}

func (v *Verifier) Hash(password string) (string, error) {
	return v.current.Hash(password)
}

func (v *Verifier) CurrentScheme() Scheme {
	return v.current.Scheme()
}

// Verify never returns an error: strategy failures count as a non-match.
func (v *Verifier) Verify(password string, stored string) Outcome {
	if stored == "" {
		return Outcome{}
	}
	if v.tryStrategy(v.current, password, stored) {
		outcome := Outcome{Valid: true, Scheme: v.current.Scheme()}
		if u, ok := v.current.(upgrader); ok {
			stale, err := u.NeedsUpgrade(stored)
			outcome.RehashNeeded = stale || err != nil
		}
		return outcome
	}
	for _, strategy := range v.legacy {
		if v.tryStrategy(strategy, password, stored) {
			return Outcome{Valid: true, RehashNeeded: true, Scheme: strategy.Scheme()}
		}
	}
	return Outcome{}
}

func (v *Verifier) tryStrategy(strategy VerificationStrategy, password, stored string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Password strategy panicked", "scheme", strategy.Scheme(), "panic", fmt.Sprint(r))
			matched = false
		}
	}()
	ok, err := strategy.Verify(password, stored)
	if err != nil {
		if !errors.Is(err, ErrUnrecognizedHash) {
			slog.Debug("Password strategy failed", "scheme", strategy.Scheme(), "error", err)
		}
		return false
	}
	return ok
}
