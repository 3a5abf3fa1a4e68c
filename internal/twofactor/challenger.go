package twofactor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/params"
)

type Purpose string

const (
	PurposeTwoFactor      Purpose = "2fa"
	PurposePasswordChange Purpose = "password_change"
)

type TicketClaims struct {
	Purpose Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// AccountID returns the account the ticket was issued for.
func (c *TicketClaims) AccountID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidTicket
	}
	return uint(id), nil
}

type consumedTicket struct {
	ConsumedAt int64 `json:"consumedAt" redis:"consumed_at"`
}

// Challenger issues short lived continuation tickets that carry a login
// between the password step and the second factor or forced password
// change. Tickets are HS256 JWTs signed with the master key.
type Challenger struct {
	masterKey []byte
	lifetime  time.Duration
	consumed  store.Store[consumedTicket]
	now       func() time.Time
}

type ChallengerOption func(*Challenger)

func WithTicketClock(now func() time.Time) ChallengerOption {
	return func(c *Challenger) {
		c.now = now
	}
}

// WithTicketStore enables single use tickets. Consumed ticket ids are kept
// until the ticket would have expired anyway.
func WithTicketStore(storage store.Storage) ChallengerOption {
	return func(c *Challenger) {
		c.consumed = store.New[consumedTicket](storage, params.TicketKeyPrefix)
	}
}

func NewChallenger(masterKey string, lifetime time.Duration, opts ...ChallengerOption) *Challenger {
	if lifetime <= 0 {
		lifetime = params.TwoFactorTicketLifetime
	}
	c := &Challenger{masterKey: []byte(masterKey), lifetime: lifetime, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Challenger) Issue(accountID uint, purpose Purpose) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.lifetime)
	claims := TicketClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.masterKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses the ticket and checks its signature, expiry and purpose.
// An expired or consumed ticket with a valid signature and the expected
// purpose still yields its claims next to the error, so the attempt can be
// attributed to the account.
func (c *Challenger) Verify(ctx context.Context, ticket string, purpose Purpose) (*TicketClaims, error) {
	var claims TicketClaims
	token, err := jwt.ParseWithClaims(ticket, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.masterKey, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if claims.Purpose != purpose || claims.ID == "" {
		return nil, ErrInvalidTicket
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return &claims, ErrInvalidTicket
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidTicket
	}
	if c.consumed != nil {
		_, err := c.consumed.Get(ctx, claims.ID)
		if err == nil {
			return &claims, ErrTicketConsumed
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return &claims, nil
}

// Consume marks the ticket as used and reports ErrTicketConsumed when another
// request consumed it first. It is a no-op without a ticket store.
func (c *Challenger) Consume(ctx context.Context, claims *TicketClaims) error {
	if c.consumed == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return ErrInvalidTicket
	}
	consumedAt := c.now().Unix()
	stored, err := c.consumed.SetIf(ctx, claims.ID, ttl, func(val *consumedTicket, exists bool) bool {
		if exists {
			return false
		}
		val.ConsumedAt = consumedAt
		return true
	})
	if err != nil {
		return err
	}
	if !stored {
		return ErrTicketConsumed
	}
	return nil
}
