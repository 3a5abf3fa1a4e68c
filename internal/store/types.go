package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotMatched = errors.New("value does not match")
)

// Storage is a key/value backend with per-key expiry. Delete must report
// ErrNotFound when nothing was removed so callers can use it as a
// consume-once guard.
//
// SetIf and DeleteIf are atomic read-check-write operations. The current
// value is decoded into val before the callback runs, and no other write to
// the key can land between the read and the write.
type Storage interface {
	Get(ctx context.Context, key string, val any) error
	Set(ctx context.Context, key string, val any, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetIf stores val when update returns true. update may modify val.
	SetIf(ctx context.Context, key string, val any, expiresIn time.Duration, update func(exists bool) bool) (bool, error)
	// DeleteIf removes the key when match returns true. It reports
	// ErrNotFound for a missing key and ErrNotMatched when match refuses.
	DeleteIf(ctx context.Context, key string, val any, match func() bool) error
}

type Store[T any] interface {
	Storage() Storage
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
	SetIf(ctx context.Context, key string, expiresIn time.Duration, update func(val *T, exists bool) bool) (bool, error)
	DeleteIf(ctx context.Context, key string, match func(val T) bool) error
}
