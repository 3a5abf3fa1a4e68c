package store

import (
	"context"
	"time"
)

type store[T any] struct {
	storage Storage
}

func (s *store[T]) Storage() Storage {
	return s.storage
}

func (s *store[T]) Get(ctx context.Context, key string) (T, error) {
	var obj T
	err := s.storage.Get(ctx, key, &obj)
	return obj, err
}

func (s *store[T]) Set(ctx context.Context, key string, val T, expiresIn time.Duration) error {
	return s.storage.Set(ctx, key, val, expiresIn)
}

func (s *store[T]) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

func (s *store[T]) SetIf(ctx context.Context, key string, expiresIn time.Duration, update func(val *T, exists bool) bool) (bool, error) {
	var obj T
	return s.storage.SetIf(ctx, key, &obj, expiresIn, func(exists bool) bool {
		if !exists {
			var zero T
			obj = zero
		}
		return update(&obj, exists)
	})
}

func (s *store[T]) DeleteIf(ctx context.Context, key string, match func(val T) bool) error {
	var obj T
	return s.storage.DeleteIf(ctx, key, &obj, func() bool {
		return match(obj)
	})
}

func New[T any](storage Storage, keyPrefix string) Store[T] {
	return &store[T]{
		storage: StorageWithPrefix(storage, keyPrefix),
	}
}
