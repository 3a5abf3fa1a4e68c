package store

import (
	"context"
	"time"
)

type prefixedStorage struct {
	underlying Storage
	prefix     string
}

func (p *prefixedStorage) Get(ctx context.Context, key string, val any) error {
	return p.underlying.Get(ctx, p.prefix+key, val)
}

func (p *prefixedStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	return p.underlying.Set(ctx, p.prefix+key, val, expiresIn)
}

func (p *prefixedStorage) Delete(ctx context.Context, key string) error {
	return p.underlying.Delete(ctx, p.prefix+key)
}

func (p *prefixedStorage) SetIf(ctx context.Context, key string, val any, expiresIn time.Duration, update func(exists bool) bool) (bool, error) {
	return p.underlying.SetIf(ctx, p.prefix+key, val, expiresIn, update)
}

func (p *prefixedStorage) DeleteIf(ctx context.Context, key string, val any, match func() bool) error {
	return p.underlying.DeleteIf(ctx, p.prefix+key, val, match)
}

func StorageWithPrefix(storage Storage, prefix string) Storage {
	return &prefixedStorage{
		underlying: storage,
		prefix:     prefix,
	}
}
