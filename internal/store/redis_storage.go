package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds the optimistic WATCH/MULTI retries of SetIf and
// DeleteIf when the key changes under the transaction.
const maxTxRetries = 8

// RedisStorage keeps values as redis hashes, fields are taken from the
// `redis` struct tags.
type RedisStorage struct {
	rdb redis.UniversalClient
}

func (s *RedisStorage) Conn() redis.UniversalClient {
	return s.rdb
}

func (s *RedisStorage) Get(ctx context.Context, key string, val any) error {
	cmd := s.rdb.HGetAll(ctx, key)
	if err := cmd.Err(); err != nil {
		return err
	}
	if len(cmd.Val()) == 0 {
		return ErrNotFound
	}
	return cmd.Scan(val)
}

func (s *RedisStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, val)
	if expiresIn > 0 {
		pipe.Expire(ctx, key, expiresIn)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// watched runs fn in a WATCH transaction on key, retrying when another
// client modified the key before EXEC.
func (s *RedisStorage) watched(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func loadHash(ctx context.Context, tx *redis.Tx, key string, val any) (bool, error) {
	cmd := tx.HGetAll(ctx, key)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	if len(cmd.Val()) == 0 {
		return false, nil
	}
	return true, cmd.Scan(val)
}

func (s *RedisStorage) SetIf(ctx context.Context, key string, val any, expiresIn time.Duration, update func(exists bool) bool) (bool, error) {
	stored := false
	err := s.watched(ctx, key, func(tx *redis.Tx) error {
		stored = false
		exists, err := loadHash(ctx, tx, key, val)
		if err != nil {
			return err
		}
		if !update(exists) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, val)
			if expiresIn > 0 {
				pipe.Expire(ctx, key, expiresIn)
			}
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	})
	return stored, err
}

func (s *RedisStorage) DeleteIf(ctx context.Context, key string, val any, match func() bool) error {
	return s.watched(ctx, key, func(tx *redis.Tx) error {
		exists, err := loadHash(ctx, tx, key, val)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if !match() {
			return ErrNotMatched
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
}

func NewRedisStorage(db redis.UniversalClient) *RedisStorage {
	return &RedisStorage{
		rdb: db,
	}
}
