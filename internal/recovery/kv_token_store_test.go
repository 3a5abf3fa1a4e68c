package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interleavingStorage runs beforeMatch once, after the stored value was read
// and before it is compared.
type interleavingStorage struct {
	store.Storage
	once        sync.Once
	beforeMatch func()
}

func (s *interleavingStorage) DeleteIf(ctx context.Context, key string, val any, match func() bool) error {
	return s.Storage.DeleteIf(ctx, key, val, func() bool {
		s.once.Do(s.beforeMatch)
		return match()
	})
}

func resetToken(accountID uint, token string, issuedAt time.Time) *model.PasswordResetToken {
	return &model.PasswordResetToken{
		AccountID: accountID,
		Token:     token,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(15 * time.Minute),
	}
}

func TestKVConsumeKeepsTokenIssuedMeanwhile(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	redisStorage := store.NewRedisStorage(rdb)

	direct := NewKVTokenStore(redisStorage, clock)
	hooked := NewKVTokenStore(&interleavingStorage{
		Storage: redisStorage,
		beforeMatch: func() {
			require.NoError(t, direct.Save(ctx, resetToken(7, "222222", now)))
		},
	}, clock)

	require.NoError(t, direct.Save(ctx, resetToken(7, "111111", now)))
	require.ErrorIs(t, hooked.Consume(ctx, 7, "111111", now), ErrInvalidOrExpired)

	current, err := direct.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "222222", current.Token)
	require.NoError(t, direct.Consume(ctx, 7, "222222", now))
}

func TestKVConsumeRacingSave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := store.NewMemoryStorage(time.Minute)
	t.Cleanup(func() { storage.Close() })
	tokens := NewKVTokenStore(storage, func() time.Time { return now })

	for i := 0; i < 200; i++ {
		require.NoError(t, tokens.Save(ctx, resetToken(7, "111111", now)))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := tokens.Consume(ctx, 7, "111111", now)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidOrExpired)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, tokens.Save(ctx, resetToken(7, "222222", now)))
		}()
		wg.Wait()

		// whichever order they ran in, the newer token survives
		current, err := tokens.Get(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, "222222", current.Token)
	}
}

func TestKVConsumeRejectsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := store.NewMemoryStorage(time.Minute)
	t.Cleanup(func() { storage.Close() })
	tokens := NewKVTokenStore(storage, func() time.Time { return now })

	require.NoError(t, tokens.Save(ctx, resetToken(7, "111111", now)))
	require.ErrorIs(t, tokens.Consume(ctx, 7, "111111", now.Add(15*time.Minute)), ErrInvalidOrExpired)
	require.ErrorIs(t, tokens.Consume(ctx, 7, "999999", now), ErrInvalidOrExpired)
	require.NoError(t, tokens.Consume(ctx, 7, "111111", now))
}
