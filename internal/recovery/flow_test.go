package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/internal/testutil"
	"github.com/khanghh/kguard/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentCode struct {
	username  string
	code      string
	expiresAt time.Time
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentCode
}

func (n *captureNotifier) SendPasswordResetCode(ctx context.Context, account *model.Account, code string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{account.Username, code, expiresAt})
	return nil
}

type fixture struct {
	db       *gorm.DB
	repo     accounts.AccountRepository
	clock    *testutil.Clock
	notifier *captureNotifier
	verifier *password.Verifier
	flow     *Flow
	account  *model.Account
}

type backend struct {
	name string
	open func(t *testing.T, db *gorm.DB, clock *testutil.Clock) TokenStore
}

var backends = []backend{
	{"database", func(t *testing.T, db *gorm.DB, clock *testutil.Clock) TokenStore {
		return NewDBTokenStore(db)
	}},
	{"memory", func(t *testing.T, db *gorm.DB, clock *testutil.Clock) TokenStore {
		storage := store.NewMemoryStorage(time.Minute)
		t.Cleanup(func() { storage.Close() })
		return NewKVTokenStore(storage, clock.Now)
	}},
	{"redis", func(t *testing.T, db *gorm.DB, clock *testutil.Clock) TokenStore {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return NewKVTokenStore(store.NewRedisStorage(rdb), clock.Now)
	}},
}

func setup(t *testing.T, b backend) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := accounts.NewAccountRepository(db)
	clock := testutil.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	verifier, err := password.DefaultVerifier(password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	oldHash, err := verifier.Hash("OldPass1!")
	require.NoError(t, err)
	acc := &model.Account{
		Username:           "alice",
		Email:              "alice@example.com",
		Role:               model.RoleUser,
		IsActive:           true,
		PasswordHash:       oldHash,
		HashScheme:         string(password.SchemeArgon2id),
		MustChangePassword: true,
		FirstLogin:         true,
		FailedAttempts:     3,
	}
	require.NoError(t, repo.Create(context.Background(), acc))

	notifier := &captureNotifier{}
	flow := NewFlow(repo, b.open(t, db, clock), verifier, notifier,
		audit.NewRecorder(audit.NewAuditEventRepository(db)),
		Config{Now: clock.Now})
	return &fixture{db, repo, clock, notifier, verifier, flow, acc}
}

func (f *fixture) events(t *testing.T, eventType audit.EventType) []model.AuditEvent {
	t.Helper()
	events, err := audit.NewAuditEventRepository(f.db).Find(context.Background(), audit.Filter{Type: eventType})
	require.NoError(t, err)
	return events
}

func forEachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, setup(t, b))
		})
	}
}

func TestRequestAndRedeemOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		issued, err := f.flow.Request(ctx, "Alice")
		require.NoError(t, err)
		require.Len(t, issued.Token, 6)
		require.Regexp(t, "^[0-9]{6}$", issued.Token)
		require.Equal(t, f.clock.Now().Add(15*time.Minute), issued.ExpiresAt)
		require.Len(t, f.notifier.sent, 1)
		require.Equal(t, issued.Token, f.notifier.sent[0].code)

		f.clock.Advance(14 * time.Minute)
		require.NoError(t, f.flow.Redeem(ctx, "alice", issued.Token, "NewPass1!"))

		acc, err := f.repo.GetByID(ctx, f.account.ID)
		require.NoError(t, err)
		require.True(t, f.verifier.Verify("NewPass1!", acc.PasswordHash).Valid)
		require.False(t, acc.MustChangePassword)
		require.False(t, acc.FirstLogin)
		require.Zero(t, acc.FailedAttempts)

		err = f.flow.Redeem(ctx, "alice", issued.Token, "Another1!")
		require.ErrorIs(t, err, ErrInvalidOrExpired)

		require.Len(t, f.events(t, audit.EventPasswordResetRequest), 1)
		resets := f.events(t, audit.EventPasswordReset)
		require.Len(t, resets, 2)
		require.False(t, resets[0].Success)
		require.True(t, resets[1].Success)
	})
}

func TestTokenExpires(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		issued, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)

		f.clock.Advance(15 * time.Minute)
		require.ErrorIs(t, f.flow.Redeem(ctx, "alice", issued.Token, "NewPass1!"), ErrInvalidOrExpired)
	})
}

func TestNewRequestSupersedesOldToken(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		first, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		second, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)

		if first.Token != second.Token {
			require.ErrorIs(t, f.flow.Redeem(ctx, "alice", first.Token, "NewPass1!"), ErrInvalidOrExpired)
		}
		require.NoError(t, f.flow.Redeem(ctx, "alice", second.Token, "NewPass1!"))
	})
}

func TestWeakPasswordKeepsToken(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		issued, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)

		err = f.flow.Redeem(ctx, "alice", issued.Token, "weak")
		var violation *password.PolicyViolation
		require.ErrorAs(t, err, &violation)

		require.NoError(t, f.flow.Redeem(ctx, "alice", issued.Token, "NewPass1!"))
	})
}

func TestWrongTokenRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		issued, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)

		wrong := "000000"
		if issued.Token == wrong {
			wrong = "111111"
		}
		require.ErrorIs(t, f.flow.Redeem(ctx, "alice", wrong, "NewPass1!"), ErrInvalidOrExpired)
		require.ErrorIs(t, f.flow.Redeem(ctx, "bob", issued.Token, "NewPass1!"), ErrInvalidOrExpired)
	})
}

func TestConcurrentRedemptionSucceedsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		issued, err := f.flow.Request(ctx, "alice")
		require.NoError(t, err)

		const workers = 4
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			redeemed int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := f.flow.Redeem(ctx, "alice", issued.Token, "NewPass1!")
				if err == nil {
					mu.Lock()
					redeemed++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrInvalidOrExpired)
			}()
		}
		wg.Wait()
		require.Equal(t, 1, redeemed)
	})
}

func TestRequestRejectsUnknownAndInactive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		_, err := f.flow.Request(ctx, "nobody")
		require.ErrorIs(t, err, ErrRequestRejected)

		_, err = accounts.Mutate(ctx, f.repo, f.account.ID, func(acc *model.Account) ([]string, error) {
			acc.IsActive = false
			return []string{"is_active"}, nil
		})
		require.NoError(t, err)
		_, err = f.flow.Request(ctx, "alice")
		require.ErrorIs(t, err, ErrRequestRejected)
		require.Empty(t, f.notifier.sent)
	})
}
