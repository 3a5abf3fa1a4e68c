package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/lockout"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/internal/recovery"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/internal/testutil"
	"github.com/khanghh/kguard/internal/twofactor"
	"github.com/khanghh/kguard/model"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type mailbox struct {
	mu      sync.Mutex
	codes   map[string]string
	welcome map[string]string
}

func (m *mailbox) SendPasswordResetCode(ctx context.Context, account *model.Account, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[account.Username] = code
	return nil
}

func (m *mailbox) SendWelcome(ctx context.Context, account *model.Account, tempPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcome[account.Username] = tempPassword
	return nil
}

type fixture struct {
	db       *gorm.DB
	repo     accounts.AccountRepository
	clock    *testutil.Clock
	verifier *password.Verifier
	events   audit.AuditEventRepository
	mailbox  *mailbox
	svc      *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := accounts.NewAccountRepository(db)
	clock := testutil.NewClock(time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC))
	verifier, err := password.DefaultVerifier(password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	events := audit.NewAuditEventRepository(db)
	recorder := audit.NewRecorder(events)
	box := &mailbox{codes: map[string]string{}, welcome: map[string]string{}}
	tickets := store.NewMemoryStorage(time.Minute)
	t.Cleanup(func() { tickets.Close() })

	flow := recovery.NewFlow(repo, recovery.NewDBTokenStore(db), verifier, box, recorder, recovery.Config{Now: clock.Now})
	svc, err := NewService(Options{
		Accounts:          repo,
		Verifier:          verifier,
		PrimaryGuard:      lockout.NewPrimaryGuard(repo, lockout.DefaultPrimaryPolicy(), lockout.WithClock(clock.Now)),
		SecondFactorGuard: lockout.NewSecondFactorGuard(repo, lockout.DefaultSecondFactorPolicy(), lockout.WithClock(clock.Now)),
		TwoFactor:         twofactor.NewAuthenticator(repo, "test-master-key", twofactor.WithClock(clock.Now)),
		Tickets:           twofactor.NewChallenger("test-master-key", 0, twofactor.WithTicketClock(clock.Now), twofactor.WithTicketStore(tickets)),
		Recovery:          flow,
		Notifier:          box,
		Auditor:           recorder,
		Now:               clock.Now,
	})
	require.NoError(t, err)
	return &fixture{db: db, repo: repo, clock: clock, verifier: verifier, events: events, mailbox: box, svc: svc}
}

func (f *fixture) createAccount(t *testing.T, username string, plaintext string, edit func(*model.Account)) *model.Account {
	t.Helper()
	hash, err := f.verifier.Hash(plaintext)
	require.NoError(t, err)
	acc := &model.Account{
		Username:     username,
		Email:        username + "@example.com",
		Role:         model.RoleUser,
		IsActive:     true,
		PasswordHash: hash,
		HashScheme:   string(password.SchemeArgon2id),
	}
	if edit != nil {
		edit(acc)
	}
	require.NoError(t, f.repo.Create(context.Background(), acc))
	return acc
}

func (f *fixture) reload(t *testing.T, username string) *model.Account {
	t.Helper()
	acc, err := f.repo.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return acc
}

func (f *fixture) eventsOf(t *testing.T, username string, eventType audit.EventType) []model.AuditEvent {
	t.Helper()
	events, err := f.events.Find(context.Background(), audit.Filter{Username: username, Type: eventType})
	require.NoError(t, err)
	return events
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestAuthenticateSuccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", nil)

	res, err := f.svc.Authenticate(ctx, "  Alice ", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Ticket)

	stored := f.reload(t, "alice")
	require.NotNil(t, stored.LastLoginAt)
	require.True(t, stored.LastLoginAt.Equal(f.clock.Now()))
	require.Len(t, f.eventsOf(t, "alice", audit.EventLoginSuccess), 1)
}

func TestAuthenticateLocksOnThreshold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", nil)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredential)
	}
	require.Equal(t, uint(4), f.reload(t, "alice").FailedAttempts)

	_, err := f.svc.Authenticate(ctx, "alice", "wrong")
	var locked *AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 5*time.Minute, locked.Remaining)

	// the correct password is refused while locked
	f.clock.Advance(time.Minute)
	_, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 4*time.Minute, locked.Remaining)

	fails := f.eventsOf(t, "alice", audit.EventLoginFail)
	require.Len(t, fails, 6)
	require.Equal(t, audit.ReasonAccountLocked, fails[0].Metadata["reason"])
	require.Equal(t, "240", fails[0].Metadata["wait_seconds"])
	require.Equal(t, audit.ReasonInvalidPassword, fails[1].Metadata["reason"])
	require.Equal(t, "true", fails[1].Metadata["account_locked_now"])

	f.clock.Advance(4*time.Minute + time.Second)
	res, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	stored := f.reload(t, "alice")
	require.Zero(t, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Authenticate(context.Background(), "ghost", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredential)

	events := f.eventsOf(t, "ghost", audit.EventLoginFail)
	require.Len(t, events, 1)
	require.Nil(t, events[0].AccountID)
	require.Equal(t, audit.ReasonUserNotFound, events[0].Metadata["reason"])
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", nil)
	require.NoError(t, f.svc.SetActive(ctx, "alice", false))

	_, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.ErrorIs(t, err, ErrAccountInactive)
	_, err = f.svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrAccountInactive)

	require.Zero(t, f.reload(t, "alice").FailedAttempts)
	require.Len(t, f.eventsOf(t, "alice", audit.EventAccountDeactivate), 1)

	require.NoError(t, f.svc.SetActive(ctx, "alice", true))
	_, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
}

func TestAuthenticateRehashesLegacyHash(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sum := sha256.Sum256([]byte("Legacy1!"))
	f.createAccount(t, "alice", "unused", func(acc *model.Account) {
		acc.PasswordHash = hex.EncodeToString(sum[:])
		acc.HashScheme = string(password.SchemeSHA256)
	})

	res, err := f.svc.Authenticate(ctx, "alice", "Legacy1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	stored := f.reload(t, "alice")
	require.Equal(t, string(password.SchemeArgon2id), stored.HashScheme)
	outcome := f.verifier.Verify("Legacy1!", stored.PasswordHash)
	require.True(t, outcome.Valid)
	require.False(t, outcome.RehashNeeded)

	events := f.eventsOf(t, "alice", audit.EventPasswordRehash)
	require.Len(t, events, 1)
	require.Equal(t, "sha256", events[0].Metadata["from"])
}

func TestForcedPasswordChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, temp, err := f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "Bob", Email: "Bob@Example.com"})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NotEmpty(t, temp)
	require.Equal(t, temp, f.mailbox.welcome["bob"])

	res, err := f.svc.Authenticate(ctx, "bob", temp)
	require.NoError(t, err)
	require.Equal(t, StatusPasswordChangeRequired, res.Status)
	require.NotEmpty(t, res.Ticket)
	require.Len(t, f.eventsOf(t, "bob", audit.EventLoginForcedChange), 1)

	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, "123456")
	require.ErrorIs(t, err, ErrInvalidTicket)

	var violation *password.PolicyViolation
	_, err = f.svc.CompletePasswordChange(ctx, res.Ticket, "short")
	require.ErrorAs(t, err, &violation)
	require.Equal(t, password.TooShort, violation.Kind)

	_, err = f.svc.CompletePasswordChange(ctx, res.Ticket, temp)
	require.ErrorAs(t, err, &violation)
	require.Equal(t, password.SameAsCurrent, violation.Kind)

	done, err := f.svc.CompletePasswordChange(ctx, res.Ticket, "NewPass1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, done.Status)
	require.False(t, done.Account.MustChangePassword)
	require.False(t, done.Account.FirstLogin)

	_, err = f.svc.CompletePasswordChange(ctx, res.Ticket, "Another1!")
	require.ErrorIs(t, err, ErrInvalidTicket)

	res, err = f.svc.Authenticate(ctx, "bob", "NewPass1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
}

func TestFirstLoginBypassForAdmins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "root", "Correct1!", func(acc *model.Account) {
		acc.Role = model.RoleAdmin
		acc.FirstLogin = true
	})
	f.createAccount(t, "carol", "Correct1!", func(acc *model.Account) {
		acc.FirstLogin = true
	})

	res, err := f.svc.Authenticate(ctx, "root", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	res, err = f.svc.Authenticate(ctx, "carol", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusPasswordChangeRequired, res.Status)
}

func TestTwoFactorLockout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", func(acc *model.Account) {
		acc.TOTPEnabled = true
		acc.TOTPSecret = testSecret
	})

	res, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusTwoFactorRequired, res.Status)
	require.Nil(t, f.reload(t, "alice").LastLoginAt)

	wrong := totpCode(t, testSecret, f.clock.Now().Add(10*time.Minute))
	for i := 0; i < 2; i++ {
		_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, wrong)
		require.ErrorIs(t, err, ErrTwoFactorFailed)
	}
	var locked *TwoFactorLockedError
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, wrong)
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 5*time.Minute, locked.Remaining)

	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, totpCode(t, testSecret, f.clock.Now()))
	require.ErrorAs(t, err, &locked)

	fails := f.eventsOf(t, "alice", audit.EventLogin2FAFail)
	require.Len(t, fails, 3)
	require.Equal(t, "true", fails[0].Metadata["locked"])
	require.Len(t, f.eventsOf(t, "alice", audit.EventLogin2FALocked), 1)

	stored := f.reload(t, "alice")
	require.Equal(t, uint(3), stored.TwoFAFailedAttempts)
	require.Zero(t, stored.FailedAttempts)

	f.clock.Advance(5*time.Minute + time.Second)
	res, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusTwoFactorRequired, res.Status)

	done, err := f.svc.SubmitTwoFactor(ctx, res.Ticket, totpCode(t, testSecret, f.clock.Now()))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, done.Status)
	require.Zero(t, done.Account.TwoFAFailedAttempts)
	require.NotNil(t, done.Account.LastLoginAt)

	successes := f.eventsOf(t, "alice", audit.EventLogin2FASuccess)
	require.Len(t, successes, 1)
	require.Equal(t, "totp", successes[0].Metadata["method"])
}

func TestTwoFactorRejectedTicketIsAudited(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", func(acc *model.Account) {
		acc.TOTPEnabled = true
		acc.TOTPSecret = testSecret
	})

	res, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, totpCode(t, testSecret, f.clock.Now()))
	require.NoError(t, err)

	// consumed
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, totpCode(t, testSecret, f.clock.Now()))
	require.ErrorIs(t, err, ErrInvalidTicket)

	// expired
	f.clock.Advance(time.Minute)
	res, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, totpCode(t, testSecret, f.clock.Now()))
	require.ErrorIs(t, err, ErrInvalidTicket)

	fails := f.eventsOf(t, "alice", audit.EventLogin2FAFail)
	require.Len(t, fails, 2)
	for _, event := range fails {
		require.Equal(t, audit.ReasonInvalidToken, event.Metadata["reason"])
		require.False(t, event.Success)
	}

	// garbage cannot be attributed to an account
	_, err = f.svc.SubmitTwoFactor(ctx, "not-a-ticket", "123456")
	require.ErrorIs(t, err, ErrInvalidTicket)
	require.Len(t, f.eventsOf(t, "alice", audit.EventLogin2FAFail), 2)

	// rejected tickets do not count toward the second factor lockout
	require.Zero(t, f.reload(t, "alice").TwoFAFailedAttempts)
}

func TestTwoFactorBackupCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	acc := f.createAccount(t, "alice", "Correct1!", nil)

	enrollment, err := f.svc.BeginTwoFactorEnrollment(ctx, acc.ID)
	require.NoError(t, err)
	_, err = f.svc.EnableTwoFactor(ctx, acc.ID, enrollment.Secret, "000000x")
	require.ErrorIs(t, err, twofactor.ErrTOTPVerifyFailed)

	codes, err := f.svc.EnableTwoFactor(ctx, acc.ID, enrollment.Secret, totpCode(t, enrollment.Secret, f.clock.Now()))
	require.NoError(t, err)
	require.Len(t, codes, 10)

	res, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	done, err := f.svc.SubmitTwoFactor(ctx, res.Ticket, codes[0])
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, done.Status)

	// the ticket and the backup code are single use
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, codes[1])
	require.ErrorIs(t, err, ErrInvalidTicket)

	res, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, codes[0])
	require.ErrorIs(t, err, ErrTwoFactorFailed)

	regenerated, err := f.svc.RegenerateBackupCodes(ctx, acc.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, codes[1])
	require.ErrorIs(t, err, ErrTwoFactorFailed)
	_, err = f.svc.SubmitTwoFactor(ctx, res.Ticket, regenerated[0])
	require.NoError(t, err)

	require.NoError(t, f.svc.DisableTwoFactor(ctx, acc.ID))
	res, err = f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, f.eventsOf(t, "alice", audit.EventTwoFADisable), 1)
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	f := setup(t)
	f.createAccount(t, "alice", "Correct1!", nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Authenticate(context.Background(), "alice", "wrong")
			assert.Error(t, err)
		}()
	}
	wg.Wait()

	stored := f.reload(t, "alice")
	require.Equal(t, uint(5), stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
}

func TestStorageFailureIsNotACredentialError(t *testing.T) {
	f := setup(t)
	f.createAccount(t, "alice", "Correct1!", nil)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.Authenticate(context.Background(), "alice", "Correct1!")
	require.ErrorIs(t, err, ErrStorage)
	require.NotErrorIs(t, err, ErrInvalidCredential)
}

func TestPasswordReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "OldPass1!", nil)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost"))
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ALICE"))
	code := f.mailbox.codes["alice"]
	require.Len(t, code, 6)

	wrong := "9" + code[1:]
	if wrong == code {
		wrong = "8" + code[1:]
	}
	require.ErrorIs(t, f.svc.RedeemPasswordReset(ctx, "alice", wrong, "NewPass1!"), ErrInvalidOrExpired)

	var violation *password.PolicyViolation
	require.ErrorAs(t, f.svc.RedeemPasswordReset(ctx, "alice", code, "weak"), &violation)

	require.NoError(t, f.svc.RedeemPasswordReset(ctx, "alice", code, "NewPass1!"))
	require.ErrorIs(t, f.svc.RedeemPasswordReset(ctx, "alice", code, "Other1!x"), ErrInvalidOrExpired)

	_, err := f.svc.Authenticate(ctx, "alice", "OldPass1!")
	require.ErrorIs(t, err, ErrInvalidCredential)
	res, err := f.svc.Authenticate(ctx, "alice", "NewPass1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
}

func TestChangePassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "OldPass1!", nil)

	require.ErrorIs(t, f.svc.ChangePassword(ctx, "alice", "wrong", "NewPass1!"), ErrInvalidCredential)
	require.Equal(t, uint(1), f.reload(t, "alice").FailedAttempts)

	var violation *password.PolicyViolation
	require.ErrorAs(t, f.svc.ChangePassword(ctx, "alice", "OldPass1!", "OldPass1!"), &violation)
	require.Equal(t, password.SameAsCurrent, violation.Kind)

	require.NoError(t, f.svc.ChangePassword(ctx, "alice", "OldPass1!", "NewPass1!"))
	require.Zero(t, f.reload(t, "alice").FailedAttempts)

	res, err := f.svc.Authenticate(ctx, "alice", "NewPass1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
}

func TestProvisionAccountValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, temp, err := f.svc.ProvisionAccount(ctx, ProvisionRequest{
		Username: "dave",
		Email:    "dave@example.com",
		Role:     model.RoleAdmin,
		Password: "Supplied1!",
	})
	require.NoError(t, err)
	require.Empty(t, temp)
	require.Empty(t, f.mailbox.welcome["dave"])

	_, _, err = f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "DAVE", Email: "other@example.com"})
	require.ErrorIs(t, err, ErrUsernameTaken)
	_, _, err = f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "erin", Email: "Dave@example.com"})
	require.ErrorIs(t, err, ErrEmailTaken)
	_, _, err = f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "erin", Email: "erin@example.com", Role: "root"})
	require.ErrorIs(t, err, ErrInvalidRole)
	_, _, err = f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "erin", Email: "not-an-email"})
	require.ErrorIs(t, err, ErrInvalidEmail)

	var violation *password.PolicyViolation
	_, _, err = f.svc.ProvisionAccount(ctx, ProvisionRequest{Username: "erin", Email: "erin@example.com", Password: "abc"})
	require.ErrorAs(t, err, &violation)

	stored := f.reload(t, "dave")
	require.False(t, stored.MustChangePassword)
	require.True(t, stored.FirstLogin)
	require.Len(t, f.eventsOf(t, "dave", audit.EventUserCreate), 1)
}

func TestProvisionedAdminSkipsForcedChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, temp, err := f.svc.ProvisionAccount(ctx, ProvisionRequest{
		Username: "root",
		Email:    "root@example.com",
		Role:     model.RoleAdmin,
	})
	require.NoError(t, err)
	require.NotEmpty(t, temp)

	res, err := f.svc.Authenticate(ctx, "root", temp)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Ticket)
	require.Empty(t, f.eventsOf(t, "root", audit.EventLoginForcedChange))

	stored := f.reload(t, "root")
	require.False(t, stored.MustChangePassword)
	require.True(t, stored.FirstLogin)
}

func TestUnlock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createAccount(t, "alice", "Correct1!", nil)
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, "alice", "wrong")
	}
	var locked *AccountLockedError
	_, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.ErrorAs(t, err, &locked)

	require.NoError(t, f.svc.Unlock(ctx, "alice"))
	res, err := f.svc.Authenticate(ctx, "alice", "Correct1!")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, f.eventsOf(t, "alice", audit.EventAccountUnlock), 1)

	require.ErrorIs(t, f.svc.Unlock(ctx, "ghost"), ErrAccountNotFound)
}
