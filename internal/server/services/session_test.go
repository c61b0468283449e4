package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/auth"
	"github.com/dmitrijs2005/starauth/internal/server/config"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	email, username, token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) SendVerification(ctx context.Context, email, username, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{email, username, token})
}

func (n *fakeNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no verification email was dispatched")
	return n.sent[len(n.sent)-1]
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string][]string
}

func (r *fakeRecorder) AuthOperation(operation, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string][]string)
	}
	r.results[operation] = append(r.results[operation], result)
}

type fixture struct {
	svc      *SessionService
	manager  *repomanager.MemoryRepositoryManager
	codec    *auth.Codec
	hasher   auth.PasswordHasher
	notifier *fakeNotifier
	clock    *fakeClock
	recorder *fakeRecorder
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{
		manager:  repomanager.NewMemoryRepositoryManager(),
		codec:    auth.NewCodec([]byte("test-secret"), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL),
		hasher:   auth.BcryptHasher{Cost: bcrypt.MinCost},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: time.Now().UTC()},
		recorder: &fakeRecorder{},
	}
	f.svc = NewSessionService(f.manager, f.codec, f.hasher, f.notifier, logging.Nop(), cfg,
		WithClock(f.clock.Now), WithRecorder(f.recorder))
	return f
}

func (f *fixture) repo() accounts.Repository {
	return f.manager.Accounts(f.manager.Conn())
}

// seed stores an active, verified account with the given password.
func (f *fixture) seed(t *testing.T, username, email, password string, mutate ...func(*models.Account)) *models.Account {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	a := &models.Account{
		Username: username, Email: email, PasswordHash: hash,
		Role: models.RoleUser, Status: models.StatusActive, IsVerified: true,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	for _, m := range mutate {
		m(a)
	}
	created, err := f.repo().Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func (f *fixture) activate(t *testing.T, id string) {
	t.Helper()
	active := models.StatusActive
	_, err := f.repo().UpdateState(context.Background(), id, accounts.StateChange{Status: &active}, f.clock.Now())
	require.NoError(t, err)
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, KindOf(err), "error: %v", err)
}

// --- Register ---

func TestRegister_CreatesPendingAccountAndDispatchesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "  alice ", " Alice@Example.COM ", "password123")
	require.NoError(t, err)

	assert.Equal(t, "alice", reg.Account.Username)
	assert.Equal(t, "alice@example.com", reg.Account.Email)
	assert.Equal(t, models.RoleUser, reg.Account.Role)
	assert.Equal(t, models.StatusPending, reg.Account.Status)
	assert.False(t, reg.Account.IsVerified)
	assert.Equal(t, 2*time.Hour, reg.ExpiresIn)

	id, err := f.codec.Parse(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, id.ID)
	assert.Equal(t, models.StatusPending, id.Status)

	stored, err := f.repo().GetByID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.PasswordHash)
	ok, err := f.hasher.Verify(stored.PasswordHash, "password123")
	require.NoError(t, err)
	assert.True(t, ok)

	mail := f.notifier.last(t)
	assert.Equal(t, "alice@example.com", mail.email)
	assert.Equal(t, stored.VerificationToken, mail.token)
	raw, err := base64.RawURLEncoding.DecodeString(mail.token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.True(t, stored.VerificationTokenExpiry.Equal(f.clock.Now().Add(24*time.Hour)))
}

func TestRegister_Uniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "alice2", "ALICE@example.com", "password123")
	requireKind(t, err, KindConflict)

	_, err = f.svc.Register(ctx, "alice", "other@example.com", "password123")
	requireKind(t, err, KindConflict)

	_, err = f.svc.Register(ctx, "Alice", "other@example.com", "password123")
	assert.NoError(t, err, "usernames are case-sensitive")
}

func TestRegister_RequiresFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), "  ", "a@example.com", "password123")
	requireKind(t, err, KindValidation)
}

// --- VerifyEmail ---

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	token := f.notifier.last(t).token

	require.NoError(t, f.svc.VerifyEmail(ctx, token))

	stored, err := f.repo().GetByID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.VerificationToken)
	assert.True(t, stored.VerificationTokenExpiry.IsZero())
	assert.Equal(t, models.StatusPending, stored.Status, "verification does not activate")

	err = f.svc.VerifyEmail(ctx, token)
	requireKind(t, err, KindInvalidToken)
}

func TestVerifyEmail_ExpiredAndUnknownLookTheSame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	token := f.notifier.last(t).token

	f.clock.Advance(24*time.Hour + time.Second)

	expiredErr := f.svc.VerifyEmail(ctx, token)
	unknownErr := f.svc.VerifyEmail(ctx, "no-such-token")
	emptyErr := f.svc.VerifyEmail(ctx, "")

	requireKind(t, expiredErr, KindInvalidToken)
	requireKind(t, unknownErr, KindInvalidToken)
	requireKind(t, emptyErr, KindInvalidToken)
	assert.Equal(t, expiredErr.Error(), unknownErr.Error())
}

// --- ResendVerification ---

func TestResendVerification_SupersedesOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	first := f.notifier.last(t).token

	require.NoError(t, f.svc.ResendVerification(ctx, "ALICE@example.com"))
	second := f.notifier.last(t).token
	assert.NotEqual(t, first, second)

	requireKind(t, f.svc.VerifyEmail(ctx, first), KindInvalidToken)
	require.NoError(t, f.svc.VerifyEmail(ctx, second))
}

func TestResendVerification_SilentForUnknownOrVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "bob", "bob@example.com", "password123")

	require.NoError(t, f.svc.ResendVerification(ctx, "nobody@example.com"))
	require.NoError(t, f.svc.ResendVerification(ctx, "bob@example.com"))
	assert.Empty(t, f.notifier.sent)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, " ALICE@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, 7200.0, pair.ExpiresIn.Seconds())

	raw, err := base64.StdEncoding.DecodeString(pair.RefreshToken)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	stored, err := f.repo().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)
	assert.True(t, stored.RefreshTokenExpiry.Equal(f.clock.Now().Add(7*24*time.Hour)))
	assert.True(t, stored.LastLoginAt.Equal(f.clock.Now()))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", "alice@example.com", "password123")

	_, unknown := f.svc.Login(ctx, "nobody@example.com", "password123")
	_, wrong := f.svc.Login(ctx, "alice@example.com", "wrong-password")

	requireKind(t, unknown, KindInvalidCredentials)
	requireKind(t, wrong, KindInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestLogin_StateChecksInOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Account)
		require bool
		want    Kind
	}{
		{"locked", func(a *models.Account) { a.IsLocked = true }, false, KindAccountLocked},
		{"pending", func(a *models.Account) { a.Status = models.StatusPending }, false, KindAccountPending},
		{"locked wins over pending", func(a *models.Account) {
			a.IsLocked = true
			a.Status = models.StatusPending
		}, false, KindAccountLocked},
		{"disabled", func(a *models.Account) { a.IsDisabled = true }, false, KindAccountDisabled},
		{"pending wins over disabled", func(a *models.Account) {
			a.IsDisabled = true
			a.Status = models.StatusPending
		}, false, KindAccountPending},
		{"inactive", func(a *models.Account) { a.Status = models.StatusInactive }, false, KindAccountInactive},
		{"unverified allowed by default", func(a *models.Account) { a.IsVerified = false }, false, ""},
		{"unverified refused when required", func(a *models.Account) { a.IsVerified = false }, true, KindEmailNotVerified},
		{"unverified check precedes lock", func(a *models.Account) {
			a.IsVerified = false
			a.IsLocked = true
		}, true, KindEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) { c.RequireVerifiedEmail = tt.require })
			f.seed(t, "alice", "alice@example.com", "password123", tt.mutate)

			pair, err := f.svc.Login(context.Background(), "alice@example.com", "password123")
			if tt.want == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, pair.RefreshToken)
				return
			}
			requireKind(t, err, tt.want)
		})
	}
}

func TestLogin_WrongPasswordBeatsAccountState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "alice", "alice@example.com", "password123", func(a *models.Account) { a.IsLocked = true })

	_, err := f.svc.Login(context.Background(), "alice@example.com", "nope")
	requireKind(t, err, KindInvalidCredentials)
}

func TestLogin_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", "alice@example.com", "password123")

	first, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, KindInvalidToken)
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

// --- Refresh ---

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	id, err := f.codec.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, a.ID, id.ID)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, KindInvalidToken)

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ExpiredTokenIsClearedAndRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	f.clock.Advance(7*24*time.Hour + time.Second)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, KindInvalidToken)

	stored, err := f.repo().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
	assert.True(t, stored.RefreshTokenExpiry.IsZero())
}

func TestRefresh_UnknownOrEmptyToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refresh(context.Background(), "")
	requireKind(t, err, KindInvalidToken)
	_, err = f.svc.Refresh(context.Background(), "bm9wZQ==")
	requireKind(t, err, KindInvalidToken)
}

func TestRefresh_RefusedAccountState(t *testing.T) {
	for _, tc := range []struct {
		name   string
		change accounts.StateChange
		want   Kind
	}{
		{"locked", accounts.StateChange{IsLocked: ptr(true)}, KindAccountLocked},
		{"disabled", accounts.StateChange{IsDisabled: ptr(true)}, KindAccountDisabled},
		{"back to pending", accounts.StateChange{Status: ptr(models.StatusPending)}, KindAccountPending},
		{"inactive", accounts.StateChange{Status: ptr(models.StatusInactive)}, KindAccountInactive},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.seed(t, "alice", "alice@example.com", "password123")

			pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
			require.NoError(t, err)

			_, err = f.repo().UpdateState(ctx, a.ID, tc.change, f.clock.Now())
			require.NoError(t, err)

			_, err = f.svc.Refresh(ctx, pair.RefreshToken)
			requireKind(t, err, tc.want)

			_, err = f.svc.Login(ctx, "alice@example.com", "password123")
			requireKind(t, err, tc.want)
		})
	}
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, invalid int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case KindOf(err) == KindInvalidToken:
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, invalid)
}

// --- Logout ---

func TestLogout_RevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, a.ID))
	require.NoError(t, f.svc.Logout(ctx, a.ID), "logout is idempotent")

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, KindInvalidToken)

	_, err = f.codec.Parse(pair.AccessToken)
	assert.NoError(t, err, "access token stays valid until it expires")
}

func TestLogout_UnknownAccountIsSuccess(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Logout(context.Background(), "missing"))
}

// --- end-to-end scenario ---

// --- change password ---

func TestChangePassword_EndsRefreshSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, a.ID, "password123", "correct-horse"))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, KindInvalidToken)

	_, err = f.svc.Login(ctx, "alice@example.com", "password123")
	requireKind(t, err, KindInvalidCredentials)

	_, err = f.svc.Login(ctx, "alice@example.com", "correct-horse")
	assert.NoError(t, err)
	assert.Equal(t, []string{"success"}, f.recorder.results["change_password"])
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, a.ID, "not-my-password", "correct-horse")
	requireKind(t, err, KindInvalidCredentials)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err, "session survives a failed change")
}

func TestChangePassword_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "alice", "alice@example.com", "password123")

	requireKind(t, f.svc.ChangePassword(ctx, a.ID, "", "correct-horse"), KindValidation)
	requireKind(t, f.svc.ChangePassword(ctx, a.ID, "password123", "short"), KindValidation)
	requireKind(t, f.svc.ChangePassword(ctx, "missing", "password123", "correct-horse"), KindNotFound)
}

func TestScenario_RegisterVerifyLoginRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reg.Account.Status)

	_, err = f.svc.Login(ctx, "alice@example.com", "password123")
	requireKind(t, err, KindAccountPending)

	token := f.notifier.last(t).token
	require.NoError(t, f.svc.VerifyEmail(ctx, token))
	requireKind(t, f.svc.VerifyEmail(ctx, token), KindInvalidToken)

	f.activate(t, reg.Account.ID)

	pairA, err := f.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	pairB, err := f.svc.Refresh(ctx, pairA.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pairA.RefreshToken)
	requireKind(t, err, KindInvalidToken)

	_, err = f.svc.Refresh(ctx, pairB.RefreshToken)
	require.NoError(t, err)

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	assert.Equal(t, []string{"AccountPending", "success"}, f.recorder.results["login"])
	assert.Equal(t, []string{"success", "InvalidToken", "success"}, f.recorder.results["refresh"])
}

// --- errors ---

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrEmailTaken))
	assert.Equal(t, KindInvalidToken, KindOf(errors.Join(errors.New("ctx"), ErrInvalidRefresh)))
	assert.Equal(t, KindServerError, KindOf(errors.New("boom")))
	assert.Equal(t, KindServerError, KindOf(common.ErrorNotFound))

	wrapped := internalError(errors.New("disk"))
	assert.ErrorContains(t, wrapped, "disk")
	assert.Equal(t, "ServerError: internal server error: disk", wrapped.Error())
}

func ptr[T any](v T) *T { return &v }
