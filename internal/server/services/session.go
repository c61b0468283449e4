// Package services contains server-side business logic. This file implements
// SessionService, which drives an account through registration, email
// verification, login, refresh-token rotation and logout.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/dbx"
	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/auth"
	"github.com/dmitrijs2005/starauth/internal/server/config"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Registration is what a caller gets back from Register.
type Registration struct {
	AccessToken string
	ExpiresIn   time.Duration
	Account     models.PublicAccount
}

// VerificationNotifier delivers verification tokens to their owners. It
// must not block on delivery.
type VerificationNotifier interface {
	SendVerification(ctx context.Context, email, username, token string)
}

// Recorder receives the outcome of each session operation.
type Recorder interface {
	AuthOperation(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) AuthOperation(string, string) {}

type Option func(*SessionService)

// WithClock replaces time.Now for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *SessionService) { s.recorder = r }
}

// SessionService provides the account session lifecycle:
// - Register: create pending accounts and send a verification email
// - VerifyEmail / ResendVerification: prove email ownership
// - Login: check credentials and account state, mint a token pair
// - Refresh: rotate the refresh token and mint a new access token
// - Logout: revoke the refresh token
// - ChangePassword: replace the password and end the refresh session
type SessionService struct {
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	hasher      auth.PasswordHasher
	notifier    VerificationNotifier
	logger      logging.Logger
	recorder    Recorder
	now         func() time.Time

	requireVerifiedEmail bool
	verificationTTL      time.Duration
	refreshTTL           time.Duration

	verification *VerificationTokens
	refresh      *RefreshTokens

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(
	m repomanager.RepositoryManager,
	codec *auth.Codec,
	hasher auth.PasswordHasher,
	notifier VerificationNotifier,
	logger logging.Logger,
	cfg *config.Config,
	opts ...Option,
) *SessionService {
	s := &SessionService{
		repomanager:          m,
		codec:                codec,
		hasher:               hasher,
		notifier:             notifier,
		logger:               logger.With("module", "session"),
		recorder:             nopRecorder{},
		now:                  time.Now,
		requireVerifiedEmail: cfg.RequireVerifiedEmail,
		verificationTTL:      cfg.VerificationTokenTTL,
		refreshTTL:           cfg.RefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.verification = NewVerificationTokens(s.verificationTTL, s.now)
	s.refresh = NewRefreshTokens(s.refreshTTL, s.now)
	return s
}

const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

// NormalizeEmail is the canonical stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a pending, unverified account, dispatches its
// verification email and returns an access token for it.
func (s *SessionService) Register(ctx context.Context, username, email, password string) (_ *Registration, err error) {
	defer s.observe("register", &err)

	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return nil, newError(KindValidation, "username, email and password are required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.fail(ctx, "error hashing password", err)
	}

	token, tokenExpiry, err := s.verification.Issue()
	if err != nil {
		return nil, s.fail(ctx, "error generating verification token", err)
	}

	now := s.now().UTC()
	account := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	account.SetVerificationToken(token, tokenExpiry)

	err = s.repomanager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		if _, err := repo.GetByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		if _, err := repo.GetByUsername(ctx, username); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		created, err := repo.Create(ctx, account)
		if err != nil {
			if errors.Is(err, common.ErrorConflict) {
				return newError(KindConflict, "user with this email or username already exists")
			}
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			s.logger.Warn(ctx, "registration rejected", "email", email, "username", username, "reason", se.Kind)
			return nil, se
		}
		return nil, s.fail(ctx, "error creating account", err)
	}

	s.notifier.SendVerification(ctx, account.Email, account.Username, token)

	accessToken, _, err := s.codec.Issue(account)
	if err != nil {
		return nil, s.fail(ctx, "error issuing access token", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID, "email", account.Email)

	return &Registration{
		AccessToken: accessToken,
		ExpiresIn:   s.codec.TTL(),
		Account:     account.Public(),
	}, nil
}

// VerifyEmail redeems a verification token. Status is left untouched.
func (s *SessionService) VerifyEmail(ctx context.Context, token string) (err error) {
	defer s.observe("verify_email", &err)

	repo := s.repomanager.Accounts(s.repomanager.Conn())
	account, err := s.verification.Redeem(ctx, repo, strings.TrimSpace(token))
	if err != nil {
		if KindOf(err) == KindServerError {
			s.logger.Error(ctx, "error verifying email", "error", err)
		} else {
			s.logger.Warn(ctx, "invalid or expired verification token used")
		}
		return err
	}

	s.logger.Info(ctx, "email verified", "account_id", account.ID)
	return nil
}

// ResendVerification issues a new verification token for an unverified
// account, superseding the previous one. Unknown and already verified
// emails succeed silently so the endpoint cannot be used to probe accounts.
func (s *SessionService) ResendVerification(ctx context.Context, email string) (err error) {
	defer s.observe("resend_verification", &err)

	email = NormalizeEmail(email)
	if email == "" {
		return newError(KindValidation, "email is required")
	}

	repo := s.repomanager.Accounts(s.repomanager.Conn())
	account, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "verification resend for unknown email", "email", email)
			return nil
		}
		return s.fail(ctx, "error looking up account", err)
	}
	if account.IsVerified {
		return nil
	}

	token, expiresAt, err := s.verification.Issue()
	if err != nil {
		return s.fail(ctx, "error generating verification token", err)
	}
	if err := repo.SetVerificationToken(ctx, account.ID, token, expiresAt, s.now().UTC()); err != nil {
		return s.fail(ctx, "error storing verification token", err)
	}

	s.notifier.SendVerification(ctx, account.Email, account.Username, token)
	s.logger.Info(ctx, "verification token reissued", "account_id", account.ID)
	return nil
}

// Login checks credentials and account state in a fixed order and, on
// success, replaces the stored refresh token with a new one.
func (s *SessionService) Login(ctx context.Context, email, password string) (_ *TokenPair, err error) {
	defer s.observe("login", &err)

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, newError(KindValidation, "email and password are required")
	}

	repo := s.repomanager.Accounts(s.repomanager.Conn())
	account, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// spend the same hashing effort as for a real account
			s.verifyDummy(password)
			s.logger.Warn(ctx, "login attempt for non-existent account", "email", email)
			return nil, ErrInvalidCredentials
		}
		return nil, s.fail(ctx, "error looking up account", err)
	}

	ok, err := s.hasher.Verify(account.PasswordHash, password)
	if err != nil {
		return nil, s.fail(ctx, "error verifying password", err)
	}
	if !ok {
		s.logger.Warn(ctx, "invalid password", "account_id", account.ID)
		return nil, ErrInvalidCredentials
	}

	if err := s.checkLoginState(account); err != nil {
		s.logger.Warn(ctx, "login refused", "account_id", account.ID, "reason", KindOf(err))
		return nil, err
	}

	accessToken, _, err := s.codec.Issue(account)
	if err != nil {
		return nil, s.fail(ctx, "error issuing access token", err)
	}

	refreshToken, expiresAt, err := s.refresh.Issue()
	if err != nil {
		return nil, s.fail(ctx, "error generating refresh token", err)
	}
	if err := repo.RecordLogin(ctx, account.ID, refreshToken, expiresAt, s.now().UTC()); err != nil {
		return nil, s.fail(ctx, "error storing refresh token", err)
	}

	s.logger.Info(ctx, "successful login", "account_id", account.ID)

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresIn: s.codec.TTL()}, nil
}

// Refresh exchanges a live refresh token for a new token pair. The
// presented token never validates again.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	defer s.observe("refresh", &err)

	repo := s.repomanager.Accounts(s.repomanager.Conn())

	account, err := s.refresh.Lookup(ctx, repo, strings.TrimSpace(refreshToken))
	if err != nil {
		s.logFailure(ctx, "invalid or expired refresh token used", err)
		return nil, err
	}

	if err := accountState(account); err != nil {
		s.logger.Warn(ctx, "refresh refused", "account_id", account.ID, "reason", KindOf(err))
		return nil, err
	}

	newToken, err := s.refresh.Rotate(ctx, repo, account.ID, account.RefreshToken)
	if err != nil {
		s.logFailure(ctx, "refresh token rotation lost", err, "account_id", account.ID)
		return nil, err
	}

	accessToken, _, err := s.codec.Issue(account)
	if err != nil {
		return nil, s.fail(ctx, "error issuing access token", err)
	}

	s.logger.Info(ctx, "tokens refreshed", "account_id", account.ID)

	return &TokenPair{AccessToken: accessToken, RefreshToken: newToken, ExpiresIn: s.codec.TTL()}, nil
}

// Logout revokes the refresh token of accountID. Access tokens already
// issued stay valid until they expire.
func (s *SessionService) Logout(ctx context.Context, accountID string) (err error) {
	defer s.observe("logout", &err)

	repo := s.repomanager.Accounts(s.repomanager.Conn())
	if err := s.refresh.Revoke(ctx, repo, accountID); err != nil {
		s.logger.Error(ctx, "error invalidating refresh token", "account_id", accountID, "error", err)
		return err
	}

	s.logger.Info(ctx, "refresh token invalidated", "account_id", accountID)
	return nil
}

// ChangePassword replaces the password of accountID after checking the
// current one. The refresh token is dropped with the old password, so every
// session has to log in again once its access token expires.
func (s *SessionService) ChangePassword(ctx context.Context, accountID, current, next string) (err error) {
	defer s.observe("change_password", &err)

	if current == "" {
		return newError(KindValidation, "current password is required")
	}
	if len(next) < minPasswordLen || len(next) > maxPasswordLen {
		return newError(KindValidation, "new password must be 8 to 72 characters")
	}

	repo := s.repomanager.Accounts(s.repomanager.Conn())
	account, err := repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrAccountNotFound
		}
		return s.fail(ctx, "error looking up account", err)
	}

	ok, err := s.hasher.Verify(account.PasswordHash, current)
	if err != nil {
		return s.fail(ctx, "error verifying password", err)
	}
	if !ok {
		s.logger.Warn(ctx, "password change with wrong current password", "account_id", account.ID)
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.fail(ctx, "error hashing password", err)
	}
	if err := repo.ChangePassword(ctx, account.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrAccountNotFound
		}
		return s.fail(ctx, "error storing password", err)
	}

	s.logger.Info(ctx, "password changed", "account_id", account.ID)
	return nil
}

func (s *SessionService) checkLoginState(account *models.Account) error {
	if s.requireVerifiedEmail && !account.IsVerified {
		return ErrEmailNotVerified
	}
	return accountState(account)
}

// accountState refuses sessions for accounts that are locked, pending,
// disabled or inactive, in that order.
func accountState(account *models.Account) error {
	switch {
	case account.IsLocked:
		return ErrAccountLocked
	case account.Status == models.StatusPending:
		return ErrAccountPending
	case account.IsDisabled:
		return ErrAccountDisabled
	case account.Status == models.StatusInactive:
		return ErrAccountInactive
	}
	return nil
}

func (s *SessionService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		secret, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		if hash, err := s.hasher.Hash(secret); err == nil {
			s.dummyHash = hash
		}
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

func (s *SessionService) fail(ctx context.Context, msg string, err error) error {
	s.logger.Error(ctx, msg, "error", err)
	return internalError(err)
}

func (s *SessionService) logFailure(ctx context.Context, msg string, err error, args ...any) {
	if KindOf(err) == KindServerError {
		s.logger.Error(ctx, msg, append(args, "error", err)...)
		return
	}
	s.logger.Warn(ctx, msg, args...)
}

func (s *SessionService) observe(operation string, err *error) {
	result := "success"
	if *err != nil {
		result = string(KindOf(*err))
	}
	s.recorder.AuthOperation(operation, result)
}
