// Package accounts is the credential store: durable Account records with
// their password hash and verification/refresh token fields.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/starauth/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when no
// row matches; inserts return common.ErrorConflict on a duplicate email
// (case-insensitive) or username (case-sensitive).
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.Account, error)

	// RedeemVerificationToken marks the account owning token as verified and
	// clears the token pair in one step. Unknown and expired tokens both
	// yield common.ErrorNotFound.
	RedeemVerificationToken(ctx context.Context, token string, now time.Time) (*models.Account, error)

	// SetVerificationToken replaces the verification token pair.
	SetVerificationToken(ctx context.Context, id, token string, expiresAt, now time.Time) error

	// RecordLogin overwrites the refresh token pair and stamps lastLoginAt.
	RecordLogin(ctx context.Context, id, refreshToken string, expiresAt, now time.Time) error

	// RotateRefreshToken swaps oldToken for newToken only while oldToken is
	// still the stored value, otherwise it returns common.ErrorStaleToken.
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt, now time.Time) error

	// ClearRefreshToken drops the refresh token pair of the account.
	ClearRefreshToken(ctx context.Context, id string, now time.Time) error

	// ChangePassword stores a new password hash and drops the refresh token
	// pair in the same update.
	ChangePassword(ctx context.Context, id, passwordHash string, now time.Time) error

	// RevokeRefreshToken drops the refresh token pair wherever it equals token.
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error

	// UpdateState applies the non-nil fields of change and returns the
	// updated account.
	UpdateState(ctx context.Context, id string, change StateChange, now time.Time) (*models.Account, error)
}

// StateChange is a partial update of the administrative fields of an
// account. Nil fields are left as they are.
type StateChange struct {
	Role       *models.Role
	Status     *models.Status
	IsLocked   *bool
	IsDisabled *bool
}

// Sweeper is an optional capability of a Repository that can bulk-clear
// expired token pairs.
type Sweeper interface {
	PurgeExpiredTokens(ctx context.Context, now time.Time) (PurgeResult, error)
}

// PurgeResult counts the token pairs cleared by a sweep.
type PurgeResult struct {
	RefreshTokens      int64
	VerificationTokens int64
}
