package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
)

const tokenBytes = 32

// VerificationTokens issues and redeems single-use email ownership tokens.
// Tokens are URL-safe because they travel in a link.
type VerificationTokens struct {
	ttl time.Duration
	now func() time.Time
}

func NewVerificationTokens(ttl time.Duration, now func() time.Time) *VerificationTokens {
	return &VerificationTokens{ttl: ttl, now: now}
}

// Issue returns a fresh token and the moment it stops being redeemable.
func (m *VerificationTokens) Issue() (string, time.Time, error) {
	token, err := common.MakeRandURLSafeString(tokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, m.now().Add(m.ttl), nil
}

// Redeem consumes token and returns the now verified account. Unknown,
// already used and expired tokens are indistinguishable.
func (m *VerificationTokens) Redeem(ctx context.Context, repo accounts.Repository, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrInvalidVerifyToken
	}
	account, err := repo.RedeemVerificationToken(ctx, token, m.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidVerifyToken
		}
		return nil, internalError(err)
	}
	return account, nil
}

// RefreshTokens issues, rotates and revokes the single live session
// continuation token of an account.
type RefreshTokens struct {
	ttl time.Duration
	now func() time.Time
}

func NewRefreshTokens(ttl time.Duration, now func() time.Time) *RefreshTokens {
	return &RefreshTokens{ttl: ttl, now: now}
}

// Issue returns a fresh refresh token and its expiry.
func (m *RefreshTokens) Issue() (string, time.Time, error) {
	token, err := common.MakeRandBase64String(tokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, m.now().Add(m.ttl), nil
}

// Lookup finds the account currently holding token. A matching but expired
// token is revoked on the spot and reported as invalid.
func (m *RefreshTokens) Lookup(ctx context.Context, repo accounts.Repository, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrInvalidRefresh
	}
	account, err := repo.GetByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, internalError(err)
	}

	now := m.now()
	if !account.RefreshTokenExpiry.After(now) {
		if err := repo.RevokeRefreshToken(ctx, token, now); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, internalError(err)
		}
		return nil, ErrInvalidRefresh
	}
	return account, nil
}

// Rotate replaces oldToken with a new token as long as oldToken is still
// the stored one. A concurrent rotation that got there first makes this
// call fail with ErrInvalidRefresh.
func (m *RefreshTokens) Rotate(ctx context.Context, repo accounts.Repository, accountID, oldToken string) (string, error) {
	token, expiresAt, err := m.Issue()
	if err != nil {
		return "", internalError(err)
	}
	if err := repo.RotateRefreshToken(ctx, accountID, oldToken, token, expiresAt, m.now()); err != nil {
		if errors.Is(err, common.ErrorStaleToken) {
			return "", ErrInvalidRefresh
		}
		return "", internalError(err)
	}
	return token, nil
}

// Revoke drops whatever refresh token the account holds. A missing
// account is not an error.
func (m *RefreshTokens) Revoke(ctx context.Context, repo accounts.Repository, accountID string) error {
	err := repo.ClearRefreshToken(ctx, accountID, m.now())
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return internalError(err)
	}
	return nil
}
