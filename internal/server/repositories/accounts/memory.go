package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory. It is used by tests
// and by DSN-less development runs. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*models.Account)}
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Username == account.Username || strings.EqualFold(a.Email, account.Email) {
			return nil, common.ErrorConflict
		}
		if account.VerificationToken != "" && a.VerificationToken == account.VerificationToken {
			return nil, common.ErrorConflict
		}
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	r.accounts[account.ID] = account.Clone()

	return account, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username == username })
}

func (r *MemoryRepository) GetByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(a *models.Account) bool { return a.RefreshToken == token })
}

func (r *MemoryRepository) RedeemVerificationToken(ctx context.Context, token string, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return nil, common.ErrorNotFound
	}
	for _, a := range r.accounts {
		if a.VerificationToken == token && a.VerificationTokenExpiry.After(now) {
			a.IsVerified = true
			a.ClearVerificationToken()
			a.UpdatedAt = now
			return a.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) SetVerificationToken(ctx context.Context, id, token string, expiresAt, now time.Time) error {
	return r.update(id, func(a *models.Account) error {
		a.SetVerificationToken(token, expiresAt)
		a.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepository) RecordLogin(ctx context.Context, id, refreshToken string, expiresAt, now time.Time) error {
	return r.update(id, func(a *models.Account) error {
		a.SetRefreshToken(refreshToken, expiresAt)
		a.LastLoginAt = now
		a.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt, now time.Time) error {
	err := r.update(id, func(a *models.Account) error {
		if oldToken == "" || a.RefreshToken != oldToken {
			return common.ErrorStaleToken
		}
		a.SetRefreshToken(newToken, expiresAt)
		a.UpdatedAt = now
		return nil
	})
	if err == common.ErrorNotFound {
		return common.ErrorStaleToken
	}
	return err
}

func (r *MemoryRepository) ClearRefreshToken(ctx context.Context, id string, now time.Time) error {
	return r.update(id, func(a *models.Account) error {
		a.ClearRefreshToken()
		a.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepository) ChangePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	return r.update(id, func(a *models.Account) error {
		a.PasswordHash = passwordHash
		a.ClearRefreshToken()
		a.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepository) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return common.ErrorNotFound
	}
	for _, a := range r.accounts {
		if a.RefreshToken == token {
			a.ClearRefreshToken()
			a.UpdatedAt = now
			return nil
		}
	}
	return common.ErrorNotFound
}

func (r *MemoryRepository) UpdateState(ctx context.Context, id string, change StateChange, now time.Time) (*models.Account, error) {
	var out *models.Account
	err := r.update(id, func(a *models.Account) error {
		if change.Role != nil {
			a.Role = *change.Role
		}
		if change.Status != nil {
			a.Status = *change.Status
		}
		if change.IsLocked != nil {
			a.IsLocked = *change.IsLocked
		}
		if change.IsDisabled != nil {
			a.IsDisabled = *change.IsDisabled
		}
		a.UpdatedAt = now
		out = a.Clone()
		return nil
	})
	return out, err
}

func (r *MemoryRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (PurgeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res PurgeResult
	for _, a := range r.accounts {
		if a.RefreshToken != "" && !a.RefreshTokenExpiry.After(now) {
			a.ClearRefreshToken()
			res.RefreshTokens++
		}
		if a.VerificationToken != "" && !a.VerificationTokenExpiry.After(now) {
			a.ClearVerificationToken()
			res.VerificationTokens++
		}
	}
	return res, nil
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) update(id string, fn func(*models.Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	return fn(a)
}
