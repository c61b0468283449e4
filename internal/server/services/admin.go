package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/repomanager"
)

// AccountAdmin lets administrators inspect accounts and change their role,
// status and lock/disable flags. Locking or disabling an account also
// revokes its refresh token.
type AccountAdmin struct {
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewAccountAdmin(m repomanager.RepositoryManager, logger logging.Logger) *AccountAdmin {
	return &AccountAdmin{repomanager: m, logger: logger.With("module", "admin"), now: time.Now}
}

var ErrAccountNotFound = newError(KindNotFound, "account not found")

func (a *AccountAdmin) Get(ctx context.Context, id string) (*models.AdminAccount, error) {
	account, err := a.repomanager.Accounts(a.repomanager.Conn()).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrAccountNotFound
		}
		a.logger.Error(ctx, "error loading account", "account_id", id, "error", err)
		return nil, internalError(err)
	}
	v := account.Admin()
	return &v, nil
}

func (a *AccountAdmin) UpdateState(ctx context.Context, id string, change accounts.StateChange) (*models.AdminAccount, error) {
	if change.Role != nil && !change.Role.Valid() {
		return nil, newError(KindValidation, "role must be user, editor or admin")
	}
	if change.Status != nil && !change.Status.Valid() {
		return nil, newError(KindValidation, "status must be pending, active or inactive")
	}

	now := a.now().UTC()
	repo := a.repomanager.Accounts(a.repomanager.Conn())

	account, err := repo.UpdateState(ctx, id, change, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrAccountNotFound
		}
		a.logger.Error(ctx, "error updating account state", "account_id", id, "error", err)
		return nil, internalError(err)
	}

	if account.IsLocked || account.IsDisabled {
		if err := repo.ClearRefreshToken(ctx, id, now); err != nil && !errors.Is(err, common.ErrorNotFound) {
			a.logger.Error(ctx, "error revoking refresh token", "account_id", id, "error", err)
			return nil, internalError(err)
		}
		account.ClearRefreshToken()
	}

	a.logger.Info(ctx, "account state updated", "account_id", id,
		"role", account.Role, "status", account.Status,
		"locked", account.IsLocked, "disabled", account.IsDisabled)

	v := account.Admin()
	return &v, nil
}
