package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/dbx"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/google/uuid"
)

const accountColumns = `id, username, email, password_hash, role, status, is_verified,
		 verification_token, verification_token_expiry, refresh_token, refresh_token_expiry,
		 is_locked, is_disabled, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO accounts (id, username, email, password_hash, role, status, is_verified,
		 verification_token, verification_token_expiry, is_locked, is_disabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 `

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		string(account.Role), string(account.Status), account.IsVerified,
		nullString(account.VerificationToken), nullTime(account.VerificationTokenExpiry),
		account.IsLocked, account.IsDisabled, account.CreatedAt, account.UpdatedAt)

	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE lower(email) = lower($1)
		 `
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, username)
}

func (r *PostgresRepository) GetByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE refresh_token = $1
		 `
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) RedeemVerificationToken(ctx context.Context, token string, now time.Time) (*models.Account, error) {
	query :=
		`UPDATE accounts
		 SET is_verified = TRUE, verification_token = NULL, verification_token_expiry = NULL, updated_at = $2
		 WHERE verification_token = $1 AND verification_token_expiry > $2
		 RETURNING ` + accountColumns

	return r.getOne(ctx, query, token, now)
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, token string, expiresAt, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET verification_token = $2, verification_token_expiry = $3, updated_at = $4
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, common.ErrorNotFound, id, token, expiresAt, now)
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id, refreshToken string, expiresAt, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET refresh_token = $2, refresh_token_expiry = $3, last_login_at = $4, updated_at = $4
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, common.ErrorNotFound, id, refreshToken, expiresAt, now)
}

func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET refresh_token = $3, refresh_token_expiry = $4, updated_at = $5
		 WHERE id = $1 AND refresh_token = $2
		 `
	return r.execOne(ctx, query, common.ErrorStaleToken, id, oldToken, newToken, expiresAt, now)
}

func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET refresh_token = NULL, refresh_token_expiry = NULL, updated_at = $2
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, common.ErrorNotFound, id, now)
}

func (r *PostgresRepository) ChangePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET password_hash = $2, refresh_token = NULL, refresh_token_expiry = NULL, updated_at = $3
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, common.ErrorNotFound, id, passwordHash, now)
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET refresh_token = NULL, refresh_token_expiry = NULL, updated_at = $2
		 WHERE refresh_token = $1
		 `
	return r.execOne(ctx, query, common.ErrorNotFound, token, now)
}

func (r *PostgresRepository) UpdateState(ctx context.Context, id string, change StateChange, now time.Time) (*models.Account, error) {
	var role, status sql.NullString
	var locked, disabled sql.NullBool

	if change.Role != nil {
		role = sql.NullString{String: string(*change.Role), Valid: true}
	}
	if change.Status != nil {
		status = sql.NullString{String: string(*change.Status), Valid: true}
	}
	if change.IsLocked != nil {
		locked = sql.NullBool{Bool: *change.IsLocked, Valid: true}
	}
	if change.IsDisabled != nil {
		disabled = sql.NullBool{Bool: *change.IsDisabled, Valid: true}
	}

	query :=
		`UPDATE accounts
		 SET role = COALESCE($2, role), status = COALESCE($3, status),
		     is_locked = COALESCE($4, is_locked), is_disabled = COALESCE($5, is_disabled),
		     updated_at = $6
		 WHERE id = $1
		 RETURNING ` + accountColumns

	return r.getOne(ctx, query, id, role, status, locked, disabled, now)
}

func (r *PostgresRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (PurgeResult, error) {
	var res PurgeResult

	refresh, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET refresh_token = NULL, refresh_token_expiry = NULL
		 WHERE refresh_token IS NOT NULL AND refresh_token_expiry <= $1
		 `, now)
	if err != nil {
		return res, fmt.Errorf("db error: %w", err)
	}
	if res.RefreshTokens, err = refresh.RowsAffected(); err != nil {
		return res, fmt.Errorf("db error: %w", err)
	}

	verification, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET verification_token = NULL, verification_token_expiry = NULL
		 WHERE verification_token IS NOT NULL AND verification_token_expiry <= $1
		 `, now)
	if err != nil {
		return res, fmt.Errorf("db error: %w", err)
	}
	if res.VerificationTokens, err = verification.RowsAffected(); err != nil {
		return res, fmt.Errorf("db error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

// execOne runs an UPDATE that must touch exactly one row and reports
// noRows when it touched none.
func (r *PostgresRepository) execOne(ctx context.Context, query string, noRows error, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return noRows
	}
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var (
		a                                 models.Account
		role, status                      string
		verificationToken, refreshToken   sql.NullString
		verificationExpiry, refreshExpiry sql.NullTime
		lastLoginAt                       sql.NullTime
	)

	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &status, &a.IsVerified,
		&verificationToken, &verificationExpiry, &refreshToken, &refreshExpiry,
		&a.IsLocked, &a.IsDisabled, &lastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Role = models.Role(role)
	a.Status = models.Status(status)
	a.VerificationToken = verificationToken.String
	a.VerificationTokenExpiry = verificationExpiry.Time
	a.RefreshToken = refreshToken.String
	a.RefreshTokenExpiry = refreshExpiry.Time
	a.LastLoginAt = lastLoginAt.Time

	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
