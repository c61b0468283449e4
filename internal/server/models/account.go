// Package models holds the domain records persisted by starauth.
package models

import "time"

// Role is the authorization role embedded into access tokens.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:   1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// IsAtLeast reports whether r ranks at or above other in the
// user < editor < admin hierarchy. Unknown roles rank below everything.
func (r Role) IsAtLeast(other Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[other]
}

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Account is a registered identity together with its credential and
// session-token state.
//
// VerificationToken/VerificationTokenExpiry and RefreshToken/
// RefreshTokenExpiry are set and cleared as pairs. An empty token string
// means the pair is unset.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Status       Status
	IsVerified   bool

	VerificationToken       string
	VerificationTokenExpiry time.Time

	RefreshToken       string
	RefreshTokenExpiry time.Time

	IsLocked   bool
	IsDisabled bool

	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetVerificationToken stores a new verification token, superseding any
// earlier one.
func (a *Account) SetVerificationToken(token string, expiresAt time.Time) {
	a.VerificationToken = token
	a.VerificationTokenExpiry = expiresAt
}

// ClearVerificationToken drops the verification token pair.
func (a *Account) ClearVerificationToken() {
	a.VerificationToken = ""
	a.VerificationTokenExpiry = time.Time{}
}

// SetRefreshToken stores the single live refresh token for the account.
func (a *Account) SetRefreshToken(token string, expiresAt time.Time) {
	a.RefreshToken = token
	a.RefreshTokenExpiry = expiresAt
}

// ClearRefreshToken drops the refresh token pair.
func (a *Account) ClearRefreshToken() {
	a.RefreshToken = ""
	a.RefreshTokenExpiry = time.Time{}
}

// Clone returns a copy that shares no mutable state with a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// PublicAccount is the projection of an Account that is safe to return to
// clients. It never carries hashes or tokens.
type PublicAccount struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	Status     Status    `json:"status"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public returns the client-safe projection of a.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		Role:       a.Role,
		Status:     a.Status,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
	}
}

// AdminAccount extends PublicAccount with the state fields only
// administrators see.
type AdminAccount struct {
	PublicAccount
	IsLocked    bool       `json:"isLocked"`
	IsDisabled  bool       `json:"isDisabled"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (a *Account) Admin() AdminAccount {
	v := AdminAccount{
		PublicAccount: a.Public(),
		IsLocked:      a.IsLocked,
		IsDisabled:    a.IsDisabled,
		UpdatedAt:     a.UpdatedAt,
	}
	if !a.LastLoginAt.IsZero() {
		t := a.LastLoginAt
		v.LastLoginAt = &t
	}
	return v
}
