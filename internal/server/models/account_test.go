package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRole_IsAtLeast(t *testing.T) {
	tests := []struct {
		role  Role
		other Role
		want  bool
	}{
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleEditor, RoleUser, true},
		{RoleEditor, RoleAdmin, false},
		{RoleUser, RoleEditor, false},
		{Role("root"), RoleUser, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.IsAtLeast(tt.other), "%s >= %s", tt.role, tt.other)
	}
}

func TestRoleAndStatus_Valid(t *testing.T) {
	assert.True(t, RoleEditor.Valid())
	assert.False(t, Role("User").Valid())
	assert.True(t, StatusInactive.Valid())
	assert.False(t, Status("banned").Valid())
}

func TestAccount_TokenPairsMoveTogether(t *testing.T) {
	a := &Account{}
	exp := time.Now().Add(time.Hour)

	a.SetVerificationToken("v", exp)
	a.SetRefreshToken("r", exp)
	assert.Equal(t, "v", a.VerificationToken)
	assert.Equal(t, exp, a.RefreshTokenExpiry)

	a.ClearVerificationToken()
	a.ClearRefreshToken()
	assert.Empty(t, a.VerificationToken)
	assert.True(t, a.VerificationTokenExpiry.IsZero())
	assert.Empty(t, a.RefreshToken)
	assert.True(t, a.RefreshTokenExpiry.IsZero())
}

func TestAccount_CloneIsIndependent(t *testing.T) {
	a := &Account{ID: "1", Username: "alice"}
	c := a.Clone()
	c.Username = "bob"
	assert.Equal(t, "alice", a.Username)

	var nilAccount *Account
	assert.Nil(t, nilAccount.Clone())
}

func TestAccount_PublicOmitsSecrets(t *testing.T) {
	a := &Account{
		ID:           "id-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$...",
		Role:         RoleUser,
		Status:       StatusPending,
		RefreshToken: "secret",
	}
	p := a.Public()
	assert.Equal(t, PublicAccount{
		ID:       "id-1",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     RoleUser,
		Status:   StatusPending,
	}, p)
}

func TestAccount_AdminView(t *testing.T) {
	a := &Account{ID: "1", Username: "alice", IsLocked: true, PasswordHash: "h", RefreshToken: "r"}

	v := a.Admin()
	assert.Equal(t, "alice", v.Username)
	assert.True(t, v.IsLocked)
	assert.Nil(t, v.LastLoginAt)

	a.LastLoginAt = time.Now()
	v = a.Admin()
	if assert.NotNil(t, v.LastLoginAt) {
		assert.True(t, v.LastLoginAt.Equal(a.LastLoginAt))
	}
}
