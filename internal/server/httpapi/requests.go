package httpapi

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// normalize trims the identifying fields. Passwords are taken as sent.
func (r *registerRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate runs validation rules. Passwords are capped at 72 bytes, the
// bcrypt input limit.
func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(0, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r *refreshRequest) normalize() {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

func (r *resendVerificationRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r resendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.ConfirmPassword, validation.Required,
			validation.In(r.NewPassword).Error("passwords do not match")),
	)
}

type updateAccountRequest struct {
	Role       *string `json:"role"`
	Status     *string `json:"status"`
	IsLocked   *bool   `json:"isLocked"`
	IsDisabled *bool   `json:"isDisabled"`
}

func (r updateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.NilOrNotEmpty,
			validation.In(string(models.RoleUser), string(models.RoleEditor), string(models.RoleAdmin))),
		validation.Field(&r.Status, validation.NilOrNotEmpty,
			validation.In(string(models.StatusPending), string(models.StatusActive), string(models.StatusInactive))),
	)
}

func (r updateAccountRequest) change() accounts.StateChange {
	var c accounts.StateChange
	if r.Role != nil {
		role := models.Role(*r.Role)
		c.Role = &role
	}
	if r.Status != nil {
		status := models.Status(*r.Status)
		c.Status = &status
	}
	c.IsLocked = r.IsLocked
	c.IsDisabled = r.IsDisabled
	return c
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message     string               `json:"message"`
	AccessToken string               `json:"accessToken"`
	TokenType   string               `json:"tokenType"`
	ExpiresIn   int64                `json:"expiresIn"`
	User        models.PublicAccount `json:"user"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
