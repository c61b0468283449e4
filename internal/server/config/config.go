// Package config handles configuration for the starauth server: defaults,
// an optional JSON or YAML file overlay and command-line flags, applied in
// that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds runtime settings for the starauth server.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration

	// RequireVerifiedEmail makes login refuse accounts that have not
	// confirmed their email address.
	RequireVerifiedEmail bool
	PasswordHasher       string

	AccessCookie CookieConfig

	LogLevel  string
	LogFormat string

	Mail MailConfig

	// RedisAddr enables the login throttle when set.
	RedisAddr        string
	LoginMaxAttempts int
	LoginWindow      time.Duration

	CleanupSchedule string
	DiagnosticsAddr string
	ShutdownTimeout time.Duration
}

// CookieConfig controls the optional access-token cookie transport.
type CookieConfig struct {
	Enabled bool
	Name    string
	Secure  bool
}

// MailConfig selects and configures the verification email sender.
type MailConfig struct {
	Provider     string
	From         string
	FrontendURL  string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	WebhookURL   string
	SendTimeout  time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: the JWT secret default is insecure and must be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.DatabaseDSN = ""
	c.JWTSecret = "secretKey"
	c.JWTIssuer = "starauth"
	c.JWTAudience = "starauth-clients"
	c.AccessTokenTTL = 2 * time.Hour
	c.RefreshTokenTTL = 7 * 24 * time.Hour
	c.VerificationTokenTTL = 24 * time.Hour
	c.RequireVerifiedEmail = false
	c.PasswordHasher = "argon2id"
	c.AccessCookie = CookieConfig{Enabled: true, Name: "jwt", Secure: true}
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.Mail = MailConfig{
		Provider:    "log",
		From:        "no-reply@starauth.local",
		FrontendURL: "http://localhost:3000",
		SMTPPort:    587,
		SendTimeout: 10 * time.Second,
	}
	c.RedisAddr = ""
	c.LoginMaxAttempts = 10
	c.LoginWindow = 15 * time.Minute
	c.CleanupSchedule = "@every 1h"
	c.DiagnosticsAddr = ""
	c.ShutdownTimeout = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}

// Validate normalizes the case-insensitive settings and rejects settings
// the server cannot run with.
func (c *Config) Validate() error {
	c.normalize()

	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is empty"))
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		errs = append(errs, errors.New("jwt issuer and audience are required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerificationTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	switch c.PasswordHasher {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("unknown password hasher %q", c.PasswordHasher))
	}
	switch c.Mail.Provider {
	case "log":
	case "smtp":
		if c.Mail.SMTPHost == "" {
			errs = append(errs, errors.New("smtp mail provider needs a host"))
		}
	case "webhook":
		if c.Mail.WebhookURL == "" {
			errs = append(errs, errors.New("webhook mail provider needs a url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail provider %q", c.Mail.Provider))
	}
	if c.AccessCookie.Enabled && c.AccessCookie.Name == "" {
		errs = append(errs, errors.New("access cookie name is empty"))
	}
	if c.RedisAddr != "" && (c.LoginMaxAttempts <= 0 || c.LoginWindow <= 0) {
		errs = append(errs, errors.New("login throttle needs positive attempts and window"))
	}

	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.PasswordHasher = strings.ToLower(strings.TrimSpace(c.PasswordHasher))
	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}
