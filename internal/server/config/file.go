package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/starauth/internal/flagx"
	"github.com/dmitrijs2005/starauth/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for JSON and YAML files. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type FileConfig struct {
	HTTPAddr             string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN          string         `json:"database_dsn" yaml:"database_dsn"`
	JWTSecret            string         `json:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer            string         `json:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience          string         `json:"jwt_audience" yaml:"jwt_audience"`
	AccessTokenTTL       timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL      timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	VerificationTokenTTL timex.Duration `json:"verification_token_ttl" yaml:"verification_token_ttl"`
	RequireVerifiedEmail bool           `json:"require_verified_email" yaml:"require_verified_email"`
	PasswordHasher       string         `json:"password_hasher" yaml:"password_hasher"`
	AccessCookie         FileCookie     `json:"access_cookie" yaml:"access_cookie"`
	LogLevel             string         `json:"log_level" yaml:"log_level"`
	LogFormat            string         `json:"log_format" yaml:"log_format"`
	Mail                 FileMail       `json:"mail" yaml:"mail"`
	RedisAddr            string         `json:"redis_addr" yaml:"redis_addr"`
	LoginMaxAttempts     int            `json:"login_max_attempts" yaml:"login_max_attempts"`
	LoginWindow          timex.Duration `json:"login_window" yaml:"login_window"`
	CleanupSchedule      string         `json:"cleanup_schedule" yaml:"cleanup_schedule"`
	DiagnosticsAddr      string         `json:"diagnostics_addr" yaml:"diagnostics_addr"`
	ShutdownTimeout      timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type FileCookie struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Name    string `json:"name" yaml:"name"`
	Secure  bool   `json:"secure" yaml:"secure"`
}

type FileMail struct {
	Provider     string         `json:"provider" yaml:"provider"`
	From         string         `json:"from" yaml:"from"`
	FrontendURL  string         `json:"frontend_url" yaml:"frontend_url"`
	SMTPHost     string         `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int            `json:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string         `json:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string         `json:"smtp_password" yaml:"smtp_password"`
	WebhookURL   string         `json:"webhook_url" yaml:"webhook_url"`
	SendTimeout  timex.Duration `json:"send_timeout" yaml:"send_timeout"`
}

// parseFile overlays the file named by -c/-config onto config. Keys absent
// from the file keep their current values. The format follows the file
// extension: .yaml and .yml are YAML, anything else is JSON.
// Unreadable or malformed files panic.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := toFile(config)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fromFile(config, fc)
}

func toFile(c *Config) *FileConfig {
	return &FileConfig{
		HTTPAddr:             c.HTTPAddr,
		DatabaseDSN:          c.DatabaseDSN,
		JWTSecret:            c.JWTSecret,
		JWTIssuer:            c.JWTIssuer,
		JWTAudience:          c.JWTAudience,
		AccessTokenTTL:       timex.Duration{Duration: c.AccessTokenTTL},
		RefreshTokenTTL:      timex.Duration{Duration: c.RefreshTokenTTL},
		VerificationTokenTTL: timex.Duration{Duration: c.VerificationTokenTTL},
		RequireVerifiedEmail: c.RequireVerifiedEmail,
		PasswordHasher:       c.PasswordHasher,
		AccessCookie:         FileCookie(c.AccessCookie),
		LogLevel:             c.LogLevel,
		LogFormat:            c.LogFormat,
		Mail: FileMail{
			Provider:     c.Mail.Provider,
			From:         c.Mail.From,
			FrontendURL:  c.Mail.FrontendURL,
			SMTPHost:     c.Mail.SMTPHost,
			SMTPPort:     c.Mail.SMTPPort,
			SMTPUsername: c.Mail.SMTPUsername,
			SMTPPassword: c.Mail.SMTPPassword,
			WebhookURL:   c.Mail.WebhookURL,
			SendTimeout:  timex.Duration{Duration: c.Mail.SendTimeout},
		},
		RedisAddr:        c.RedisAddr,
		LoginMaxAttempts: c.LoginMaxAttempts,
		LoginWindow:      timex.Duration{Duration: c.LoginWindow},
		CleanupSchedule:  c.CleanupSchedule,
		DiagnosticsAddr:  c.DiagnosticsAddr,
		ShutdownTimeout:  timex.Duration{Duration: c.ShutdownTimeout},
	}
}

func fromFile(c *Config, f *FileConfig) {
	c.HTTPAddr = f.HTTPAddr
	c.DatabaseDSN = f.DatabaseDSN
	c.JWTSecret = f.JWTSecret
	c.JWTIssuer = f.JWTIssuer
	c.JWTAudience = f.JWTAudience
	c.AccessTokenTTL = f.AccessTokenTTL.Duration
	c.RefreshTokenTTL = f.RefreshTokenTTL.Duration
	c.VerificationTokenTTL = f.VerificationTokenTTL.Duration
	c.RequireVerifiedEmail = f.RequireVerifiedEmail
	c.PasswordHasher = f.PasswordHasher
	c.AccessCookie = CookieConfig(f.AccessCookie)
	c.LogLevel = f.LogLevel
	c.LogFormat = f.LogFormat
	c.Mail = MailConfig{
		Provider:     f.Mail.Provider,
		From:         f.Mail.From,
		FrontendURL:  f.Mail.FrontendURL,
		SMTPHost:     f.Mail.SMTPHost,
		SMTPPort:     f.Mail.SMTPPort,
		SMTPUsername: f.Mail.SMTPUsername,
		SMTPPassword: f.Mail.SMTPPassword,
		WebhookURL:   f.Mail.WebhookURL,
		SendTimeout:  f.Mail.SendTimeout.Duration,
	}
	c.RedisAddr = f.RedisAddr
	c.LoginMaxAttempts = f.LoginMaxAttempts
	c.LoginWindow = f.LoginWindow.Duration
	c.CleanupSchedule = f.CleanupSchedule
	c.DiagnosticsAddr = f.DiagnosticsAddr
	c.ShutdownTimeout = f.ShutdownTimeout.Duration
}
