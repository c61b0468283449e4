package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/starauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string    HTTP bind address (e.g. ":8080")
//	-d string    PostgreSQL DSN; empty keeps the in-memory store
//	-s string    JWT HMAC secret
//	-i string    JWT issuer
//	-aud string  JWT audience
//	-t int       access token lifetime, minutes
//	-r int       refresh token lifetime, minutes
//	-verified    require a verified email to log in
//	-hasher      password hasher for new hashes (argon2id, bcrypt)
//	-l string    log level
//	-redis       Redis address for the login throttle
//	-gops        gops diagnostics agent address
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-i", "-aud", "-t", "-r", "-verified", "-hasher", "-l", "-redis", "-gops",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "jwt secret key")
	fs.StringVar(&config.JWTIssuer, "i", config.JWTIssuer, "jwt issuer")
	fs.StringVar(&config.JWTAudience, "aud", config.JWTAudience, "jwt audience")

	accessTokenTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access token lifetime (in minutes)")
	refreshTokenTTL := fs.Int("r", int(config.RefreshTokenTTL.Minutes()), "refresh token lifetime (in minutes)")

	fs.BoolVar(&config.RequireVerifiedEmail, "verified", config.RequireVerifiedEmail, "require verified email on login")
	fs.StringVar(&config.PasswordHasher, "hasher", config.PasswordHasher, "password hasher (argon2id, bcrypt)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for login throttling")
	fs.StringVar(&config.DiagnosticsAddr, "gops", config.DiagnosticsAddr, "gops agent address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTokenTTL) * time.Minute
	config.RefreshTokenTTL = time.Duration(*refreshTokenTTL) * time.Minute
}
