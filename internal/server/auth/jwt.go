// Package auth holds the stateless credential primitives: the signed access
// token codec and password hashing.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the access token payload. The subject carries the account id.
type Claims struct {
	jwt.RegisteredClaims
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Role     models.Role   `json:"role"`
	Status   models.Status `json:"status"`
	Verified bool          `json:"verified"`
}

// Identity is what the guard learns about a caller from a valid token.
type Identity struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Role     models.Role   `json:"role"`
	Status   models.Status `json:"status"`
	Verified bool          `json:"isVerified"`
}

// Codec signs and validates HS256 access tokens for one issuer/audience pair.
// Expiry is enforced with zero clock skew.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewCodec(secret []byte, issuer, audience string, ttl time.Duration) *Codec {
	return &Codec{secret: secret, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// TTL is the lifetime stamped on every token this codec issues.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue mints an access token for account and returns it with its expiry.
func (c *Codec) Issue(account *models.Account) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
		Status:   account.Status,
		Verified: account.IsVerified,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates signature, algorithm, issuer, audience and expiry and
// returns the embedded identity. Expired tokens yield common.ErrTokenExpired,
// every other failure common.ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return &Identity{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
		Status:   claims.Status,
		Verified: claims.Verified,
	}, nil
}
