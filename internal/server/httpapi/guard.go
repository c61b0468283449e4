package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/server/auth"
	"github.com/dmitrijs2005/starauth/internal/server/config"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/services"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Guard authorizes requests from the access token alone. It never touches
// the credential store, so role and status are as of token issue time.
type Guard struct {
	codec  *auth.Codec
	cookie config.CookieConfig
}

func NewGuard(codec *auth.Codec, cookie config.CookieConfig) *Guard {
	return &Guard{codec: codec, cookie: cookie}
}

// Authenticate rejects requests without a valid access token with 401 and
// passes the token identity to next through the request context.
func (g *Guard) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := g.accessToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, services.KindUnauthorized, "missing access token")
			return
		}

		id, err := g.codec.Parse(token)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "access token expired"
			}
			writeError(w, http.StatusUnauthorized, services.KindUnauthorized, msg)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next(w, r.WithContext(ctx), ps)
	}
}

// RequireRoles authenticates the request and then admits only identities
// whose role is in roles; others get 403.
func (g *Guard) RequireRoles(next httprouter.Handle, roles ...models.Role) httprouter.Handle {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return g.Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := IdentityFrom(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, services.KindUnauthorized, "missing identity")
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			writeError(w, http.StatusForbidden, services.KindForbidden, "insufficient role")
			return
		}
		next(w, r, ps)
	})
}

// IdentityFrom returns the identity stored by Authenticate, or nil.
func IdentityFrom(ctx context.Context) *auth.Identity {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return id
}

// accessToken reads the bearer header first and falls back to the access
// cookie when the cookie transport is enabled.
func (g *Guard) accessToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if !g.cookie.Enabled {
		return ""
	}
	c, err := r.Cookie(g.cookie.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get(common.AuthorizationHeaderName))
	if h == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

func (g *Guard) setAccessCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	if !g.cookie.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   g.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (g *Guard) clearAccessCookie(w http.ResponseWriter) {
	if !g.cookie.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
