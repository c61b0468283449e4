package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/starauth/internal/server/services"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// allowLogin consults the login throttle. When the throttle backend fails
// the attempt is let through and the failure logged.
func (s *Server) allowLogin(ctx context.Context, key string) (bool, time.Duration) {
	d, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "login throttle unavailable", "error", err)
		return true, 0
	}
	return d.Allowed, d.RetryAfter
}

func (s *Server) resetLogin(ctx context.Context, key string) {
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.logger.Warn(ctx, "login throttle reset failed", "error", err)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, services.KindTooManyRequests, "too many login attempts, try again later")
}
