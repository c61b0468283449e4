// Package httpapi is the REST transport of starauth: session endpoints,
// the authorization guard and operational endpoints.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/models"
	"github.com/dmitrijs2005/starauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/starauth/internal/server/services"
)

// Sessions is the session lifecycle the handlers drive.
type Sessions interface {
	Register(ctx context.Context, username, email, password string) (*services.Registration, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID, current, next string) error
}

// Accounts is the administrative account API.
type Accounts interface {
	Get(ctx context.Context, id string) (*models.AdminAccount, error)
	UpdateState(ctx context.Context, id string, change accounts.StateChange) (*models.AdminAccount, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Metrics is optional; nil disables /metrics and latency reporting.
type Metrics interface {
	RequestObserver
	Handler() http.Handler
}

type Deps struct {
	Sessions Sessions
	Accounts Accounts
	Guard    *Guard
	Limiter  ratelimit.Limiter
	Metrics  Metrics
	Ready    Pinger
	Logger   logging.Logger
}

type Server struct {
	address         string
	shutdownTimeout time.Duration

	sessions Sessions
	accounts Accounts
	guard    *Guard
	limiter  ratelimit.Limiter
	metrics  Metrics
	ready    Pinger
	logger   logging.Logger

	router *httprouter.Router
}

func NewServer(address string, shutdownTimeout time.Duration, d Deps) *Server {
	s := &Server{
		address:         address,
		shutdownTimeout: shutdownTimeout,
		sessions:        d.Sessions,
		accounts:        d.Accounts,
		guard:           d.Guard,
		limiter:         d.Limiter,
		metrics:         d.Metrics,
		ready:           d.Ready,
		logger:          d.Logger.With("module", "http_server"),
		router:          httprouter.New(),
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Noop{}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle(http.MethodPost, "/auth/register", s.register)
	s.handle(http.MethodGet, "/auth/verify-email", s.verifyEmail)
	s.handle(http.MethodPost, "/auth/resend-verification", s.resendVerification)
	s.handle(http.MethodPost, "/auth/login", s.login)
	s.handle(http.MethodPost, "/auth/refresh", s.refresh)
	s.handle(http.MethodPost, "/auth/logout", s.guard.Authenticate(s.logout))
	s.handle(http.MethodPost, "/auth/change-password", s.guard.Authenticate(s.changePassword))
	s.handle(http.MethodGet, "/auth/me", s.guard.Authenticate(s.me))

	s.handle(http.MethodGet, "/admin/accounts/:id", s.guard.RequireRoles(s.getAccount, models.RoleAdmin))
	s.handle(http.MethodPatch, "/admin/accounts/:id", s.guard.RequireRoles(s.updateAccount, models.RoleAdmin))

	s.router.GET("/healthz", s.healthz)
	s.router.GET("/readyz", s.readyz)
	if s.metrics != nil {
		s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, services.KindNotFound, "route not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, services.KindValidation, "method not allowed")
	})
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error(r.Context(), "handler panic", "path", r.URL.Path, "panic", v)
		writeError(w, http.StatusInternalServerError, services.KindServerError, "internal server error")
	}
}

func (s *Server) handle(method, path string, h httprouter.Handle) {
	var obs RequestObserver
	if s.metrics != nil {
		obs = s.metrics
	}
	s.router.Handle(method, path, instrument(obs, method, path, h))
}

// Handler is the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return accessLog(s.logger, s.router)
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
