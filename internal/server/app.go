// Package server assembles the starauth application: storage, credential
// primitives, session services, the HTTP API and background jobs.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/auth"
	"github.com/dmitrijs2005/starauth/internal/server/config"
	"github.com/dmitrijs2005/starauth/internal/server/httpapi"
	"github.com/dmitrijs2005/starauth/internal/server/janitor"
	"github.com/dmitrijs2005/starauth/internal/server/mailer"
	"github.com/dmitrijs2005/starauth/internal/server/metrics"
	"github.com/dmitrijs2005/starauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/starauth/internal/server/services"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	manager    repomanager.RepositoryManager
	dispatcher *mailer.Dispatcher
	server     *httpapi.Server
	janitor    *janitor.Janitor
	closers    []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	app := &App{config: c, logger: logger}

	m, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	app.manager = m
	app.closers = append(app.closers, m.Close)

	hasher, err := auth.NewPasswordHasher(c.PasswordHasher)
	if err != nil {
		app.close()
		return nil, err
	}
	codec := auth.NewCodec([]byte(c.JWTSecret), c.JWTIssuer, c.JWTAudience, c.AccessTokenTTL)

	sender, err := mailer.NewSenderFromConfig(c.Mail, logger.With("module", "mailer"))
	if err != nil {
		app.close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}
	app.dispatcher = mailer.NewDispatcher(sender, logger.With("module", "mailer"), mailer.DispatcherConfig{
		From:        c.Mail.From,
		FrontendURL: c.Mail.FrontendURL,
		TokenTTL:    c.VerificationTokenTTL,
		SendTimeout: c.Mail.SendTimeout,
	})

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if c.RedisAddr != "" {
		pool := ratelimit.NewPool(c.RedisAddr)
		app.closers = append(app.closers, pool.Close)
		limiter = ratelimit.NewRedisLimiter(pool, c.LoginMaxAttempts, c.LoginWindow)
	} else {
		logger.Warn(ctx, "login throttle disabled, no redis address configured")
	}

	mt := metrics.New()

	app.janitor, err = janitor.New(m.Accounts(m.Conn()), c.CleanupSchedule, logger, janitor.WithObserver(mt))
	if err != nil {
		app.close()
		return nil, err
	}

	sessions := services.NewSessionService(m, codec, hasher, app.dispatcher, logger, c, services.WithRecorder(mt))
	admin := services.NewAccountAdmin(m, logger)

	app.server = httpapi.NewServer(c.HTTPAddr, c.ShutdownTimeout, httpapi.Deps{
		Sessions: sessions,
		Accounts: admin,
		Guard:    httpapi.NewGuard(codec, c.AccessCookie),
		Limiter:  limiter,
		Metrics:  mt,
		Ready:    m,
		Logger:   logger,
	})

	return app, nil
}

func (app *App) openStorage(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, accounts are kept in memory")
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	m := repomanager.NewPostgresRepositoryManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}
	return m, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startDiagnostics(ctx context.Context) {
	if app.config.DiagnosticsAddr == "" {
		return
	}
	if err := agent.Listen(agent.Options{Addr: app.config.DiagnosticsAddr, ShutdownCleanup: true}); err != nil {
		app.logger.Warn(ctx, "gops agent failed to start", "error", err)
		return
	}
	app.closers = append(app.closers, func() error { agent.Close(); return nil })
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.startDiagnostics(ctx)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.janitor.Run(ctx)
	}()

	wg.Wait()

	waitCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := app.dispatcher.Wait(waitCtx); err != nil {
		app.logger.Warn(waitCtx, "pending verification emails dropped", "error", err)
	}

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
