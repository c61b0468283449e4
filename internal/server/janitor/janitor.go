// Package janitor periodically clears expired refresh and verification
// tokens from the credential store.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
	"github.com/robfig/cron/v3"
)

// ErrSweepUnsupported is returned by New when the repository cannot purge.
var ErrSweepUnsupported = errors.New("repository does not support token purging")

// Observer is told how many tokens every successful sweep cleared.
type Observer interface {
	TokensPurged(refresh, verification int64)
}

type Janitor struct {
	sweeper  accounts.Sweeper
	logger   logging.Logger
	observer Observer
	now      func() time.Time
	cron     *cron.Cron
}

type Option func(*Janitor)

func WithObserver(o Observer) Option {
	return func(j *Janitor) { j.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// New schedules sweeps of repo on schedule (standard cron syntax or
// descriptors such as "@every 1h"). The repository must implement
// accounts.Sweeper.
func New(repo accounts.Repository, schedule string, logger logging.Logger, opts ...Option) (*Janitor, error) {
	sweeper, ok := repo.(accounts.Sweeper)
	if !ok {
		return nil, ErrSweepUnsupported
	}

	j := &Janitor{
		sweeper: sweeper,
		logger:  logger.With("module", "janitor"),
		now:     time.Now,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	for _, opt := range opts {
		opt(j)
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		_, _ = j.Sweep(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Sweep clears every token pair that has expired by now.
func (j *Janitor) Sweep(ctx context.Context) (accounts.PurgeResult, error) {
	res, err := j.sweeper.PurgeExpiredTokens(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error(ctx, "token purge failed", "error", err)
		return res, err
	}
	if j.observer != nil {
		j.observer.TokensPurged(res.RefreshTokens, res.VerificationTokens)
	}
	j.logger.Info(ctx, "expired tokens purged",
		"refresh_tokens", res.RefreshTokens,
		"verification_tokens", res.VerificationTokens)
	return res, nil
}

// Run starts the schedule and blocks until ctx is done and any running
// sweep has finished.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info(ctx, "Starting janitor")
	j.cron.Start()

	<-ctx.Done()

	j.logger.Info(ctx, "Stopping janitor...")
	<-j.cron.Stop().Done()
}
