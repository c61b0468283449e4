package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/starauth/internal/logging"
)

// Dispatcher renders verification emails and sends them in the background.
// Send failures are logged and never reach the caller.
type Dispatcher struct {
	sender      Sender
	logger      logging.Logger
	from        string
	frontendURL string
	tokenTTL    time.Duration
	timeout     time.Duration

	wg sync.WaitGroup
}

type DispatcherConfig struct {
	From        string
	FrontendURL string
	TokenTTL    time.Duration
	SendTimeout time.Duration
}

const defaultSendTimeout = 10 * time.Second

func NewDispatcher(sender Sender, logger logging.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		sender:      sender,
		logger:      logger,
		from:        cfg.From,
		frontendURL: cfg.FrontendURL,
		tokenTTL:    cfg.TokenTTL,
		timeout:     cfg.SendTimeout,
	}
}

// SendVerification queues a verification email for delivery and returns
// immediately. The request context's values are kept but its cancellation
// is not, so delivery outlives the request that triggered it.
func (d *Dispatcher) SendVerification(ctx context.Context, email, username, token string) {
	msg, err := NewVerificationMessage(d.from, email, username, d.frontendURL, token, d.tokenTTL)
	if err != nil {
		d.logger.Error(ctx, "failed to render verification email", "email", email, "error", err)
		return
	}

	sendCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Error(ctx, "failed to send verification email", "email", email, "error", err)
			return
		}
		d.logger.Info(ctx, "verification email sent", "email", email)
	}()
}

// Wait blocks until every queued email has been attempted or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
