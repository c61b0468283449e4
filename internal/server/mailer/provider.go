package mailer

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/starauth/internal/logging"
	"github.com/dmitrijs2005/starauth/internal/server/config"
)

// NewSenderFromConfig picks the Sender named by cfg.Provider.
func NewSenderFromConfig(cfg config.MailConfig, logger logging.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case "webhook":
		return NewWebhookSender(cfg.WebhookURL, &http.Client{Timeout: cfg.SendTimeout}), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
