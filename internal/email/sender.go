package email

import (
	"context"
	"strings"

	"crm_portal_backend/platform/config"
	"crm_portal_backend/platform/logger"
)

// Message is one outbound email. Text is the optional plain-text alternative.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message through a concrete provider.
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher sends email without ever failing the caller: it reports success
// as a bool and logs the cause of a failure.
type Dispatcher interface {
	Send(ctx context.Context, to []string, subject, html, text string) bool
}

type NoopSender struct{}

func (NoopSender) Deliver(context.Context, Message) error { return nil }

// NewSender picks SMTP when a host is configured, Brevo when email is enabled
// otherwise, and a no-op sender when email is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	if cfg.IsSMTPEnabled() {
		return NewSMTPSender(
			cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName(),
		)
	}
	return NewBrevoSender(cfg.GetBrevoAPIKey(), cfg.GetEmailFromName(), cfg.GetEmailFromAddress())
}

type dispatcher struct {
	sender Sender
	log    *logger.Logger
}

// NewDispatcher wraps a sender in the never-failing Dispatcher contract.
func NewDispatcher(sender Sender, log *logger.Logger) Dispatcher {
	return &dispatcher{sender: sender, log: log}
}

func (d *dispatcher) Send(ctx context.Context, to []string, subject, html, text string) (ok bool) {
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.WithContext(ctx).Error("email sender panicked", "subject", subject, "panic", r)
			ok = false
		}
	}()

	if err := d.sender.Deliver(ctx, Message{To: recipients, Subject: subject, HTML: html, Text: text}); err != nil {
		d.log.WithContext(ctx).Warn("email delivery failed",
			"subject", subject,
			"recipients", len(recipients),
			"error", err.Error(),
		)
		return false
	}
	return true
}
