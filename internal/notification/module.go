// Package notification provides event handlers for sending notifications
// in response to domain events.
// This module subscribes to events and inverts the dependency: domain modules
// no longer need to know about email providers or templates.
package notification

import (
	"context"
	"strings"

	"crm_portal_backend/internal/email"
	"crm_portal_backend/internal/events"
	"crm_portal_backend/platform/config"
	"crm_portal_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	kindQuoteStatusChanged = "quote_status_changed"
	kindClientWelcome      = "client_welcome"
)

// Module handles all notification-related event subscriptions.
type Module struct {
	dispatcher email.Dispatcher
	cfg        config.NotificationConfig
	log        *logger.Logger
}

// New creates a new notification module.
func New(dispatcher email.Dispatcher, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return &Module{dispatcher: dispatcher, cfg: cfg, log: log}
}

// Name returns the module name for logging.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes the module to the events it notifies about.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.QuoteStatusChanged{}.EventName(), m)
}

// Handle routes events to their handlers. Notification failures are logged
// and never returned: the change that raised the event has already committed.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.QuoteStatusChanged:
		m.handleQuoteStatusChanged(ctx, e)
	case *events.QuoteStatusChanged:
		if e != nil {
			m.handleQuoteStatusChanged(ctx, *e)
		}
	}
	return nil
}

func (m *Module) handleQuoteStatusChanged(ctx context.Context, e events.QuoteStatusChanged) {
	log := m.log.WithContext(ctx)

	recipients := statusChangeRecipients(e)
	if len(recipients) == 0 {
		log.Debug("no recipients for quote status change", "quotation_id", e.QuotationID)
	} else {
		content, err := email.RenderQuoteStatusChanged(email.QuoteStatusChangedData{
			QuoteReference:   quoteReference(e.QuotationID),
			OrganizationName: e.OrganizationName,
			ContactName:      e.ContactName,
			PreviousStatus:   e.PreviousStatus,
			NewStatus:        e.NewStatus,
			AmountCents:      e.AmountCents,
			QuoteURL:         m.url("/quotes/" + e.QuotationID.String()),
		})
		if err != nil {
			log.NotificationFailed(kindQuoteStatusChanged, recipients, err)
		} else if !m.dispatcher.Send(ctx, recipients, content.Subject, content.HTML, content.Text) {
			log.NotificationFailed(kindQuoteStatusChanged, recipients, nil)
		}
	}

	if e.Account != nil {
		m.sendClientWelcome(ctx, e)
	}
}

func (m *Module) sendClientWelcome(ctx context.Context, e events.QuoteStatusChanged) {
	log := m.log.WithContext(ctx)
	to := []string{e.Account.Email}

	content, err := email.RenderClientWelcome(email.ClientWelcomeData{
		FirstName:         e.Account.FirstName,
		OrganizationName:  e.OrganizationName,
		Email:             e.Account.Email,
		TemporaryPassword: e.Account.TemporaryPassword,
		LoginURL:          m.url("/login"),
	})
	if err != nil {
		log.NotificationFailed(kindClientWelcome, to, err)
		return
	}
	if !m.dispatcher.Send(ctx, to, content.Subject, content.HTML, content.Text) {
		log.NotificationFailed(kindClientWelcome, to, nil)
	}
}

// statusChangeRecipients collects the uploader and the lead's contact. The
// organization's general address is only used when the lead has no contact
// email. Addresses are deduplicated ignoring case, first spelling wins.
func statusChangeRecipients(e events.QuoteStatusChanged) []string {
	candidates := []*string{e.UploaderEmail, e.ContactEmail}
	if blank(e.ContactEmail) {
		candidates = append(candidates, e.OrganizationEmail)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if blank(c) {
			continue
		}
		addr := strings.TrimSpace(*c)
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func quoteReference(id uuid.UUID) string {
	return "Q-" + strings.ToUpper(id.String()[:8])
}

func (m *Module) url(path string) string {
	if m.cfg == nil {
		return ""
	}
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return base + path
}
