// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Quote Domain Events
// =============================================================================

// ProvisionedClientAccount describes a client account created by an acceptance.
// TemporaryPassword is plaintext and must never be persisted or logged.
type ProvisionedClientAccount struct {
	UserID            uuid.UUID
	Email             string
	FirstName         string
	LastName          string
	TemporaryPassword string
}

// QuoteStatusChanged is published after a quotation status change has committed.
type QuoteStatusChanged struct {
	BaseEvent
	QuotationID       uuid.UUID  `json:"quotationId"`
	LeadID            uuid.UUID  `json:"leadId"`
	OrganizationID    uuid.UUID  `json:"organizationId"`
	OrganizationName  string     `json:"organizationName"`
	ActorID           uuid.UUID  `json:"actorId"`
	PreviousStatus    string     `json:"previousStatus"`
	NewStatus         string     `json:"newStatus"`
	AmountCents       *int64     `json:"amountCents,omitempty"`
	UploaderEmail     *string    `json:"uploaderEmail,omitempty"`
	ContactEmail      *string    `json:"contactEmail,omitempty"`
	OrganizationEmail *string    `json:"organizationEmail,omitempty"`
	ContactName       string     `json:"contactName,omitempty"`
	ExistingClientID  *uuid.UUID `json:"existingClientId,omitempty"`

	// Account is set only when this transition created a client account.
	Account *ProvisionedClientAccount `json:"-"`
}

func (e QuoteStatusChanged) EventName() string { return "quotes.quotation.status_changed" }
