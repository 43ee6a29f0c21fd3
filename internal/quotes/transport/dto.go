package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateQuoteRequest is the request body for uploading a quotation
type CreateQuoteRequest struct {
	LeadID      uuid.UUID `json:"leadId" validate:"required"`
	AmountCents *int64    `json:"amountCents,omitempty" validate:"omitempty,min=0"`
	Notes       *string   `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

// UpdateQuoteStatusRequest is the request body for updating a quote's status
type UpdateQuoteStatusRequest struct {
	Status string  `json:"status" validate:"required,max=32"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

// QuoteResponse is the API representation of a quotation
type QuoteResponse struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"leadId"`
	Status          string     `json:"status"`
	AmountCents     *int64     `json:"amountCents,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	UploadedBy      uuid.UUID  `json:"uploadedBy"`
	StatusChangedBy *uuid.UUID `json:"statusChangedBy,omitempty"`
	StatusChangedAt *time.Time `json:"statusChangedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ClientAccountResponse describes the client account linked by an acceptance.
// The temporary password is only ever delivered by email.
type ClientAccountResponse struct {
	UserID  uuid.UUID `json:"userId"`
	Email   string    `json:"email"`
	Created bool      `json:"created"`
}

// QuoteStatusResponse is returned by a status change
type QuoteStatusResponse struct {
	Quote          QuoteResponse          `json:"quote"`
	PreviousStatus string                 `json:"previousStatus"`
	ClientAccount  *ClientAccountResponse `json:"clientAccount,omitempty"`
}
