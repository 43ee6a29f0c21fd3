package repository

import (
	"time"

	"github.com/google/uuid"
)

// ── Domain Models ─────────────────────────────────────────────────────────────

// Quote is the database model for a quotation
type Quote struct {
	ID              uuid.UUID  `db:"id"`
	LeadID          uuid.UUID  `db:"lead_id"`
	Status          string     `db:"status"`
	AmountCents     *int64     `db:"amount_cents"`
	Notes           *string    `db:"notes"`
	UploadedBy      uuid.UUID  `db:"uploaded_by"`
	StatusChangedBy *uuid.UUID `db:"status_changed_by"`
	StatusChangedAt *time.Time `db:"status_changed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
}

// Lead is the part of a lead the quotation lifecycle reads and writes
type Lead struct {
	ID             uuid.UUID  `db:"id"`
	OrganizationID uuid.UUID  `db:"organization_id"`
	ContactID      *uuid.UUID `db:"contact_id"`
	ContactName    *string    `db:"contact_name"`
	ContactEmail   *string    `db:"contact_email"`
	ContactPhone   *string    `db:"contact_phone"`
	Stage          string     `db:"stage"`
}

// Contact is a structured contact linked to a lead
type Contact struct {
	ID        uuid.UUID `db:"id"`
	FirstName *string   `db:"first_name"`
	LastName  *string   `db:"last_name"`
	Email     *string   `db:"email"`
	Phone     *string   `db:"phone"`
}

// Organization is the customer organization a lead belongs to
type Organization struct {
	ID    uuid.UUID `db:"id"`
	Name  string    `db:"name"`
	Email *string   `db:"email"`
}

// QuoteAggregate is a quotation loaded with everything a status change needs
type QuoteAggregate struct {
	Quote         Quote
	Lead          Lead
	Contact       *Contact
	Organization  Organization
	UploaderEmail *string
}

// User is a portal account
type User struct {
	ID             uuid.UUID  `db:"id"`
	Email          string     `db:"email"`
	FirstName      *string    `db:"first_name"`
	LastName       *string    `db:"last_name"`
	Phone          *string    `db:"phone"`
	AccountType    string     `db:"account_type"`
	OrganizationID *uuid.UUID `db:"organization_id"`
	LeadID         *uuid.UUID `db:"lead_id"`
	IsActive       bool       `db:"is_active"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// NewQuote holds the values for inserting a quotation
type NewQuote struct {
	LeadID      uuid.UUID
	AmountCents *int64
	Notes       *string
	UploadedBy  uuid.UUID
}

// StatusUpdate holds the values persisted by a status change
type StatusUpdate struct {
	QuoteID   uuid.UUID
	Status    string
	ChangedBy uuid.UUID
	ChangedAt time.Time
	Notes     *string
}

// NewClientUser holds the values for inserting a client account
type NewClientUser struct {
	Email          string
	FirstName      string
	LastName       string
	Phone          *string
	OrganizationID uuid.UUID
	LeadID         uuid.UUID
	PasswordHash   string
}
