// Package domain provides the pure business rules of the quotation lifecycle.
package domain

import (
	"fmt"
	"slices"
	"strings"

	"crm_portal_backend/platform/apperr"
)

// Status is the lifecycle status of a quotation.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Machine-readable error codes returned by the lifecycle.
const (
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeQuotationLocked   = "quotation_locked"
)

var allowedTransitions = map[Status][]Status{
	StatusUploaded: {StatusSent, StatusAccepted, StatusRejected},
	StatusSent:     {StatusAccepted, StatusRejected},
	StatusAccepted: {},
	StatusRejected: {},
}

// ParseStatus returns the Status for a raw value, or false if it is not one of
// the lifecycle statuses.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.TrimSpace(raw))
	_, ok := allowedTransitions[s]
	return s, ok
}

// AllowedTargets returns the statuses reachable from s.
func (s Status) AllowedTargets() []Status {
	return slices.Clone(allowedTransitions[s])
}

// QuotationState is the part of a quotation the state machine decides on.
type QuotationState struct {
	Status  Status
	Deleted bool
}

// Transition is an accepted status change.
type Transition struct {
	From                 Status
	To                   Status
	RequiresProvisioning bool
}

// RequestTransition validates moving a quotation to target. It performs no I/O;
// persisting the result is the caller's job.
func RequestTransition(q QuotationState, target Status) (Transition, error) {
	if q.Deleted {
		return Transition{}, ErrQuotationNotFound()
	}

	if !slices.Contains(allowedTransitions[q.Status], target) {
		return Transition{}, apperr.Validation(
			fmt.Sprintf("cannot change quotation status from %q to %q", q.Status, target),
		).WithCode(CodeInvalidTransition).WithDetails(map[string]interface{}{
			"from":    q.Status,
			"to":      target,
			"allowed": q.Status.AllowedTargets(),
		})
	}

	return Transition{
		From:                 q.Status,
		To:                   target,
		RequiresProvisioning: target == StatusAccepted,
	}, nil
}

// ErrUnknownStatus is returned for a requested status outside the lifecycle.
func ErrUnknownStatus(raw string) *apperr.Error {
	return apperr.Validation(fmt.Sprintf("unknown quotation status %q", raw)).WithCode(CodeInvalidTransition)
}

// ErrQuotationNotFound is returned for missing and soft-deleted quotations.
func ErrQuotationNotFound() *apperr.Error {
	return apperr.NotFound("quotation not found").WithCode(CodeNotFound)
}

// EnsureDeletable rejects deleting an accepted quotation.
func EnsureDeletable(s Status) error {
	if s == StatusAccepted {
		return apperr.Conflict("accepted quotations cannot be deleted").WithCode(CodeQuotationLocked)
	}
	return nil
}
