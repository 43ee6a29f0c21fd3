package domain

import (
	"fmt"
	"strings"

	"crm_portal_backend/platform/apperr"
)

// ProvisioningReason explains why a client account could not be created.
type ProvisioningReason string

const (
	ReasonMissingEmail ProvisioningReason = "missing_email"
	ReasonEmailTaken   ProvisioningReason = "email_taken"
	ReasonRoleNotFound ProvisioningReason = "role_not_found"
	ReasonMissingName  ProvisioningReason = "missing_name"
)

// AccountTypeClient marks portal accounts that belong to external clients.
const AccountTypeClient = "client"

// ClientProvisioningFailed builds the error that aborts an acceptance.
func ClientProvisioningFailed(reason ProvisioningReason, message string) *apperr.Error {
	return apperr.Validation(message).
		WithCode(string(reason)).
		WithDetails(map[string]string{"reason": string(reason)})
}

// ErrMissingEmail is returned when no email could be resolved for the lead.
func ErrMissingEmail() *apperr.Error {
	return ClientProvisioningFailed(ReasonMissingEmail,
		"cannot create client account: the lead has no contact email")
}

// ErrEmailTaken is returned when the resolved email already belongs to an account.
func ErrEmailTaken(email string) *apperr.Error {
	return ClientProvisioningFailed(ReasonEmailTaken,
		fmt.Sprintf("cannot create client account: email %s is already in use", email))
}

// ErrRoleNotFound lists the configured roles so an operator can fix naming.
func ErrRoleNotFound(wanted string, available []string) *apperr.Error {
	list := "none"
	if len(available) > 0 {
		list = strings.Join(available, ", ")
	}
	return ClientProvisioningFailed(ReasonRoleNotFound,
		fmt.Sprintf("%s role not found in the system; available roles: %s", wanted, list))
}

// ErrMissingName is returned when no usable first and last name exist.
func ErrMissingName() *apperr.Error {
	return ClientProvisioningFailed(ReasonMissingName,
		"cannot create client account: the contact has no first and last name")
}

// CodeClientAccountExists is returned when another transaction created the
// organization's client account first.
const CodeClientAccountExists = "client_account_exists"

// ErrClientAccountExists reports a lost race for the organization's client account.
func ErrClientAccountExists() *apperr.Error {
	return apperr.Conflict("organization already has an active client account").
		WithCode(CodeClientAccountExists)
}
