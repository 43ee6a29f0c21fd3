package domain

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultClientRoleName is the role assigned to provisioned client accounts.
const DefaultClientRoleName = "Client User"

// Role is a named permission bundle.
type Role struct {
	ID   uuid.UUID
	Name string
}

var roleNameSeparators = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "")

// NormalizeRoleName lowercases a role name and drops separators, so that
// "Client User", "client_user" and "ClientUser" compare equal.
func NormalizeRoleName(name string) string {
	return roleNameSeparators.Replace(strings.ToLower(strings.TrimSpace(name)))
}

// MatchClientRole picks the role to assign to client accounts. An exact name
// match wins, then a normalized match against the known client spellings, then
// the first role whose name contains "client".
func MatchClientRole(roles []Role, wanted string) (Role, bool) {
	for _, r := range roles {
		if r.Name == wanted {
			return r, true
		}
	}

	spellings := map[string]struct{}{
		NormalizeRoleName(wanted): {},
		"clientuser":              {},
		"client":                  {},
	}
	for _, r := range roles {
		if _, ok := spellings[NormalizeRoleName(r.Name)]; ok {
			return r, true
		}
	}

	for _, r := range roles {
		if strings.Contains(strings.ToLower(r.Name), "client") {
			return r, true
		}
	}

	return Role{}, false
}
