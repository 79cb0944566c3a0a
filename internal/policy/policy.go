// Package policy holds the pure access rules: role requirements, tenant
// scoping, and the record-id self-access check. Nothing here performs I/O;
// every decision is computable from the caller identity and the requested
// scope alone.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of caller roles. Roles are non-hierarchical
// except for the superadmin override in CanAccessTenant.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleVolunteer  Role = "volunteer"
)

// ErrUnknownRole indicates a role value outside the closed set.
var ErrUnknownRole = errors.New("policy: unknown role")

// ParseRole normalizes and validates a role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleSuperadmin:
		return RoleSuperadmin, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleVolunteer:
		return RoleVolunteer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleVolunteer:
		return true
	default:
		return false
	}
}

// Subject is the minimal caller identity a decision needs. TenantID is
// empty only for superadmin subjects.
type Subject struct {
	ID       string
	Role     Role
	TenantID string
}

// CanAccessTenant reports whether the subject may touch data belonging to
// the given tenant code. Superadmin passes unconditionally, before tenant
// resolution is even consulted. Everyone else needs an exact,
// case-sensitive match; an empty tenant on either side never matches, so
// records whose tenant cannot be resolved stay invisible to every tenant.
func CanAccessTenant(s Subject, tenantID string) bool {
	if s.Role == RoleSuperadmin {
		return true
	}
	if s.TenantID == "" || tenantID == "" {
		return false
	}
	return s.TenantID == tenantID
}

// RequireRole reports whether the subject's role is in the allowed set.
func RequireRole(s Subject, allowed ...Role) bool {
	for _, role := range allowed {
		if s.Role == role {
			return true
		}
	}
	return false
}

// CanAccessRecordByID reports whether the subject may fetch the record
// with the given opaque id. This is the self-access rule used when a
// caller addresses their own identity record by id rather than by tenant
// code; opaque record ids and business tenant codes are never compared
// against each other.
func CanAccessRecordByID(s Subject, recordID string) bool {
	if s.Role == RoleSuperadmin {
		return true
	}
	if s.ID == "" || recordID == "" {
		return false
	}
	return s.ID == recordID
}
