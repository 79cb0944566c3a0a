// Package store defines the record store collaborator the gateway reads
// and writes through. Backends (in-memory, PostgreSQL, hosted REST store)
// all expose the same collection/record shape; callers never see backend
// details, only the sentinel errors below.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("store: record not found")
	ErrConflict    = errors.New("store: record conflict")
	ErrUnavailable = errors.New("store: unavailable")
)

// Collection names.
const (
	Tenants      = "tenants"
	Volunteers   = "volunteers"
	Reservations = "reservations"
	Participants = "participants"
	Tables       = "tables"
)

// Field names shared between handlers and the identity resolver. The
// hosted store accumulated several spellings for the same tenant
// reference; the resolver owns the precedence between them.
const (
	FieldBusinessCode  = "code"               // tenant record business code
	FieldAdminCode     = "admin_code"         // tenant record admin login code
	FieldVolunteerCode = "access_code"        // volunteer record login code
	FieldTenantCode    = "tenant_code"        // direct tenant reference
	FieldTenantCodeAlt = "organization_code"  // alternate direct reference
	FieldTenantLookup  = "tenant_code_lookup" // derived lookup copy
	FieldTenantRef     = "tenant_ref"         // relation to the tenant record
	FieldName          = "name"
	FieldTableNumber   = "table_number"
	FieldCapacity      = "capacity"
)

// Record is a row in a collection.
type Record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// StringField returns a scalar string field, trimmed. Reports false when
// the field is absent, empty or not string-shaped.
func (r Record) StringField(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := stringValue(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// RefField returns the first referenced record id of a relation-valued
// field. Relations arrive either as a bare id or as a list of ids.
func (r Record) RefField(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return stringValue(t[0])
	case []string:
		if len(t) == 0 || t[0] == "" {
			return "", false
		}
		return t[0], true
	default:
		return stringValue(v)
	}
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case []any:
		// Lookup fields often surface as a single-element list.
		if len(t) == 1 {
			return stringValue(t[0])
		}
		return "", false
	default:
		return "", false
	}
}

// Store is the collaborator contract. Every call is a suspension point;
// implementations surface outages as ErrUnavailable so callers can keep
// infrastructure failures distinct from authorization denials.
type Store interface {
	FindOneByField(ctx context.Context, collection, field string, value any) (Record, error)
	FindByID(ctx context.Context, collection, id string) (Record, error)
	List(ctx context.Context, collection string) ([]Record, error)
	Create(ctx context.Context, collection string, fields map[string]any) (Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}
