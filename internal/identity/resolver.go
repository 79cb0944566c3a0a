// Package identity maps presented access codes to canonical identity
// records and resolves the tenant code a record belongs to. Tenant
// references in the store come in several shapes; the resolver tries an
// explicit, ordered list of sources and the first hit wins. When no
// source resolves, callers must fail closed.
package identity

import (
	"context"
	"errors"
	"strings"

	"reservo.org/internal/policy"
	"reservo.org/internal/store"
)

var (
	// ErrNoIdentity means no record matched the presented access code.
	// Deliberately carries no detail about near-matches.
	ErrNoIdentity = errors.New("identity: no matching identity")
	// ErrTenantUnresolved means an identity exists but no tenant source
	// produced a code for it; authentication must not proceed.
	ErrTenantUnresolved = errors.New("identity: tenant unresolved")
)

// Identity is a resolved login identity.
type Identity struct {
	SubjectID string
	Role      policy.Role
	TenantID  string
	Name      string
	Record    store.Record
}

// Resolver looks identities and tenant codes up through the record store.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// ResolveByAccessCode finds the single identity whose access code matches.
// The role hint selects which collection and code field is consulted:
// admins log in with a tenant record's admin code, volunteers with their
// own record's access code. Zero matches map to ErrNoIdentity, never to an
// infrastructure error.
func (r *Resolver) ResolveByAccessCode(ctx context.Context, code string, role policy.Role) (Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, ErrNoIdentity
	}

	switch role {
	case policy.RoleAdmin:
		rec, err := r.store.FindOneByField(ctx, store.Tenants, store.FieldAdminCode, code)
		if err != nil {
			return Identity{}, mapLookupError(err)
		}
		tenant, ok := rec.StringField(store.FieldBusinessCode)
		if !ok {
			// A tenant record without a business code cannot scope anything.
			return Identity{}, ErrTenantUnresolved
		}
		name, _ := rec.StringField(store.FieldName)
		return Identity{SubjectID: rec.ID, Role: policy.RoleAdmin, TenantID: tenant, Name: name, Record: rec}, nil

	case policy.RoleVolunteer:
		rec, err := r.store.FindOneByField(ctx, store.Volunteers, store.FieldVolunteerCode, code)
		if err != nil {
			return Identity{}, mapLookupError(err)
		}
		tenant, err := r.ResolveTenantForVolunteer(ctx, rec)
		if err != nil {
			return Identity{}, err
		}
		name, _ := rec.StringField(store.FieldName)
		return Identity{SubjectID: rec.ID, Role: policy.RoleVolunteer, TenantID: tenant, Name: name, Record: rec}, nil

	default:
		return Identity{}, ErrNoIdentity
	}
}

// tenantSource is one strategy for recovering a tenant code from a record.
// Sources returning ("", nil) simply did not apply; errors abort the whole
// resolution so partial data never authorizes anything.
type tenantSource struct {
	name    string
	resolve func(ctx context.Context, rec store.Record) (string, error)
}

func directField(field string) tenantSource {
	return tenantSource{
		name: "direct:" + field,
		resolve: func(_ context.Context, rec store.Record) (string, error) {
			code, _ := rec.StringField(field)
			return code, nil
		},
	}
}

// relationHop follows a tenant reference to the tenant record and reads
// its business code. A dangling reference does not resolve; store outages
// propagate.
func (r *Resolver) relationHop(field string) tenantSource {
	return tenantSource{
		name: "relation:" + field,
		resolve: func(ctx context.Context, rec store.Record) (string, error) {
			ref, ok := rec.RefField(field)
			if !ok {
				return "", nil
			}
			tenantRec, err := r.store.FindByID(ctx, store.Tenants, ref)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return "", nil
				}
				return "", err
			}
			code, _ := tenantRec.StringField(store.FieldBusinessCode)
			return code, nil
		},
	}
}

// ResolveTenantForVolunteer resolves a volunteer record's tenant code.
// Precedence is a contract: the direct field, then the alternate-named
// field, then the relation hop. First match wins; all misses fail closed
// with ErrTenantUnresolved.
func (r *Resolver) ResolveTenantForVolunteer(ctx context.Context, rec store.Record) (string, error) {
	sources := []tenantSource{
		directField(store.FieldTenantCode),
		directField(store.FieldTenantCodeAlt),
		r.relationHop(store.FieldTenantRef),
	}
	code, err := r.resolveFirst(ctx, rec, sources)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", ErrTenantUnresolved
	}
	return code, nil
}

// ResolveTenantForResource resolves the tenant code of a generic resource
// record. Same ordered-source scheme with the derived lookup field added.
// Returns "" (and no error) when the record genuinely has no tenant;
// callers must treat that as excluded from every tenant's view, never as a
// wildcard.
func (r *Resolver) ResolveTenantForResource(ctx context.Context, rec store.Record) (string, error) {
	sources := []tenantSource{
		directField(store.FieldTenantCode),
		directField(store.FieldTenantCodeAlt),
		directField(store.FieldTenantLookup),
		r.relationHop(store.FieldTenantRef),
	}
	return r.resolveFirst(ctx, rec, sources)
}

func (r *Resolver) resolveFirst(ctx context.Context, rec store.Record, sources []tenantSource) (string, error) {
	for _, src := range sources {
		code, err := src.resolve(ctx, rec)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}
	return "", nil
}

// FilterByTenant keeps only the records whose resolved tenant matches.
// Records with no resolvable tenant are dropped for every tenant,
// including the one that nominally owns them by a dangling reference.
func (r *Resolver) FilterByTenant(ctx context.Context, recs []store.Record, tenantID string) ([]store.Record, error) {
	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		code, err := r.ResolveTenantForResource(ctx, rec)
		if err != nil {
			return nil, err
		}
		if code == "" || code != tenantID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func mapLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoIdentity
	}
	return err
}
