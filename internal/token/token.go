// Package token issues and verifies the signed bearer tokens that carry a
// caller's identity claim. The signing secret is injected at construction;
// there is no ambient secret lookup and no refresh mechanism, a new token
// requires a fresh login.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"reservo.org/internal/policy"
)

var (
	// ErrTokenMissing indicates no token was supplied at all.
	ErrTokenMissing = errors.New("token: missing bearer token")
	// ErrTokenExpired indicates a well-formed, correctly signed token whose
	// validity window has passed. Kept distinct from ErrTokenMalformed so
	// callers can tell "log in again" apart from "corrupt or forged".
	ErrTokenExpired = errors.New("token: token expired")
	// ErrTokenMalformed indicates the token cannot be parsed, carries an
	// unexpected signing method, or fails signature or claim validation.
	ErrTokenMalformed = errors.New("token: token malformed or invalid")
)

// Claims is the decoded, trusted payload of a bearer token. TenantID is
// empty only for superadmin claims. Once issued the values never change
// for the token's lifetime; a tenant reassignment in the backing store
// takes effect only after re-authentication.
type Claims struct {
	Role     policy.Role `json:"role"`
	TenantID string      `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Subject converts the claims into the identity shape the policy rules
// consume.
func (c *Claims) Subject() policy.Subject {
	return policy.Subject{ID: c.RegisteredClaims.Subject, Role: c.Role, TenantID: c.TenantID}
}

// Codec signs and verifies identity claims with HS256.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a codec around the given secret, issuer and token
// lifetime.
func NewCodec(secret, issuer string, ttl time.Duration, opts ...Option) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a claim for the given subject and returns the token along
// with its expiry. Non-superadmin claims must carry a tenant code; issuing
// without one is refused rather than minting a claim that could never be
// scoped.
func (c *Codec) Issue(subjectID string, role policy.Role, tenantID string) (string, time.Time, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if !role.Valid() {
		return "", time.Time{}, policy.ErrUnknownRole
	}
	tenantID = strings.TrimSpace(tenantID)
	if role != policy.RoleSuperadmin && tenantID == "" {
		return "", time.Time{}, errors.New("token: tenant is required for non-superadmin claims")
	}
	if role == policy.RoleSuperadmin {
		tenantID = ""
	}

	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := &Claims{
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token, returning the embedded claims.
// Fails with ErrTokenMissing, ErrTokenExpired or ErrTokenMalformed; the
// three are never conflated.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenMalformed
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := c.validate(claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (c *Codec) validate(claims *Claims) error {
	if c.issuer != "" && claims.Issuer != c.issuer {
		return errors.New("unexpected issuer")
	}
	if strings.TrimSpace(claims.RegisteredClaims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("expiry precedes issued-at")
	}
	if !claims.Role.Valid() {
		return errors.New("unknown role")
	}
	if claims.Role != policy.RoleSuperadmin && claims.TenantID == "" {
		return errors.New("tenant missing for scoped role")
	}
	return nil
}
