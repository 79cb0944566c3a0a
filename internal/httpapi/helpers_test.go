package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reservo.org/internal/identity"
	"reservo.org/internal/policy"
	"reservo.org/internal/store"
	"reservo.org/internal/store/memstore"
	"reservo.org/internal/token"
)

const testSecret = "httpapi-test-secret"

type testEnv struct {
	api   *API
	h     http.Handler
	store *memstore.Store
	codec *token.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memstore.New()
	st.EnforceUnique(store.Tenants, store.FieldBusinessCode)
	st.EnforceUnique(store.Volunteers, store.FieldVolunteerCode)

	codec, err := token.NewCodec(testSecret, "reservo-test", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	api := New(Options{
		Codec:              codec,
		Resolver:           identity.NewResolver(st),
		Store:              st,
		Version:            "test",
		SuperadminPassword: "sup3r-pass",
	})
	return &testEnv{api: api, h: api.Handler(), store: st, codec: codec}
}

func (e *testEnv) seedTenant(t *testing.T, id, code, adminCode string) {
	t.Helper()
	e.store.Seed(store.Tenants, id, map[string]any{
		store.FieldBusinessCode: code,
		store.FieldAdminCode:    adminCode,
		store.FieldName:         "Org " + code,
	})
}

func (e *testEnv) tokenFor(t *testing.T, subjectID string, role policy.Role, tenant string) string {
	t.Helper()
	signed, _, err := e.codec.Issue(subjectID, role, tenant)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

// failingStore reports every call as an outage.
type failingStore struct{}

var _ store.Store = failingStore{}

func (failingStore) FindOneByField(context.Context, string, string, any) (store.Record, error) {
	return store.Record{}, store.ErrUnavailable
}
func (failingStore) FindByID(context.Context, string, string) (store.Record, error) {
	return store.Record{}, store.ErrUnavailable
}
func (failingStore) List(context.Context, string) ([]store.Record, error) {
	return nil, store.ErrUnavailable
}
func (failingStore) Create(context.Context, string, map[string]any) (store.Record, error) {
	return store.Record{}, store.ErrUnavailable
}
func (failingStore) Update(context.Context, string, string, map[string]any) (store.Record, error) {
	return store.Record{}, store.ErrUnavailable
}
func (failingStore) Delete(context.Context, string, string) error { return store.ErrUnavailable }
func (failingStore) Ping(context.Context) error                   { return store.ErrUnavailable }

func newFailingEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := token.NewCodec(testSecret, "reservo-test", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	api := New(Options{
		Codec:              codec,
		Resolver:           identity.NewResolver(failingStore{}),
		Store:              failingStore{},
		Version:            "test",
		SuperadminPassword: "sup3r-pass",
	})
	return &testEnv{api: api, h: api.Handler(), codec: codec}
}
