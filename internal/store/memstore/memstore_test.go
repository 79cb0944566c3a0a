package memstore

import (
	"context"
	"errors"
	"testing"

	"reservo.org/internal/store"
)

func TestCreateAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Create(ctx, store.Tenants, map[string]any{
		store.FieldBusinessCode: "ASBL-A",
		store.FieldName:         "Les Amis",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := s.FindByID(ctx, store.Tenants, rec.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if code, _ := got.StringField(store.FieldBusinessCode); code != "ASBL-A" {
		t.Fatalf("unexpected code: %s", code)
	}

	got, err = s.FindOneByField(ctx, store.Tenants, store.FieldBusinessCode, "ASBL-A")
	if err != nil {
		t.Fatalf("FindOneByField: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("expected %s, got %s", rec.ID, got.ID)
	}

	if _, err := s.FindOneByField(ctx, store.Tenants, store.FieldBusinessCode, "ASBL-B"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByID(ctx, store.Tenants, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnforceUnique(t *testing.T) {
	s := New()
	s.EnforceUnique(store.Tenants, store.FieldBusinessCode)
	ctx := context.Background()

	if _, err := s.Create(ctx, store.Tenants, map[string]any{store.FieldBusinessCode: "ASBL-A"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, store.Tenants, map[string]any{store.FieldBusinessCode: "ASBL-A"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Different collection is unaffected.
	if _, err := s.Create(ctx, store.Volunteers, map[string]any{store.FieldBusinessCode: "ASBL-A"}); err != nil {
		t.Fatalf("Create in other collection: %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Create(ctx, store.Tables, map[string]any{store.FieldTableNumber: "7"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updated, err := s.Update(ctx, store.Tables, rec.ID, map[string]any{store.FieldCapacity: 8})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Fields[store.FieldCapacity] != 8 {
		t.Fatalf("capacity not updated: %v", updated.Fields)
	}

	if err := s.Delete(ctx, store.Tables, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, store.Tables, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.List(ctx, store.Tenants); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
