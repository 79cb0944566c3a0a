// Package pg implements the record store on PostgreSQL. Records live in a
// single table with the collection name and a jsonb field bag, matching
// the shape of the hosted tabular store the gateway fronts.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"reservo.org/internal/ids"
	"reservo.org/internal/store"
)

// Schema creates the records table and the uniqueness guarantees the
// gateway relies on: one tenant per business code, one volunteer per
// access code.
const Schema = `
create table if not exists records (
	id         text primary key,
	collection text not null,
	fields     jsonb not null default '{}'::jsonb,
	created_at timestamptz not null default now()
);
create index if not exists records_collection_idx on records(collection);
create unique index if not exists records_tenant_code_uq
	on records((fields->>'code')) where collection = 'tenants';
create unique index if not exists records_volunteer_code_uq
	on records((fields->>'access_code')) where collection = 'volunteers';
`

const uniqueViolation = "23505"

// Store is the PostgreSQL-backed record store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema applies the schema. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) FindOneByField(ctx context.Context, collection, field string, value any) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, fields, created_at from records
		where collection = $1 and fields->>$2 = $3
		order by created_at asc limit 1`,
		collection, field, fmt.Sprint(value),
	)
	return scanRecord(row)
}

func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, fields, created_at from records
		where collection = $1 and id = $2`,
		collection, id,
	)
	return scanRecord(row)
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, fields, created_at from records
		where collection = $1 order by created_at asc`,
		collection,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			rec    store.Record
			fields []byte
		)
		if err := rows.Scan(&rec.ID, &fields, &rec.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (store.Record, error) {
	id := ids.New()
	payload, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, err
	}
	var created time.Time
	err = s.db.QueryRowContext(ctx, `
		insert into records(id, collection, fields) values($1, $2, $3)
		returning created_at`,
		id, collection, payload,
	).Scan(&created)
	if err != nil {
		return store.Record{}, mapError(err)
	}
	return store.Record{ID: id, Fields: fields, CreatedAt: created}, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (store.Record, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update records set fields = fields || $3
		where collection = $1 and id = $2
		returning id, fields, created_at`,
		collection, id, payload,
	)
	return scanRecord(row)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from records where collection = $1 and id = $2`,
		collection, id,
	)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func scanRecord(row *sql.Row) (store.Record, error) {
	var (
		rec    store.Record
		fields []byte
	)
	if err := row.Scan(&rec.ID, &fields, &rec.CreatedAt); err != nil {
		return store.Record{}, mapError(err)
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrConflict
	}
	// Anything else is infrastructure: connection refused, timeout,
	// cancelled context. Callers must not read it as a denial.
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
