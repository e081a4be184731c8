// Package postgres provides a pgx-backed EventStore for the durable event log.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/eventflow/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          text PRIMARY KEY,
	event_name  text NOT NULL,
	user_id     text,
	session_id  text,
	properties  jsonb,
	context     jsonb,
	ts_ms       bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS events_name_ts_idx ON events (event_name, ts_ms);
`

// EventStore writes events to Postgres. Inserts are idempotent on event id,
// so replaying a batch after a partial failure does not duplicate rows.
type EventStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool for the given DSN.
func Connect(ctx context.Context, dsn string) (*EventStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &EventStore{pool: pool}, nil
}

// Migrate creates the events table if it does not exist.
func (s *EventStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

// Ready checks connectivity.
func (s *EventStore) Ready(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

// Insert writes one event. ON CONFLICT DO NOTHING keeps re-inserts cheap.
func (s *EventStore) Insert(ctx context.Context, ev *types.Event) error {
	props, err := marshalJSONB(ev.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	evctx, err := marshalJSONB(ev.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, event_name, user_id, session_id, properties, context, ts_ms)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7)
		 ON CONFLICT DO NOTHING`,
		string(ev.ID), ev.EventName, nullable(ev.UserID), nullable(ev.SessionID), props, evctx, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Close releases the pool.
func (s *EventStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalJSONB(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
