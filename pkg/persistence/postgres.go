package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeless-project/edgeless/common/db"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// PostgresStore is the alternative controller persistence backend:
// common/db-backed, parameterized SQL, no ORM. One row per workflow;
// the row is the source of truth, not an append log.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS edgeless_workflow_orphans (
			workflow_id UUID PRIMARY KEY,
			request     JSONB NOT NULL
		)
	`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) ([]Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT workflow_id, request FROM edgeless_workflow_orphans`)
	if err != nil {
		return nil, fmt.Errorf("query orphans: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var id api.WorkflowID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan orphan row: %w", err)
		}
		var req api.WorkflowRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode orphan request: %w", err)
		}
		entries = append(entries, Entry{WorkflowID: id, Request: req})
	}
	return entries, rows.Err()
}

// Save replaces the whole table with entries, inside one transaction, to
// give the same all-or-nothing snapshot semantics as FileStore's
// temp-file-then-rename (§8 invariant 6: persistence round-trip is the
// identity).
func (s *PostgresStore) Save(ctx context.Context, entries []Entry) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM edgeless_workflow_orphans`); err != nil {
		return fmt.Errorf("clear orphans: %w", err)
	}
	for _, e := range entries {
		raw, err := json.Marshal(e.Request)
		if err != nil {
			return fmt.Errorf("encode orphan request: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO edgeless_workflow_orphans (workflow_id, request) VALUES ($1, $2)`, e.WorkflowID, raw); err != nil {
			return fmt.Errorf("insert orphan: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error { return nil }

var _ Store = (*PostgresStore)(nil)
