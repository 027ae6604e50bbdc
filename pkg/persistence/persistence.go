// Package persistence implements the controller's orphan-recovery store
// (§4.4 Persistence, §6 Persisted state layout): a serialized
// {workflows: [(workflow_id, SpawnWorkflowRequest)]} list, loaded into the
// orphans map at startup and rewritten on every successful start, stop, or
// migration.
package persistence

import (
	"context"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Entry is one persisted workflow: its id and the request that would
// recreate it.
type Entry struct {
	WorkflowID api.WorkflowID      `json:"workflow_id"`
	Request    api.WorkflowRequest `json:"request"`
}

// Store is the pluggable persistence backend. Two implementations exist:
// file (default, §6 layout) and postgres (common/db-backed).
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Close() error
}
