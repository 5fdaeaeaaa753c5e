// Package rundb persists run documents and keeps the authoritative
// copy of active runs in memory on the primary instance.
package rundb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
)

// Durable storage of run documents.
// Saving an unchanged document is harmless.
type Store interface {
	// Load a run document. Returns ErrNotFound if there is no such run.
	LoadRun(ctx context.Context, id string) (*run.Run, error)

	// Insert or replace a run document.
	SaveRun(ctx context.Context, r *run.Run) error

	// Returns all runs that are not finished.
	ActiveRuns(ctx context.Context) ([]*run.Run, error)

	// Returns all runs, optionally restricted to a status.
	ListRuns(ctx context.Context, status protocol.RunStatus) ([]*run.Run, error)

	Close() error
}

func encodeRun(r *run.Run) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", r.Id, err)
	}
	return data, nil
}

func decodeRun(data []byte) (*run.Run, error) {
	r := &run.Run{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	if r.Tasks == nil {
		r.Tasks = []*run.Task{}
	}
	return r, nil
}
