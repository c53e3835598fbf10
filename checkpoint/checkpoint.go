// Package checkpoint implements the durable snapshot abstraction of spec
// §3/§4.3 (C3): a Checkpoint keyed by (workflow_id, layer), retained at
// most N per workflow, pruned oldest-first on write. Grounded on the
// teacher's store/checkpoint.go CheckpointStore interface, generalized
// from a single NodeName-keyed checkpoint to the spec's layer-keyed one.
package checkpoint

import (
	"context"
	"time"

	"github.com/smallnest/dagrag/state"
)

// DefaultRetention is the default number of checkpoints kept per workflow
// (spec §3: "at most N (default 5) retained per workflow").
const DefaultRetention = 5

// Checkpoint is a durable snapshot of a WorkflowState at the boundary of a
// completed layer (spec §3).
type Checkpoint struct {
	ID         string             `json:"id"`
	WorkflowID string             `json:"workflow_id"`
	Timestamp  time.Time          `json:"timestamp"`
	Layer      int                `json:"layer"`
	State      *state.WorkflowState `json:"state"`
}

// Store persists and retrieves Checkpoints. Implementations must enforce
// the retention policy themselves on every Save (spec §4.3 "on each
// successful persist, prune so that at most N ... remain").
type Store interface {
	// Save persists checkpoint, then prunes older checkpoints for the same
	// workflow beyond retention (oldest first).
	Save(ctx context.Context, cp *Checkpoint, retention int) error

	// Load retrieves a checkpoint by its own id.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Latest retrieves the most recently-written checkpoint for a workflow,
	// used by resume_from_checkpoint when only a workflow id is known.
	Latest(ctx context.Context, workflowID string) (*Checkpoint, error)

	// List returns every retained checkpoint for a workflow, oldest first.
	List(ctx context.Context, workflowID string) ([]*Checkpoint, error)

	// Delete removes a single checkpoint.
	Delete(ctx context.Context, id string) error

	// Clear removes every checkpoint for a workflow.
	Clear(ctx context.Context, workflowID string) error
}
