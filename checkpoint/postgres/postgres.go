// Package postgres adapts the teacher's store/postgres checkpoint backend
// to the spec's (workflow_id, layer)-keyed Checkpoint with retention
// pruning on every write, using pgx/v5 directly as the teacher does.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/state"
)

// DBPool is the slice of *pgxpool.Pool this store depends on, narrowed so
// tests can substitute a pgxmock connection.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements checkpoint.Store using PostgreSQL.
type Store struct {
	pool      DBPool
	tableName string
}

// Options configures the Postgres connection.
type Options struct {
	ConnString string
	TableName  string // default "checkpoints"
}

// New opens a connection pool and ensures the schema exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	s := &Store{pool: pool, tableName: tableName}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Store around an existing pool, for tests that
// substitute a pgxmock connection.
func NewWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &Store{pool: pool, tableName: tableName}
}

// InitSchema creates the checkpoints table if it doesn't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			layer INTEGER NOT NULL,
			state JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_workflow_id ON %s (workflow_id, timestamp);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint, retention int) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, layer, state, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			layer = EXCLUDED.layer,
			state = EXCLUDED.state,
			timestamp = EXCLUDED.timestamp
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, insert, cp.ID, cp.WorkflowID, cp.Layer, stateJSON, cp.Timestamp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if retention <= 0 {
		retention = checkpoint.DefaultRetention
	}
	prune := fmt.Sprintf(`
		DELETE FROM %s
		WHERE workflow_id = $1 AND id NOT IN (
			SELECT id FROM %s WHERE workflow_id = $1 ORDER BY timestamp DESC LIMIT $2
		)
	`, s.tableName, s.tableName)
	if _, err := s.pool.Exec(ctx, prune, cp.WorkflowID, retention); err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, workflow_id, layer, state, timestamp FROM %s WHERE id = $1`, s.tableName)

	var cp checkpoint.Checkpoint
	var stateJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&cp.ID, &cp.WorkflowID, &cp.Layer, &stateJSON, &cp.Timestamp)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("checkpoint not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.State = &state.WorkflowState{}
	if err := json.Unmarshal(stateJSON, cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &cp, nil
}

func (s *Store) Latest(ctx context.Context, workflowID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_id, layer, state, timestamp FROM %s
		WHERE workflow_id = $1 ORDER BY timestamp DESC LIMIT 1
	`, s.tableName)

	var cp checkpoint.Checkpoint
	var stateJSON []byte
	err := s.pool.QueryRow(ctx, query, workflowID).Scan(&cp.ID, &cp.WorkflowID, &cp.Layer, &stateJSON, &cp.Timestamp)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no checkpoints for workflow: %s", workflowID)
		}
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	cp.State = &state.WorkflowState{}
	if err := json.Unmarshal(stateJSON, cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &cp, nil
}

func (s *Store) List(ctx context.Context, workflowID string) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_id, layer, state, timestamp FROM %s
		WHERE workflow_id = $1 ORDER BY timestamp ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		var cp checkpoint.Checkpoint
		var stateJSON []byte
		if err := rows.Scan(&cp.ID, &cp.WorkflowID, &cp.Layer, &stateJSON, &cp.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		cp.State = &state.WorkflowState{}
		if err := json.Unmarshal(stateJSON, cp.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, workflowID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workflow_id = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, workflowID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
