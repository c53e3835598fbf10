// Package sqlite adapts the teacher's store/sqlite checkpoint backend to
// the spec's (workflow_id, layer)-keyed Checkpoint with retention pruning
// on every write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/state"
)

// Store implements checkpoint.Store over a local SQLite database.
type Store struct {
	db        *sql.DB
	tableName string
}

// Options configures the SQLite connection.
type Options struct {
	Path      string
	TableName string // default "checkpoints"
}

// New opens (creating if necessary) a SQLite-backed checkpoint store.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &Store{db: db, tableName: tableName}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			layer INTEGER NOT NULL,
			state TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_workflow_id ON %s (workflow_id, timestamp);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint, retention int) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, layer, state, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			layer = excluded.layer,
			state = excluded.state,
			timestamp = excluded.timestamp
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, insert, cp.ID, cp.WorkflowID, cp.Layer, string(stateJSON), cp.Timestamp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if retention <= 0 {
		retention = checkpoint.DefaultRetention
	}
	prune := fmt.Sprintf(`
		DELETE FROM %s
		WHERE workflow_id = ? AND id NOT IN (
			SELECT id FROM %s WHERE workflow_id = ? ORDER BY timestamp DESC LIMIT ?
		)
	`, s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, prune, cp.WorkflowID, cp.WorkflowID, retention); err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return nil
}

func (s *Store) scanRow(row interface{ Scan(...any) error }) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var stateJSON string
	if err := row.Scan(&cp.ID, &cp.WorkflowID, &cp.Layer, &stateJSON, &cp.Timestamp); err != nil {
		return nil, err
	}
	cp.State = &state.WorkflowState{}
	if err := json.Unmarshal([]byte(stateJSON), cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &cp, nil
}

func (s *Store) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, workflow_id, layer, state, timestamp FROM %s WHERE id = ?`, s.tableName)
	cp, err := s.scanRow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("checkpoint not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *Store) Latest(ctx context.Context, workflowID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_id, layer, state, timestamp FROM %s
		WHERE workflow_id = ? ORDER BY timestamp DESC LIMIT 1
	`, s.tableName)
	cp, err := s.scanRow(s.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no checkpoints for workflow: %s", workflowID)
		}
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return cp, nil
}

func (s *Store) List(ctx context.Context, workflowID string) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_id, layer, state, timestamp FROM %s
		WHERE workflow_id = ? ORDER BY timestamp ASC
	`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, workflowID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workflow_id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
