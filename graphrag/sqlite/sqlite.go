// Package sqlite adapts the teacher's store/sqlite persistence idiom
// (see checkpoint/sqlite) to graphrag.Store: tool-graph edges, capability
// hypergraph membership, SHGAT parameters, and the entropy-history
// time series (spec §3, §6 "Persistent schema").
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/dagrag/graphrag"
)

// Store implements graphrag.Store over a local SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite-backed graph store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS graph_edges (
			from_tool TEXT NOT NULL,
			to_tool TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			edge_source TEXT NOT NULL,
			count INTEGER NOT NULL,
			weight REAL NOT NULL,
			PRIMARY KEY (from_tool, to_tool, edge_type)
		);
		CREATE TABLE IF NOT EXISTS capabilities (
			id TEXT PRIMARY KEY,
			child_tools TEXT NOT NULL,
			child_capabilities TEXT NOT NULL,
			hierarchy_level INTEGER NOT NULL,
			success_rate REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS shgat_params (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			blob TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS entropy_history (
			timestamp DATETIME NOT NULL,
			entropy REAL NOT NULL,
			node_count INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveEdges(ctx context.Context, edges []graphrag.Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges`); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_edges (from_tool, to_tool, edge_type, edge_source, count, weight)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.From, e.To, string(e.Type), string(e.Source), e.Count, e.Weight); err != nil {
			return fmt.Errorf("failed to save edge: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) LoadEdges(ctx context.Context) ([]graphrag.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_tool, to_tool, edge_type, edge_source, count, weight FROM graph_edges`)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer rows.Close()

	var out []graphrag.Edge
	for rows.Next() {
		var e graphrag.Edge
		var typ, src string
		if err := rows.Scan(&e.From, &e.To, &typ, &src, &e.Count, &e.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = graphrag.EdgeType(typ)
		e.Source = graphrag.EdgeSource(src)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveCapabilities(ctx context.Context, caps []graphrag.Capability) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM capabilities`); err != nil {
		return fmt.Errorf("failed to clear capabilities: %w", err)
	}
	for _, c := range caps {
		childTools, err := json.Marshal(c.ChildTools)
		if err != nil {
			return err
		}
		childCaps, err := json.Marshal(c.ChildCapabilities)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO capabilities (id, child_tools, child_capabilities, hierarchy_level, success_rate)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, string(childTools), string(childCaps), c.HierarchyLevel, c.SuccessRate); err != nil {
			return fmt.Errorf("failed to save capability: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) LoadCapabilities(ctx context.Context) ([]graphrag.Capability, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, child_tools, child_capabilities, hierarchy_level, success_rate FROM capabilities`)
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer rows.Close()

	var out []graphrag.Capability
	for rows.Next() {
		var c graphrag.Capability
		var childTools, childCaps string
		if err := rows.Scan(&c.ID, &childTools, &childCaps, &c.HierarchyLevel, &c.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		if err := json.Unmarshal([]byte(childTools), &c.ChildTools); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(childCaps), &c.ChildCapabilities); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveParams(ctx context.Context, params *graphrag.Params) error {
	blob, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shgat_params (id, blob) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob
	`, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save params: %w", err)
	}
	return nil
}

func (s *Store) LoadParams(ctx context.Context) (*graphrag.Params, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM shgat_params WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}
	var params graphrag.Params
	if err := json.Unmarshal([]byte(blob), &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return &params, nil
}

func (s *Store) AppendEntropySample(ctx context.Context, sample graphrag.EntropySample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entropy_history (timestamp, entropy, node_count) VALUES (?, ?, ?)
	`, sample.Timestamp, sample.Entropy, sample.NodeCount)
	if err != nil {
		return fmt.Errorf("failed to append entropy sample: %w", err)
	}
	return nil
}

func (s *Store) EntropyHistory(ctx context.Context) ([]graphrag.EntropySample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, entropy, node_count FROM entropy_history ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load entropy history: %w", err)
	}
	defer rows.Close()

	var out []graphrag.EntropySample
	for rows.Next() {
		var sample graphrag.EntropySample
		var ts time.Time
		if err := rows.Scan(&ts, &sample.Entropy, &sample.NodeCount); err != nil {
			return nil, fmt.Errorf("failed to scan entropy sample: %w", err)
		}
		sample.Timestamp = ts
		out = append(out, sample)
	}
	return out, rows.Err()
}
