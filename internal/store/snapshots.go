package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/midnight-build/midnight/internal/core"
)

// SaveSnapshot persists snap and, in the same transaction, prunes all but
// the most recent core.MaxSnapshotsPerProject rows for that project.
func (s *Store) SaveSnapshot(ctx context.Context, snap *core.StateSnapshot) error {
	agentStateJSON, err := json.Marshal(snap.AgentState)
	if err != nil {
		return err
	}
	traceJSON, err := json.Marshal(snap.ReasoningTrace)
	if err != nil {
		return err
	}

	return s.withWrite(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state_snapshots (id, project_id, git_hash, agent_state_json, reasoning_trace_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(snap.ID), string(snap.ProjectID), snap.GitHash, string(agentStateJSON), string(traceJSON), millis(snap.CreatedAt)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM state_snapshots WHERE project_id = ? AND id NOT IN (
				SELECT id FROM state_snapshots WHERE project_id = ? ORDER BY created_at DESC LIMIT ?
			)`, string(snap.ProjectID), string(snap.ProjectID), core.MaxSnapshotsPerProject)
		return err
	})
}

const snapshotColumns = `id, project_id, git_hash, agent_state_json, reasoning_trace_json, created_at`

func scanSnapshot(row interface{ Scan(...interface{}) error }) (*core.StateSnapshot, error) {
	var (
		id, projectID, gitHash, agentStateJSON, traceJSON string
		createdAt                                         int64
	)
	if err := row.Scan(&id, &projectID, &gitHash, &agentStateJSON, &traceJSON, &createdAt); err != nil {
		return nil, err
	}
	var state core.AgentState
	if err := json.Unmarshal([]byte(agentStateJSON), &state); err != nil {
		return nil, err
	}
	var trace []string
	if err := json.Unmarshal([]byte(traceJSON), &trace); err != nil {
		return nil, err
	}
	return &core.StateSnapshot{
		ID:             core.SnapshotID(id),
		ProjectID:      core.ProjectID(projectID),
		GitHash:        gitHash,
		AgentState:     state,
		ReasoningTrace: trace,
		CreatedAt:      fromMillis(createdAt),
	}, nil
}

// LoadLatestSnapshot returns the most recent snapshot for a project, or
// nil if none exists.
func (s *Store) LoadLatestSnapshot(ctx context.Context, projectID core.ProjectID) (*core.StateSnapshot, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM state_snapshots WHERE project_id = ? ORDER BY created_at DESC LIMIT 1`, string(projectID))
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// LoadSnapshot reads one snapshot by id.
func (s *Store) LoadSnapshot(ctx context.Context, id core.SnapshotID) (*core.StateSnapshot, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM state_snapshots WHERE id = ?`, string(id))
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("snapshot", string(id))
	}
	return snap, err
}

// ListSnapshots returns a project's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, projectID core.ProjectID) ([]*core.StateSnapshot, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM state_snapshots WHERE project_id = ? ORDER BY created_at DESC`, string(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.StateSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
