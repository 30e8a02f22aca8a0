package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/midnight-build/midnight/internal/core"
)

// AddTask assigns a fresh id and created_at, then persists the task.
func (s *Store) AddTask(ctx context.Context, projectID core.ProjectID, description string, priority int, deps []core.TaskID) (*core.Task, error) {
	t := core.NewTask(projectID, description, priority, deps)
	depsJSON, err := json.Marshal(t.Dependencies)
	if err != nil {
		return nil, err
	}
	err = s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, project_id, description, status, assigned_agent, priority, dependencies_json, worktree_path, created_at, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, 0)`,
			string(t.ID), string(t.ProjectID), t.Description, string(t.Status), string(t.AssignedAgent),
			t.Priority, string(depsJSON), millis(t.CreatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

const taskColumns = `id, project_id, description, status, assigned_agent, priority, dependencies_json, worktree_path, created_at, started_at, completed_at, result_json, retry_count`

func scanTask(row interface{ Scan(...interface{}) error }) (*core.Task, error) {
	var (
		id, projectID, description, status, agent, worktreePath string
		priority, retryCount                                     int
		depsJSON                                                 string
		createdAt                                                int64
		startedAt, completedAt                                   sql.NullInt64
		resultJSON                                               sql.NullString
	)
	if err := row.Scan(&id, &projectID, &description, &status, &agent, &priority, &depsJSON,
		&worktreePath, &createdAt, &startedAt, &completedAt, &resultJSON, &retryCount); err != nil {
		return nil, err
	}

	var deps []core.TaskID
	if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
		return nil, err
	}

	t := &core.Task{
		ID:            core.TaskID(id),
		ProjectID:     core.ProjectID(projectID),
		Description:   description,
		Status:        core.TaskStatus(status),
		AssignedAgent: core.Agent(agent),
		Priority:      priority,
		Dependencies:  deps,
		WorktreePath:  worktreePath,
		CreatedAt:     fromMillis(createdAt),
		StartedAt:     fromMillisPtr(startedAt),
		CompletedAt:   fromMillisPtr(completedAt),
		RetryCount:    retryCount,
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result core.TaskResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, err
		}
		t.Result = &result
	}
	return t, nil
}

// GetTask reads one task by id.
func (s *Store) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, string(id))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("task", string(id))
	}
	return t, err
}

// ProjectTasks returns a project's tasks ordered by priority desc, then
// created_at asc.
func (s *Store) ProjectTasks(ctx context.Context, projectID core.ProjectID) ([]*core.Task, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY priority DESC, created_at ASC`, string(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TaskUpdate is a partial update applied to a task row. Nil fields are
// left untouched.
type TaskUpdate struct {
	Status       *core.TaskStatus
	WorktreePath *string
	Result       *core.TaskResult
	ClearResult  bool
	RetryCount   *int
	StartedAt    *bool // true: set to now; false: clear
	CompletedAt  *bool
}

// UpdateTask applies a partial update to one task row.
func (s *Store) UpdateTask(ctx context.Context, id core.TaskID, u TaskUpdate) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		if u.Status != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(*u.Status), string(id)); err != nil {
				return err
			}
		}
		if u.WorktreePath != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET worktree_path = ? WHERE id = ?`, *u.WorktreePath, string(id)); err != nil {
				return err
			}
		}
		if u.Result != nil {
			b, err := json.Marshal(u.Result)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET result_json = ? WHERE id = ?`, string(b), string(id)); err != nil {
				return err
			}
		} else if u.ClearResult {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET result_json = NULL WHERE id = ?`, string(id)); err != nil {
				return err
			}
		}
		if u.RetryCount != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET retry_count = ? WHERE id = ?`, *u.RetryCount, string(id)); err != nil {
				return err
			}
		}
		if u.StartedAt != nil {
			if *u.StartedAt {
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET started_at = ? WHERE id = ?`, millis(nowFunc()), string(id)); err != nil {
					return err
				}
			} else {
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET started_at = NULL WHERE id = ?`, string(id)); err != nil {
					return err
				}
			}
		}
		if u.CompletedAt != nil {
			if *u.CompletedAt {
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET completed_at = ? WHERE id = ?`, millis(nowFunc()), string(id)); err != nil {
					return err
				}
			} else {
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET completed_at = NULL WHERE id = ?`, string(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
