package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/midnight-build/midnight/internal/core"
)

// AddProject assigns a fresh id, sets status=queued, created_at=now, and
// persists the project.
func (s *Store) AddProject(ctx context.Context, localPath string, priority int) (*core.Project, error) {
	p := core.NewProject(localPath, priority)
	err := s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, repo_url, local_path, status, priority, created_at, git_hash, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', '')`,
			string(p.ID), p.Name, p.RepoURL, p.LocalPath, string(p.Status), p.Priority, millis(p.CreatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveProject deletes a project and every dependent row (cascade).
func (s *Store) RemoveProject(ctx context.Context, id core.ProjectID) (bool, error) {
	var affected int64
	err := s.withWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, string(id))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const projectColumns = `id, name, repo_url, local_path, status, priority, created_at, started_at, completed_at, current_task_id, git_hash, error_message`

func scanProject(row interface{ Scan(...interface{}) error }) (*core.Project, error) {
	var (
		id, name, repoURL, localPath, status, gitHash, errMsg string
		priority                                              int
		createdAt                                              int64
		startedAt, completedAt                                sql.NullInt64
		currentTaskID                                          sql.NullString
	)
	if err := row.Scan(&id, &name, &repoURL, &localPath, &status, &priority, &createdAt,
		&startedAt, &completedAt, &currentTaskID, &gitHash, &errMsg); err != nil {
		return nil, err
	}
	p := &core.Project{
		ID:               core.ProjectID(id),
		Name:             name,
		RepoURL:          repoURL,
		LocalPath:        localPath,
		Status:           core.ProjectStatus(status),
		Priority:         priority,
		CreatedAt:        fromMillis(createdAt),
		StartedAt:        fromMillisPtr(startedAt),
		CompletedAt:      fromMillisPtr(completedAt),
		LastVerifiedHash: gitHash,
		ErrorMessage:     errMsg,
	}
	if currentTaskID.Valid {
		tid := core.TaskID(currentTaskID.String)
		p.CurrentTaskID = &tid
	}
	return p, nil
}

// GetProject reads one project by id.
func (s *Store) GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, string(id))
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("project", string(id))
	}
	return p, err
}

// ListProjects returns every project, ordered by priority desc then
// created_at asc — the same ordering used by NextProject.
func (s *Store) ListProjects(ctx context.Context) ([]*core.Project, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NextProject returns the highest-priority queued or paused project, ties
// broken by earliest created_at; nil if none is dispatchable.
func (s *Store) NextProject(ctx context.Context) (*core.Project, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE status IN (?, ?) ORDER BY priority DESC, created_at ASC LIMIT 1`,
		string(core.ProjectQueued), string(core.ProjectPaused))
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// UpdateProjectStatus transitions a project's status, stamping started_at
// on entering loading/building and completed_at on entering
// completed/failed. Illegal transitions are the phase machine's concern,
// not the store's — the store persists whatever the caller, having
// already consulted internal/phase, decides is legal.
func (s *Store) UpdateProjectStatus(ctx context.Context, id core.ProjectID, status core.ProjectStatus) error {
	now := millis(nowFunc())
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		switch status {
		case core.ProjectLoading, core.ProjectBuilding:
			_, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
				string(status), now, string(id))
			return err
		case core.ProjectCompleted, core.ProjectFailed:
			_, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, completed_at = ? WHERE id = ?`,
				string(status), now, string(id))
			return err
		default:
			_, err := tx.ExecContext(ctx, `UPDATE projects SET status = ? WHERE id = ?`, string(status), string(id))
			return err
		}
	})
}

// ReorderProject updates a project's priority.
func (s *Store) ReorderProject(ctx context.Context, id core.ProjectID, newPriority int) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET priority = ? WHERE id = ?`, newPriority, string(id))
		return err
	})
}

// SetProjectGitHash updates the project's last verified hash, used by the
// agent loop after a passing verdict and by recovery after a hard reset.
func (s *Store) SetProjectGitHash(ctx context.Context, id core.ProjectID, hash string) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET git_hash = ? WHERE id = ?`, hash, string(id))
		return err
	})
}

// SetProjectCurrentTask updates the project's current_task_id pointer.
func (s *Store) SetProjectCurrentTask(ctx context.Context, id core.ProjectID, taskID *core.TaskID) error {
	var v interface{}
	if taskID != nil {
		v = string(*taskID)
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET current_task_id = ? WHERE id = ?`, v, string(id))
		return err
	})
}

// SetProjectError records an error message on the project row.
func (s *Store) SetProjectError(ctx context.Context, id core.ProjectID, message string) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET error_message = ? WHERE id = ?`, message, string(id))
		return err
	})
}

// Stats is the aggregate queue/task summary exposed by the status command.
type Stats struct {
	Total             int
	Queued            int
	InProgress        int
	Completed         int
	Failed            int
	AvgCompletionMs   float64
}

// Stats computes the current queue-wide summary.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`)
	if err := row.Scan(&st.Total); err != nil {
		return st, err
	}
	row = s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status = ?`, string(core.ProjectQueued))
	if err := row.Scan(&st.Queued); err != nil {
		return st, err
	}
	row = s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status IN (?, ?, ?)`,
		string(core.ProjectLoading), string(core.ProjectPlanning), string(core.ProjectBuilding))
	if err := row.Scan(&st.InProgress); err != nil {
		return st, err
	}
	row = s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status = ?`, string(core.ProjectCompleted))
	if err := row.Scan(&st.Completed); err != nil {
		return st, err
	}
	row = s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status = ?`, string(core.ProjectFailed))
	if err := row.Scan(&st.Failed); err != nil {
		return st, err
	}
	row = s.readDB.QueryRowContext(ctx, `SELECT AVG(completed_at - started_at) FROM projects WHERE status = ? AND started_at IS NOT NULL`, string(core.ProjectCompleted))
	var avg sql.NullFloat64
	if err := row.Scan(&avg); err != nil {
		return st, err
	}
	if avg.Valid {
		st.AvgCompletionMs = avg.Float64
	}
	return st, nil
}
