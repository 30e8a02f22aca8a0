package store

import (
	"context"
	"database/sql"

	"github.com/midnight-build/midnight/internal/core"
)

// AddCooldown persists a cooldown row.
func (s *Store) AddCooldown(ctx context.Context, c *core.Cooldown) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cooldowns (id, provider, started_at, resume_at, snapshot_id, reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(c.ID), c.Provider, millis(c.StartedAt), millis(c.ResumeAt), string(c.SnapshotID), c.Reason)
		return err
	})
}

const cooldownColumns = `id, provider, started_at, resume_at, snapshot_id, reason`

func scanCooldown(row interface{ Scan(...interface{}) error }) (*core.Cooldown, error) {
	var id, provider, snapshotID, reason string
	var startedAt, resumeAt int64
	if err := row.Scan(&id, &provider, &startedAt, &resumeAt, &snapshotID, &reason); err != nil {
		return nil, err
	}
	return &core.Cooldown{
		ID:         core.CooldownID(id),
		Provider:   provider,
		StartedAt:  fromMillis(startedAt),
		ResumeAt:   fromMillis(resumeAt),
		SnapshotID: core.SnapshotID(snapshotID),
		Reason:     reason,
	}, nil
}

// CheckCooldowns returns every cooldown whose resume_at is still in the
// future relative to now.
func (s *Store) CheckCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+cooldownColumns+` FROM cooldowns WHERE resume_at > ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Cooldown
	for rows.Next() {
		c, err := scanCooldown(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProcessExpiredCooldowns deletes every cooldown whose resume_at has
// passed and returns the deleted rows so the caller can emit
// cooldown_exited for each.
func (s *Store) ProcessExpiredCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error) {
	expired, err := func() ([]*core.Cooldown, error) {
		rows, err := s.readDB.QueryContext(ctx, `SELECT `+cooldownColumns+` FROM cooldowns WHERE resume_at <= ?`, now)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []*core.Cooldown
		for rows.Next() {
			c, err := scanCooldown(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	}()
	if err != nil || len(expired) == 0 {
		return expired, err
	}

	err = s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cooldowns WHERE resume_at <= ?`, now)
		return err
	})
	return expired, err
}
