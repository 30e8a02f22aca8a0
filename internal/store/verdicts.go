package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/midnight-build/midnight/internal/core"
)

// AddVerdict persists a Sentinel verdict.
func (s *Store) AddVerdict(ctx context.Context, v *core.SentinelVerdict) error {
	auditJSON, err := json.Marshal(v.Audit)
	if err != nil {
		return err
	}
	passed := 0
	if v.Passed {
		passed = 1
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sentinel_verdicts (id, task_id, quality_score, passed, thinking_effort, audit_log_json, correction_directive, merkle_verification_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(v.ID), string(v.TaskID), v.QualityScore, passed, string(v.ThinkingEffort),
			string(auditJSON), v.CorrectionDirective, v.VerificationHash, millis(v.CreatedAt))
		return err
	})
}

// TaskVerdicts returns every verdict recorded for a task, oldest first —
// the order the agent loop appended them in.
func (s *Store) TaskVerdicts(ctx context.Context, taskID core.TaskID) ([]*core.SentinelVerdict, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, task_id, quality_score, passed, thinking_effort, audit_log_json, correction_directive, merkle_verification_hash, created_at
		FROM sentinel_verdicts WHERE task_id = ? ORDER BY created_at ASC`, string(taskID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.SentinelVerdict
	for rows.Next() {
		var (
			id, taskID2, effort, auditJSON, directive, hash string
			score                                            float64
			passed                                           int
			createdAt                                        int64
		)
		if err := rows.Scan(&id, &taskID2, &score, &passed, &effort, &auditJSON, &directive, &hash, &createdAt); err != nil {
			return nil, err
		}
		var audit core.AuditLog
		if err := json.Unmarshal([]byte(auditJSON), &audit); err != nil {
			return nil, err
		}
		out = append(out, &core.SentinelVerdict{
			ID:                  core.VerdictID(id),
			TaskID:              core.TaskID(taskID2),
			QualityScore:        score,
			Passed:              passed != 0,
			ThinkingEffort:      core.ThinkingEffort(effort),
			Audit:               audit,
			CorrectionDirective: directive,
			VerificationHash:    hash,
			CreatedAt:           fromMillis(createdAt),
		})
	}
	return out, rows.Err()
}
