package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// LogLevel mirrors the levels internal/logging emits; rows here are the
// durable mirror of whatever also went to the structured log sink.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// AppendLog appends one structured log row. project_id/task_id are
// optional (empty string persists as NULL).
func (s *Store) AppendLog(ctx context.Context, level LogLevel, source, message string, fields map[string]interface{}, projectID, taskID string) error {
	ctxJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO execution_log (id, timestamp, level, source, message, context_json, project_id, task_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), millis(nowFunc()), string(level), source, message, string(ctxJSON),
			nullableString(projectID), nullableString(taskID))
		return err
	})
}

// RecordMetric appends one metric sample.
func (s *Store) RecordMetric(ctx context.Context, name string, value float64, projectID string, tags map[string]string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metrics (id, timestamp, metric_name, metric_value, project_id, tags_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), millis(nowFunc()), name, value, nullableString(projectID), string(tagsJSON))
		return err
	})
}

// LogEntry is one row read back from the execution log.
type LogEntry struct {
	Timestamp int64
	Level     LogLevel
	Source    string
	Message   string
	ProjectID string
	TaskID    string
}

// ListLogs returns the most recent limit log rows, newest first,
// optionally filtered to one project.
func (s *Store) ListLogs(ctx context.Context, projectID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT timestamp, level, source, message, COALESCE(project_id, ''), COALESCE(task_id, '')
		FROM execution_log`
	args := []interface{}{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var level string
		if err := rows.Scan(&e.Timestamp, &level, &e.Source, &e.Message, &e.ProjectID, &e.TaskID); err != nil {
			return nil, err
		}
		e.Level = LogLevel(level)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
