package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/midnight-build/midnight/internal/core"
)

// StoreDNA overwrites a project's DNA row (insert-or-replace).
func (s *Store) StoreDNA(ctx context.Context, projectID core.ProjectID, dna *core.ProjectDNA) error {
	techStack, err := json.Marshal(dna.TechStack)
	if err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_dna (project_id, idea_md, tech_stack_json, definition_of_done_md)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET idea_md = excluded.idea_md,
				tech_stack_json = excluded.tech_stack_json,
				definition_of_done_md = excluded.definition_of_done_md`,
			string(projectID), dna.IdeaText, string(techStack), dna.DefinitionOfDone)
		return err
	})
}

// GetDNA reads a project's DNA, or core.ErrNotFound if none is stored.
func (s *Store) GetDNA(ctx context.Context, projectID core.ProjectID) (*core.ProjectDNA, error) {
	var idea, techStackJSON, dod string
	row := s.readDB.QueryRowContext(ctx, `SELECT idea_md, tech_stack_json, definition_of_done_md FROM project_dna WHERE project_id = ?`, string(projectID))
	if err := row.Scan(&idea, &techStackJSON, &dod); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound("project_dna", string(projectID))
		}
		return nil, err
	}

	techStack := map[string]core.DependencyConstraint{}
	if err := json.Unmarshal([]byte(techStackJSON), &techStack); err != nil {
		return nil, err
	}

	return &core.ProjectDNA{IdeaText: idea, TechStack: techStack, DefinitionOfDone: dod}, nil
}
