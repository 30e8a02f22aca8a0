package core

import (
	"path/filepath"
	"time"
)

// ProjectStatus is the coarse-grained lifecycle status stored for a
// project. It is distinct from Phase: Phase is the orchestrator's
// in-memory state-machine position while a project is being driven;
// ProjectStatus is what the durable store persists and what the queue
// uses to decide dispatch eligibility.
type ProjectStatus string

const (
	ProjectQueued     ProjectStatus = "queued"
	ProjectLoading    ProjectStatus = "loading"
	ProjectPlanning   ProjectStatus = "planning"
	ProjectBuilding   ProjectStatus = "building"
	ProjectVerifying  ProjectStatus = "verifying"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
	ProjectPaused     ProjectStatus = "paused"
	ProjectInCooldown ProjectStatus = "cooldown"
)

// Dispatchable reports whether a project in this status may be picked up
// by next_project().
func (s ProjectStatus) Dispatchable() bool {
	return s == ProjectQueued || s == ProjectPaused
}

// Project is a queued software build. Exactly one Project exists per id;
// the store is its exclusive owner.
type Project struct {
	ID             ProjectID
	Name           string
	RepoURL        string
	LocalPath      string
	Status         ProjectStatus
	Priority       int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CurrentTaskID  *TaskID
	LastVerifiedHash string
	ErrorMessage   string
}

// NewProject builds a fresh, queued Project ready to hand to the store.
func NewProject(localPath string, priority int) *Project {
	return &Project{
		ID:        newProjectID(),
		Name:      filepath.Base(localPath),
		LocalPath: localPath,
		Status:    ProjectQueued,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// DependencyConstraint is one entry of a ProjectDNA's tech-stack mapping.
type DependencyConstraint struct {
	Constraint string `yaml:"constraint"`
	Dev        bool   `yaml:"dev"`
}

// ProjectDNA is the three-file specification a project is built from.
type ProjectDNA struct {
	IdeaText         string
	TechStack        map[string]DependencyConstraint
	DefinitionOfDone string
}

// Validate reports whether a ProjectDNA carries enough information to
// leave the loading phase. A project without DNA cannot proceed.
func (d *ProjectDNA) Validate() (bool, []string) {
	var errs []string
	if d == nil {
		return false, []string{"project DNA is missing"}
	}
	if d.IdeaText == "" {
		errs = append(errs, "idea text is required")
	}
	if d.DefinitionOfDone == "" {
		errs = append(errs, "definition of done is required")
	}
	return len(errs) == 0, errs
}
