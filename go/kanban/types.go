// Package kanban coordinates bounded-WIP execution of work items with
// dependencies, persisted in the shared work-queue.json board.
package kanban

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a work item.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusActive    Status = "ACTIVE"
	StatusBlocked   Status = "BLOCKED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// WorkItem is one unit of queued work. Serialization always uses these
// canonical names; alias forms are normalized by Builder.
type WorkItem struct {
	ID                  string   `json:"id"`
	Description         string   `json:"description"`
	Priority            int      `json:"priority"`             // 1-10, higher is more urgent.
	EstimatedComplexity int      `json:"estimated_complexity"` // 1-5.
	Dependencies        []string `json:"dependencies,omitempty"`
	Status              Status   `json:"status"`
	Agent               string   `json:"agent,omitempty"`
	StartedAt           string   `json:"started_at,omitempty"`
	CompletedAt         string   `json:"completed_at,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// Validate checks structural invariants of a single item.
func (w WorkItem) Validate() error {
	if strings.TrimSpace(w.Description) == "" {
		return fmt.Errorf("work item %s has no description", w.ID)
	}
	if w.Priority < 1 || w.Priority > 10 {
		return fmt.Errorf("work item %s priority %d out of range 1..10", w.ID, w.Priority)
	}
	if w.EstimatedComplexity < 1 || w.EstimatedComplexity > 5 {
		return fmt.Errorf("work item %s complexity %d out of range 1..5", w.ID, w.EstimatedComplexity)
	}
	return nil
}

// Builder accepts the alias field spellings used by older callers and
// produces a canonical WorkItem. Canonical names win when both forms
// are present.
type Builder struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	TaskName    string `json:"task_name"`
	Agent       string `json:"agent"`
	AgentAlias  string `json:"agent_assigned"`

	Priority            int      `json:"priority"`
	EstimatedComplexity int      `json:"estimated_complexity"`
	Dependencies        []string `json:"dependencies"`
}

// Build normalizes aliases and applies defaults: a fresh UUID id,
// priority 5, complexity 3.
func (b Builder) Build() (WorkItem, error) {
	var w = WorkItem{
		ID:                  b.ID,
		Description:         b.Description,
		Agent:               b.Agent,
		Priority:            b.Priority,
		EstimatedComplexity: b.EstimatedComplexity,
		Dependencies:        b.Dependencies,
		Status:              StatusQueued,
	}
	if w.ID == "" {
		w.ID = b.TaskID
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Description == "" {
		w.Description = b.TaskName
	}
	if w.Agent == "" {
		w.Agent = b.AgentAlias
	}
	if w.Priority == 0 {
		w.Priority = 5
	}
	if w.EstimatedComplexity == 0 {
		w.EstimatedComplexity = 3
	}
	if err := w.Validate(); err != nil {
		return WorkItem{}, err
	}
	return w, nil
}

// BuildFromJSON decodes a Builder document (canonical or alias names)
// and normalizes it.
func BuildFromJSON(data []byte) (WorkItem, error) {
	var b Builder
	if err := json.Unmarshal(data, &b); err != nil {
		return WorkItem{}, fmt.Errorf("decoding work item: %w", err)
	}
	return b.Build()
}

// Board is the persisted work-queue document.
type Board struct {
	WIPLimit    int        `json:"wip_limit"`
	WorkItems   []WorkItem `json:"work_items"`
	LastUpdated string     `json:"last_updated"`
}

// StatusSummary counts items per status.
type StatusSummary struct {
	WIPLimit int            `json:"wip_limit"`
	Counts   map[Status]int `json:"counts"`
	Active   []WorkItem     `json:"active"`
	Queued   []WorkItem     `json:"queued"`
}
