package store

import (
	"encoding/json"
	"time"
)

// WorkflowRecord is a persisted workflow definition. Document holds the full
// serialized workflow so it round-trips losslessly through storage.
type WorkflowRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Document    json.RawMessage `json:"document"`
	Version     string          `json:"version"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowFilter narrows ListWorkflows results.
type WorkflowFilter struct {
	Tag   string
	Limit int
}

// RunRecord is a persisted execution of a workflow.
type RunRecord struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      string          `json:"status"`
	CurrentNode string          `json:"current_node,omitempty"`
	Variables   json.RawMessage `json:"variables,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RunUpdate carries the mutable fields of a run. Nil pointers leave the
// stored value untouched.
type RunUpdate struct {
	Status      *string
	CurrentNode *string
	Variables   json.RawMessage
	Results     json.RawMessage
	Error       *string
	CompletedAt *time.Time
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	WorkflowID string
	Status     string
	Limit      int
}

// RunEvent is an append-only record of something that happened during a run.
// Sequence is assigned per run at append time.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Sequence  int64           `json:"sequence"`
	Type      string          `json:"type"`
	NodeID    string          `json:"node_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ScheduledJob triggers a workflow run on a cron schedule.
type ScheduledJob struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	CronExpr   string          `json:"cron_expr"`
	Input      json.RawMessage `json:"input,omitempty"`
	Enabled    bool            `json:"enabled"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ScheduledJobUpdate carries the mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	CronExpr  *string
	Input     json.RawMessage
	Enabled   *bool
	LastRunAt *time.Time
	NextRunAt *time.Time
}
