package streaming

import (
	"context"
	"time"
)

// Event is a live notification emitted while a run executes.
type Event struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	NodeID     string         `json:"node_id,omitempty"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}

// Filter narrows which events a subscriber receives. Zero-value matches
// everything.
type Filter struct {
	RunID      string   `json:"run_id,omitempty"`
	WorkflowID string   `json:"workflow_id,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// Hub provides pub/sub for live run events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
