package model

import "time"

// Priority classifies queue items. Individually requested records are
// high priority; bulk sweep items are low.
type Priority int

const (
	PriorityLow  Priority = 0
	PriorityHigh Priority = 10
)

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

// Terminal reports whether the status is a final one.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemCancelled:
		return true
	}
	return false
}

// QueueItem is one scheduling request for a prospect. At most one
// non-terminal item may exist per prospect id at a time.
type QueueItem struct {
	ID         string     `json:"id"`
	ProspectID string     `json:"prospect_id"`
	Kinds      KindSet    `json:"kinds"`
	UserID     string     `json:"user_id"`
	Force      bool       `json:"force"`
	Priority   Priority   `json:"priority"`
	Status     ItemStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CurrentKind is set while the item is processing.
	CurrentKind    Kind   `json:"current_kind,omitempty"`
	CompletedKinds []Kind `json:"completed_kinds,omitempty"`

	Error  string            `json:"error,omitempty"`
	Result *EnrichmentResult `json:"result,omitempty"`
}

// ItemSnapshot is the externally visible status of a queue item.
type ItemSnapshot struct {
	ID             string            `json:"id"`
	ProspectID     string            `json:"prospect_id"`
	Status         ItemStatus        `json:"status"`
	Position       int               `json:"position"` // 1-based when queued, 0 otherwise
	CurrentKind    Kind              `json:"current_kind,omitempty"`
	CompletedKinds []Kind            `json:"completed_kinds,omitempty"`
	Error          string            `json:"error,omitempty"`
	Result         *EnrichmentResult `json:"result,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// QueueStats is the aggregate queue status surface.
type QueueStats struct {
	Queued        int           `json:"queued"`
	Processing    int           `json:"processing"`
	Terminal      int           `json:"terminal"`
	WorkerRunning bool          `json:"worker_running"`
	Current       *ItemSnapshot `json:"current,omitempty"`
}
