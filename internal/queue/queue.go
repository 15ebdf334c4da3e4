// Package queue implements the in-process work queue, the single-worker
// scheduler that drains it, and the bulk sweep controller that feeds it
// low-priority batches.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
)

// ErrNotFound is returned when an item id is unknown (or already GC'd).
var ErrNotFound = eris.New("queue: item not found")

// ErrConflict is returned when a prospect already has a live item owned
// by a different requester.
var ErrConflict = eris.New("queue: prospect already queued by another user")

// ErrNotCancellable is returned when cancelling an item that is not in
// the queued state.
var ErrNotCancellable = eris.New("queue: only queued items can be cancelled")

// DefaultRetention is how long terminal items stay visible for status
// polling before garbage collection.
const DefaultRetention = 5 * time.Minute

// Queue holds enrichment requests. At most one non-terminal item exists
// per prospect id; dequeue order is priority class first, FIFO within a
// class. All state lives behind a single mutex.
type Queue struct {
	mu         sync.Mutex
	items      map[string]*model.QueueItem
	byProspect map[string]string // prospect id -> live item id
	pending    []string          // queued item ids in arrival order
	retention  time.Duration
	now        func() time.Time
}

// New creates an empty queue. A non-positive retention falls back to
// DefaultRetention.
func New(retention time.Duration) *Queue {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Queue{
		items:      map[string]*model.QueueItem{},
		byProspect: map[string]string{},
		retention:  retention,
		now:        time.Now,
	}
}

// EnqueueRequest is the boundary input for one enrichment request.
type EnqueueRequest struct {
	ProspectID string
	Kinds      model.KindSet
	UserID     string
	Force      bool
	Priority   model.Priority
}

// Enqueue adds a request. When the prospect already has a live item from
// the same requester the existing item is returned with duplicate=true;
// a live item from a different requester is ErrConflict. Queued and
// processing items both count as live.
func (q *Queue) Enqueue(req EnqueueRequest) (*model.ItemSnapshot, bool, error) {
	if req.ProspectID == "" {
		return nil, false, eris.New("queue: empty prospect id")
	}
	if len(req.Kinds) == 0 {
		req.Kinds = model.AllKinds()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked()

	if liveID, ok := q.byProspect[req.ProspectID]; ok {
		live := q.items[liveID]
		if live.UserID == req.UserID {
			return q.snapshotLocked(live), true, nil
		}
		return nil, false, eris.Wrapf(ErrConflict, "prospect %s held by %s", req.ProspectID, live.UserID)
	}

	item := &model.QueueItem{
		ID:         uuid.New().String(),
		ProspectID: req.ProspectID,
		Kinds:      req.Kinds,
		UserID:     req.UserID,
		Force:      req.Force,
		Priority:   req.Priority,
		Status:     model.ItemQueued,
		CreatedAt:  q.now().UTC(),
	}
	q.items[item.ID] = item
	q.byProspect[item.ProspectID] = item.ID
	q.pending = append(q.pending, item.ID)

	return q.snapshotLocked(item), false, nil
}

// DequeueNext removes and returns the next item to work on, marking it
// processing, or nil when the queue is empty. Highest priority class
// wins; within a class the oldest item wins.
func (q *Queue) DequeueNext() *model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked()

	best := -1
	for i, id := range q.pending {
		item := q.items[id]
		if best == -1 || item.Priority > q.items[q.pending[best]].Priority {
			best = i
		}
	}
	if best == -1 {
		return nil
	}

	id := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)

	item := q.items[id]
	now := q.now().UTC()
	item.Status = model.ItemProcessing
	item.StartedAt = &now

	cp := *item
	return &cp
}

// Cancel moves a queued item to cancelled. Processing and terminal items
// cannot be cancelled.
func (q *Queue) Cancel(itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if item.Status != model.ItemQueued {
		return eris.Wrapf(ErrNotCancellable, "item %s is %s", itemID, item.Status)
	}

	for i, id := range q.pending {
		if id == itemID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.finalizeLocked(item, model.ItemCancelled)
	return nil
}

// SetCurrentKind records pipeline progress on a processing item. The
// previous current kind, if any, is folded into CompletedKinds.
func (q *Queue) SetCurrentKind(itemID string, kind model.Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok || item.Status != model.ItemProcessing {
		return
	}
	if item.CurrentKind != "" {
		item.CompletedKinds = append(item.CompletedKinds, item.CurrentKind)
	}
	item.CurrentKind = kind
}

// Complete finalizes a processing item as completed with its result.
func (q *Queue) Complete(itemID string, result *model.EnrichmentResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok {
		return
	}
	item.Result = result
	q.finalizeLocked(item, model.ItemCompleted)
}

// Fail finalizes a processing item as failed with a message. A partial
// result, when available, is kept for the status surface.
func (q *Queue) Fail(itemID, msg string, result *model.EnrichmentResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok {
		return
	}
	item.Error = msg
	if result != nil {
		item.Result = result
	}
	q.finalizeLocked(item, model.ItemFailed)
}

// Get returns the externally visible status of an item.
func (q *Queue) Get(itemID string) (*model.ItemSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked()

	item, ok := q.items[itemID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	return q.snapshotLocked(item), nil
}

// Stats returns aggregate counts and the currently processing item.
func (q *Queue) Stats() model.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gcLocked()

	var stats model.QueueStats
	for _, item := range q.items {
		switch {
		case item.Status == model.ItemQueued:
			stats.Queued++
		case item.Status == model.ItemProcessing:
			stats.Processing++
			stats.Current = q.snapshotLocked(item)
		default:
			stats.Terminal++
		}
	}
	return stats
}

// HighPriorityPending reports whether any queued item is high priority.
// The sweep controller polls this to decide when to yield.
func (q *Queue) HighPriorityPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.pending {
		if q.items[id].Priority == model.PriorityHigh {
			return true
		}
	}
	return false
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// finalizeLocked moves an item to a terminal status and frees its
// prospect for new requests.
func (q *Queue) finalizeLocked(item *model.QueueItem, status model.ItemStatus) {
	now := q.now().UTC()
	if item.CurrentKind != "" {
		item.CompletedKinds = append(item.CompletedKinds, item.CurrentKind)
		item.CurrentKind = ""
	}
	item.Status = status
	item.CompletedAt = &now
	if q.byProspect[item.ProspectID] == item.ID {
		delete(q.byProspect, item.ProspectID)
	}
}

// gcLocked drops terminal items past the retention window.
func (q *Queue) gcLocked() {
	cutoff := q.now().UTC().Add(-q.retention)
	for id, item := range q.items {
		if item.Status.Terminal() && item.CompletedAt != nil && item.CompletedAt.Before(cutoff) {
			delete(q.items, id)
		}
	}
}

// snapshotLocked renders an item's status. Position is the 1-based rank
// in dequeue order for queued items, 0 otherwise.
func (q *Queue) snapshotLocked(item *model.QueueItem) *model.ItemSnapshot {
	snap := &model.ItemSnapshot{
		ID:             item.ID,
		ProspectID:     item.ProspectID,
		Status:         item.Status,
		CurrentKind:    item.CurrentKind,
		CompletedKinds: append([]model.Kind(nil), item.CompletedKinds...),
		Error:          item.Error,
		Result:         item.Result,
		CreatedAt:      item.CreatedAt,
	}
	if item.Status == model.ItemQueued {
		snap.Position = q.positionLocked(item)
	}
	return snap
}

// positionLocked counts the queued items that would dequeue before this
// one: any higher-priority item, or a same-priority item that arrived
// earlier.
func (q *Queue) positionLocked(item *model.QueueItem) int {
	pos := 1
	for i, id := range q.pending {
		other := q.items[id]
		if other.ID == item.ID {
			continue
		}
		if other.Priority > item.Priority {
			pos++
			continue
		}
		if other.Priority == item.Priority && q.arrivedBeforeLocked(i, item.ID) {
			pos++
		}
	}
	return pos
}

func (q *Queue) arrivedBeforeLocked(idx int, itemID string) bool {
	for _, id := range q.pending[idx+1:] {
		if id == itemID {
			return true
		}
	}
	return false
}
