package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/model"
)

func enqueueHigh(t *testing.T, q *Queue, prospectID, userID string) *model.ItemSnapshot {
	t.Helper()
	snap, dup, err := q.Enqueue(EnqueueRequest{
		ProspectID: prospectID,
		Kinds:      model.AllKinds(),
		UserID:     userID,
		Priority:   model.PriorityHigh,
	})
	require.NoError(t, err)
	require.False(t, dup)
	return snap
}

func TestEnqueueDuplicateSameUser(t *testing.T) {
	t.Parallel()

	q := New(0)
	first := enqueueHigh(t, q, "p1", "alice")

	snap, dup, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "alice", Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, snap.ID)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueConflictDifferentUser(t *testing.T) {
	t.Parallel()

	q := New(0)
	enqueueHigh(t, q, "p1", "alice")

	_, _, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "bob", Priority: model.PriorityHigh,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEnqueueConflictWhileProcessing(t *testing.T) {
	t.Parallel()

	q := New(0)
	enqueueHigh(t, q, "p1", "alice")
	require.NotNil(t, q.DequeueNext())

	// Still live while processing.
	_, _, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "bob", Priority: model.PriorityHigh,
	})
	assert.ErrorIs(t, err, ErrConflict)

	// Same user gets the existing item back.
	snap, dup, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "alice", Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, model.ItemProcessing, snap.Status)
}

func TestEnqueueFreshAfterTerminal(t *testing.T) {
	t.Parallel()

	q := New(0)
	enqueueHigh(t, q, "p1", "alice")
	item := q.DequeueNext()
	q.Complete(item.ID, model.NewEnrichmentResult("p1"))

	snap, dup, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "bob", Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEqual(t, item.ID, snap.ID)
}

func TestDequeuePriorityThenFIFO(t *testing.T) {
	t.Parallel()

	q := New(0)
	_, _, err := q.Enqueue(EnqueueRequest{ProspectID: "low1", UserID: "sweep", Priority: model.PriorityLow})
	require.NoError(t, err)
	_, _, err = q.Enqueue(EnqueueRequest{ProspectID: "low2", UserID: "sweep", Priority: model.PriorityLow})
	require.NoError(t, err)
	enqueueHigh(t, q, "high1", "alice")
	enqueueHigh(t, q, "high2", "bob")

	var order []string
	for item := q.DequeueNext(); item != nil; item = q.DequeueNext() {
		order = append(order, item.ProspectID)
	}
	assert.Equal(t, []string{"high1", "high2", "low1", "low2"}, order)
}

func TestDequeueEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, New(0).DequeueNext())
}

func TestCancelQueuedOnly(t *testing.T) {
	t.Parallel()

	q := New(0)
	snap := enqueueHigh(t, q, "p1", "alice")
	require.NoError(t, q.Cancel(snap.ID))

	got, err := q.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemCancelled, got.Status)
	assert.Nil(t, q.DequeueNext())

	// Cancelling again is rejected, as is cancelling a processing item.
	assert.ErrorIs(t, q.Cancel(snap.ID), ErrNotCancellable)

	snap2 := enqueueHigh(t, q, "p2", "alice")
	require.NotNil(t, q.DequeueNext())
	assert.ErrorIs(t, q.Cancel(snap2.ID), ErrNotCancellable)

	assert.ErrorIs(t, q.Cancel("nope"), ErrNotFound)
}

func TestCancelFreesProspect(t *testing.T) {
	t.Parallel()

	q := New(0)
	snap := enqueueHigh(t, q, "p1", "alice")
	require.NoError(t, q.Cancel(snap.ID))

	_, dup, err := q.Enqueue(EnqueueRequest{
		ProspectID: "p1", UserID: "bob", Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestPositionReflectsDequeueOrder(t *testing.T) {
	t.Parallel()

	q := New(0)
	low, _, err := q.Enqueue(EnqueueRequest{ProspectID: "low1", UserID: "sweep", Priority: model.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, 1, low.Position)

	// A later high-priority item jumps the earlier low one.
	high := enqueueHigh(t, q, "high1", "alice")
	assert.Equal(t, 1, high.Position)

	got, err := q.Get(low.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Position)

	stats := q.Stats()
	assert.Equal(t, 2, stats.Queued)
}

func TestTerminalGC(t *testing.T) {
	t.Parallel()

	q := New(time.Minute)
	base := time.Now()
	q.now = func() time.Time { return base }

	snap := enqueueHigh(t, q, "p1", "alice")
	item := q.DequeueNext()
	q.Complete(item.ID, model.NewEnrichmentResult("p1"))

	// Still visible inside the retention window.
	got, err := q.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemCompleted, got.Status)

	q.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = q.Get(snap.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCurrentKindTracksProgress(t *testing.T) {
	t.Parallel()

	q := New(0)
	snap := enqueueHigh(t, q, "p1", "alice")
	item := q.DequeueNext()

	q.SetCurrentKind(item.ID, model.KindTitle)
	q.SetCurrentKind(item.ID, model.KindValue)

	got, err := q.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.KindValue, got.CurrentKind)
	assert.Equal(t, []model.Kind{model.KindTitle}, got.CompletedKinds)

	q.Complete(item.ID, model.NewEnrichmentResult("p1"))
	got, err = q.Get(snap.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CurrentKind)
	assert.Equal(t, []model.Kind{model.KindTitle, model.KindValue}, got.CompletedKinds)
}

func TestConcurrentEnqueueCollapses(t *testing.T) {
	t.Parallel()

	q := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = q.Enqueue(EnqueueRequest{
				ProspectID: "p1", UserID: "alice", Priority: model.PriorityHigh,
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, q.Len())
	stats := q.Stats()
	assert.Equal(t, 1, stats.Queued)
}

func TestHighPriorityPending(t *testing.T) {
	t.Parallel()

	q := New(0)
	assert.False(t, q.HighPriorityPending())

	_, _, err := q.Enqueue(EnqueueRequest{ProspectID: "low1", UserID: "sweep", Priority: model.PriorityLow})
	require.NoError(t, err)
	assert.False(t, q.HighPriorityPending())

	enqueueHigh(t, q, "high1", "alice")
	assert.True(t, q.HighPriorityPending())

	for q.DequeueNext() != nil {
	}
	assert.False(t, q.HighPriorityPending())
}
