package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/model"
)

func TestSweepEnqueuesMissingRecords(t *testing.T) {
	t.Parallel()

	q := New(0)
	ls := newLockStore("p1", "p2", "p3")
	ls.missingK = []string{"p1", "p3"}
	c := NewSweepController(q, ls)

	total, err := c.StartSweep(context.Background(), model.KindNaics, true)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	waitFor(t, func() bool { return q.Len() == 2 })

	// Sweep items are low priority and carry the sweep identity.
	item := q.DequeueNext()
	require.NotNil(t, item)
	assert.Equal(t, model.PriorityLow, item.Priority)
	assert.Equal(t, SweepUserID, item.UserID)
	assert.False(t, item.Force)
	assert.Equal(t, model.KindSet{model.KindNaics: true}, item.Kinds)

	require.NoError(t, c.StopSweep())
}

func TestSweepAllRecordsForces(t *testing.T) {
	t.Parallel()

	q := New(0)
	ls := newLockStore("p1", "p2")
	c := NewSweepController(q, ls)

	total, err := c.StartSweep(context.Background(), model.KindTitle, false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	waitFor(t, func() bool { return q.Len() == 2 })
	item := q.DequeueNext()
	require.NotNil(t, item)
	assert.True(t, item.Force)

	require.NoError(t, c.StopSweep())
}

func TestSweepSingleFlight(t *testing.T) {
	t.Parallel()

	q := New(0)
	ls := newLockStore("p1")
	ls.missingK = []string{"p1"}
	c := NewSweepController(q, ls)

	_, err := c.StartSweep(context.Background(), model.KindNaics, true)
	require.NoError(t, err)

	_, err = c.StartSweep(context.Background(), model.KindTitle, true)
	assert.ErrorIs(t, err, ErrSweepActive)

	require.NoError(t, c.StopSweep())
	assert.ErrorIs(t, c.StopSweep(), ErrNoSweep)

	// After stopping, a new sweep may start.
	_, err = c.StartSweep(context.Background(), model.KindTitle, true)
	require.NoError(t, err)
	require.NoError(t, c.StopSweep())
}

func TestSweepYieldsToHighPriority(t *testing.T) {
	t.Parallel()

	q := New(0)
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = "p" + string(rune('0'+i/10)) + string(rune('0'+i%10))
	}
	ls := newLockStore(ids...)
	ls.missingK = ids
	c := NewSweepController(q, ls)

	// An individual request is already waiting; the feeder must not
	// enqueue anything while it is pending.
	enqueueHigh(t, q, "urgent", "alice")

	_, err := c.StartSweep(context.Background(), model.KindNaics, true)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, q.Len())

	// Draining the high-priority item lets the feeder resume.
	item := q.DequeueNext()
	require.Equal(t, "urgent", item.ProspectID)
	q.Complete(item.ID, model.NewEnrichmentResult("urgent"))

	waitFor(t, func() bool { return q.Len() > 0 })
	require.NoError(t, c.StopSweep())
}

func TestSweepSkipsConflictingProspects(t *testing.T) {
	t.Parallel()

	q := New(0)
	ls := newLockStore("p1", "p2")
	ls.missingK = []string{"p1", "p2"}
	c := NewSweepController(q, ls)

	// p1 is already queued individually; the sweep passes over it.
	enqueueHigh(t, q, "p1", "alice")
	item := q.DequeueNext()
	require.Equal(t, "p1", item.ProspectID)

	_, err := c.StartSweep(context.Background(), model.KindNaics, true)
	require.NoError(t, err)

	waitFor(t, func() bool { return q.Len() == 1 })
	got := q.DequeueNext()
	assert.Equal(t, "p2", got.ProspectID)

	q.Complete(item.ID, model.NewEnrichmentResult("p1"))
	q.Complete(got.ID, model.NewEnrichmentResult("p2"))
	require.NoError(t, c.StopSweep())
}

func TestSweepProgress(t *testing.T) {
	t.Parallel()

	q := New(0)
	ls := newLockStore("p1", "p2", "p3")
	ls.missingK = []string{"p1", "p2", "p3"}
	c := NewSweepController(q, ls)

	_, err := c.Progress()
	assert.ErrorIs(t, err, ErrNoSweep)

	total, err := c.StartSweep(context.Background(), model.KindSetAside, true)
	require.NoError(t, err)
	require.Equal(t, 3, total)

	waitFor(t, func() bool { return q.Len() == 3 })

	// Complete one, fail one, leave one queued.
	first := q.DequeueNext()
	q.Complete(first.ID, model.NewEnrichmentResult(first.ProspectID))
	second := q.DequeueNext()
	q.Fail(second.ID, "record locked by another enhancement", nil)

	prog, err := c.Progress()
	require.NoError(t, err)
	assert.Equal(t, model.KindSetAside, prog.Kind)
	assert.True(t, prog.SkipExisting)
	assert.Equal(t, 3, prog.Total)
	assert.Equal(t, 3, prog.Enqueued)
	assert.Equal(t, 1, prog.Completed)
	assert.Equal(t, 1, prog.Failed)
	require.Len(t, prog.RecentErrors, 1)
	assert.Contains(t, prog.RecentErrors[0], "locked")

	require.NoError(t, c.StopSweep())
}
