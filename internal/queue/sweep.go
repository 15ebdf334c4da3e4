package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// SweepUserID is the requester identity sweep items carry, and the
// owner id their record locks are taken under.
const SweepUserID = "bulk_sweep"

const (
	defaultSweepBatch = 25
	// sweepYield is how long the feeder sleeps while high-priority work
	// is pending or the queue backlog is full.
	sweepYield = 500 * time.Millisecond
	// maxSweepErrors bounds the recent-error list kept for progress.
	maxSweepErrors = 20
)

// ErrSweepActive is returned when a sweep is started while another runs.
var ErrSweepActive = eris.New("queue: a sweep is already running")

// ErrNoSweep is returned when no sweep is active.
var ErrNoSweep = eris.New("queue: no active sweep")

// SweepProgress is the externally visible state of a sweep.
type SweepProgress struct {
	Kind         model.Kind `json:"kind"`
	SkipExisting bool       `json:"skip_existing"`
	Active       bool       `json:"active"`
	Total        int        `json:"total"`
	Enqueued     int        `json:"enqueued"`
	Completed    int        `json:"completed"`
	Failed       int        `json:"failed"`
	RecentErrors []string   `json:"recent_errors,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
}

type sweepState struct {
	kind         model.Kind
	skipExisting bool
	total        int
	remaining    []string
	itemIDs      []string
	startedAt    time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// SweepController runs at most one bulk sweep at a time: it scans the
// store for candidate prospects and feeds them to the queue as
// low-priority items, yielding whenever high-priority work is pending.
type SweepController struct {
	queue *Queue
	store store.Store

	batchSize int

	mu     sync.Mutex
	active *sweepState
}

// NewSweepController creates an idle controller.
func NewSweepController(q *Queue, st store.Store) *SweepController {
	return &SweepController{queue: q, store: st, batchSize: defaultSweepBatch}
}

// StartSweep scans for candidates and starts the feeder goroutine,
// returning how many prospects the sweep covers. With skipExisting the
// scan selects only records still missing the kind and items run
// without force; otherwise every record is swept with force.
func (c *SweepController) StartSweep(ctx context.Context, kind model.Kind, skipExisting bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		select {
		case <-c.active.done:
			// Previous sweep's feeder finished; it can be replaced.
		default:
			return 0, ErrSweepActive
		}
	}

	var (
		ids []string
		err error
	)
	if skipExisting {
		ids, err = c.store.ListMissingKind(ctx, kind, 0)
	} else {
		ids, err = c.store.ListProspectIDs(ctx, 0)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "queue: sweep scan %s", kind)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	st := &sweepState{
		kind:         kind,
		skipExisting: skipExisting,
		total:        len(ids),
		remaining:    ids,
		startedAt:    time.Now().UTC(),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	c.active = st

	go c.feed(feedCtx, st)
	zap.L().Info("sweep started",
		zap.String("kind", string(kind)),
		zap.Bool("skip_existing", skipExisting),
		zap.Int("total", len(ids)),
	)
	return len(ids), nil
}

// StopSweep halts the feeder. Items already enqueued stay queued.
func (c *SweepController) StopSweep() error {
	c.mu.Lock()
	st := c.active
	c.mu.Unlock()
	if st == nil {
		return ErrNoSweep
	}

	st.cancel()
	<-st.done

	c.mu.Lock()
	if c.active == st {
		c.active = nil
	}
	c.mu.Unlock()
	zap.L().Info("sweep stopped", zap.String("kind", string(st.kind)))
	return nil
}

// Progress reports the current (or, before the next StartSweep, the
// finished) sweep's state.
func (c *SweepController) Progress() (SweepProgress, error) {
	c.mu.Lock()
	st := c.active
	c.mu.Unlock()
	if st == nil {
		return SweepProgress{}, ErrNoSweep
	}

	prog := SweepProgress{
		Kind:         st.kind,
		SkipExisting: st.skipExisting,
		Total:        st.total,
		StartedAt:    st.startedAt,
	}
	select {
	case <-st.done:
	default:
		prog.Active = true
	}

	c.mu.Lock()
	itemIDs := append([]string(nil), st.itemIDs...)
	c.mu.Unlock()
	prog.Enqueued = len(itemIDs)

	for _, id := range itemIDs {
		snap, err := c.queue.Get(id)
		if err != nil {
			// GC'd terminal items count as completed.
			prog.Completed++
			continue
		}
		switch snap.Status {
		case model.ItemCompleted:
			prog.Completed++
		case model.ItemFailed, model.ItemCancelled:
			prog.Failed++
			if snap.Error != "" && len(prog.RecentErrors) < maxSweepErrors {
				prog.RecentErrors = append(prog.RecentErrors, snap.ProspectID+": "+snap.Error)
			}
		}
	}
	return prog, nil
}

// feed enqueues the sweep's prospects one at a time, yielding to
// high-priority work between records.
func (c *SweepController) feed(ctx context.Context, st *sweepState) {
	defer close(st.done)

	kinds := model.KindSet{st.kind: true}
	backlog := c.batchSize

	for len(st.remaining) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Individual requests drain first; a full low-priority backlog
		// also pauses the feeder so cancels stay cheap.
		if c.queue.HighPriorityPending() || c.queue.Len() >= backlog {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sweepYield):
			}
			continue
		}

		id := st.remaining[0]
		st.remaining = st.remaining[1:]

		snap, duplicate, err := c.queue.Enqueue(EnqueueRequest{
			ProspectID: id,
			Kinds:      kinds,
			UserID:     SweepUserID,
			Force:      !st.skipExisting,
			Priority:   model.PriorityLow,
		})
		if err != nil {
			// A conflicting individual request already covers this record.
			zap.L().Debug("sweep skip", zap.String("prospect_id", id), zap.Error(err))
			continue
		}
		if !duplicate {
			c.mu.Lock()
			st.itemIDs = append(st.itemIDs, snap.ID)
			c.mu.Unlock()
		}
	}
	zap.L().Info("sweep feed finished", zap.String("kind", string(st.kind)))
}
