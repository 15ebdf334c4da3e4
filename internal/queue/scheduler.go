package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

const (
	defaultPollInterval = time.Second
	defaultStopTimeout  = 30 * time.Second
	// errorPause is how long the worker sleeps after an unexpected
	// error before resuming the loop.
	errorPause = 2 * time.Second
)

// ErrStopTimeout is returned by Stop when the in-flight item did not
// finish within the bound.
var ErrStopTimeout = eris.New("queue: worker stop timed out")

// Runner runs the enrichment pipeline for one request. Implemented by
// *enrich.Enricher.
type Runner interface {
	Run(ctx context.Context, req enrich.Request) (*model.EnrichmentResult, error)
}

// Scheduler drains the queue with a single worker goroutine. For each
// item it acquires the record's enhancement lock, runs the pipeline, and
// releases the lock no matter how the run ended.
type Scheduler struct {
	queue    *Queue
	store    store.Store
	enricher Runner

	pollInterval time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets the sleep between polls of an empty queue.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithStopTimeout bounds how long Stop waits for the in-flight item.
func WithStopTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.stopTimeout = d }
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(q *Queue, st store.Store, e Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		queue:        q,
		store:        st,
		enricher:     e,
		pollInterval: defaultPollInterval,
		stopTimeout:  defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker goroutine. Starting a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	go s.loop(ctx, cancel, s.stopCh, s.doneCh)
	zap.L().Info("enrichment worker started")
}

// Stop signals the worker and waits for the in-flight item to finish,
// up to the stop timeout. On timeout the item's context is cancelled
// and ErrStopTimeout returned. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	cancel := s.cancel
	s.mu.Unlock()

	select {
	case <-done:
		zap.L().Info("enrichment worker stopped")
		return nil
	case <-time.After(s.stopTimeout):
		cancel()
		<-done
		zap.L().Warn("enrichment worker stop timed out, in-flight item abandoned")
		return ErrStopTimeout
	}
}

// Running reports whether the worker goroutine is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, cancel context.CancelFunc, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer cancel()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		item := s.queue.DequeueNext()
		if item == nil {
			select {
			case <-stopCh:
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		if err := s.runItem(ctx, item); err != nil {
			// Item-level errors are recorded on the item; anything that
			// escapes is a worker fault. Log, pause, keep draining.
			zap.L().Error("worker error", zap.String("item_id", item.ID), zap.Error(err))
			select {
			case <-stopCh:
				return
			case <-time.After(errorPause):
			}
		}
	}
}

// runItem processes one dequeued item. The item always ends terminal;
// the returned error marks worker-level faults only.
func (s *Scheduler) runItem(ctx context.Context, item *model.QueueItem) (err error) {
	log := zap.L().With(
		zap.String("item_id", item.ID),
		zap.String("prospect_id", item.ProspectID),
	)

	defer func() {
		if r := recover(); r != nil {
			s.queue.Fail(item.ID, fmt.Sprintf("panic: %v", r), nil)
			err = eris.Errorf("queue: pipeline panic: %v", r)
		}
	}()

	if err := s.store.AcquireLock(ctx, item.ProspectID, item.UserID); err != nil {
		switch {
		case store.IsLockConflict(err):
			// Held by someone else; the item fails without retry.
			s.queue.Fail(item.ID, "record locked by another enhancement", nil)
			log.Info("lock conflict, item failed")
		case store.IsNotFound(err):
			s.queue.Fail(item.ID, "prospect not found", nil)
		default:
			s.queue.Fail(item.ID, err.Error(), nil)
			return eris.Wrap(err, "queue: acquire lock")
		}
		return nil
	}
	defer func() {
		if relErr := s.store.ReleaseLock(context.WithoutCancel(ctx), item.ProspectID); relErr != nil {
			log.Warn("lock release failed", zap.Error(relErr))
		}
	}()

	result, runErr := s.enricher.Run(ctx, enrich.Request{
		ProspectID: item.ProspectID,
		Kinds:      item.Kinds,
		Force:      item.Force,
		OnKind: func(k model.Kind) {
			s.queue.SetCurrentKind(item.ID, k)
		},
	})
	if runErr != nil {
		if store.IsNotFound(runErr) {
			s.queue.Fail(item.ID, "prospect not found", result)
			return nil
		}
		s.queue.Fail(item.ID, runErr.Error(), result)
		log.Warn("enrichment run failed", zap.Error(runErr))
		return nil
	}

	s.queue.Complete(item.ID, result)
	log.Info("item completed",
		zap.Int("changed_kinds", len(result.ChangedKinds())),
		zap.Int("kind_errors", len(result.KindErrors)),
	)
	return nil
}
