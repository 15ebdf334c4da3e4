package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/audit"
	"github.com/sells-group/prospect-enricher/internal/enrich"
	"github.com/sells-group/prospect-enricher/internal/queue"
	"github.com/sells-group/prospect-enricher/internal/store"
	"github.com/sells-group/prospect-enricher/pkg/inference"
)

// engineEnv holds the initialized store, queue, worker, and pipeline
// shared by the serve/enhance/sweep commands.
type engineEnv struct {
	Store    store.Store
	Queue    *queue.Queue
	Worker   *queue.Scheduler
	Sweeps   *queue.SweepController
	Enricher *enrich.Enricher
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Worker != nil {
		_ = e.Worker.Stop()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "prospects.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, inference client, pipeline, queue, and
// worker. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	llm, err := inference.New(cfg.Inference)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	enricher := enrich.New(st, llm, audit.New(st, cfg.Audit.KeepResponses), cfg.Inference.Model)

	q := queue.New(time.Duration(cfg.Queue.RetentionMins) * time.Minute)
	worker := queue.NewScheduler(q, st, enricher,
		queue.WithPollInterval(time.Duration(cfg.Queue.PollIntervalSecs)*time.Second),
		queue.WithStopTimeout(time.Duration(cfg.Queue.StopTimeoutSecs)*time.Second),
	)

	return &engineEnv{
		Store:    st,
		Queue:    q,
		Worker:   worker,
		Sweeps:   queue.NewSweepController(q, st),
		Enricher: enricher,
	}, nil
}

// staleLockAge is the configured threshold for lock reclamation.
func staleLockAge() time.Duration {
	return time.Duration(cfg.Lock.StaleAfterMins) * time.Minute
}
