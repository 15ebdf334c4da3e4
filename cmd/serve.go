package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/queue"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment engine with its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		env.Worker.Start()

		// Periodic stale lock reclamation.
		var schedule *cron.Cron
		if cfg.Lock.ReclaimCron != "" {
			schedule = cron.New()
			_, err := schedule.AddFunc(cfg.Lock.ReclaimCron, func() {
				n, err := env.Store.ReclaimStaleLocks(ctx, staleLockAge())
				if err != nil {
					zap.L().Error("stale lock reclaim failed", zap.Error(err))
					return
				}
				if n > 0 {
					zap.L().Info("stale locks reclaimed", zap.Int("count", n))
				}
			})
			if err != nil {
				return eris.Wrap(err, "schedule lock reclaim")
			}
			schedule.Start()
			defer schedule.Stop()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(cmd.Context())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/enhancements", handleEnqueue(env))
		r.Get("/enhancements", handleQueueStats(env))
		r.Get("/enhancements/{itemID}", handleItemStatus(env))
		r.Delete("/enhancements/{itemID}", handleCancel(env))

		r.Post("/worker/start", func(w http.ResponseWriter, _ *http.Request) {
			env.Worker.Start()
			writeJSON(w, http.StatusOK, map[string]bool{"running": true})
		})
		r.Post("/worker/stop", func(w http.ResponseWriter, _ *http.Request) {
			if err := env.Worker.Stop(); err != nil {
				writeError(w, http.StatusGatewayTimeout, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"running": false})
		})

		r.Post("/locks/reclaim", func(w http.ResponseWriter, req *http.Request) {
			n, err := env.Store.ReclaimStaleLocks(req.Context(), staleLockAge())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"reclaimed": n})
		})

		r.Post("/sweeps", handleStartSweep(env))
		r.Get("/sweeps", handleSweepProgress(env))
		r.Delete("/sweeps", handleStopSweep(env))
	})

	return r
}

func handleEnqueue(env *engineEnv) http.HandlerFunc {
	type request struct {
		ProspectID string `json:"prospect_id"`
		Kinds      string `json:"kinds"`
		UserID     string `json:"user_id"`
		Force      bool   `json:"force"`
	}
	type response struct {
		ItemID    string `json:"item_id"`
		Position  int    `json:"position"`
		Duplicate bool   `json:"duplicate"`
	}

	return func(w http.ResponseWriter, req *http.Request) {
		var body request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.ProspectID == "" {
			writeError(w, http.StatusBadRequest, "prospect_id is required")
			return
		}
		kinds, ok := model.ParseKinds(body.Kinds)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown enhancement kind")
			return
		}

		snap, duplicate, err := env.Queue.Enqueue(queue.EnqueueRequest{
			ProspectID: body.ProspectID,
			Kinds:      kinds,
			UserID:     body.UserID,
			Force:      body.Force,
			Priority:   model.PriorityHigh,
		})
		if err != nil {
			if eris.Is(err, queue.ErrConflict) {
				writeError(w, http.StatusConflict, "prospect already queued by another user")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, response{
			ItemID:    snap.ID,
			Position:  snap.Position,
			Duplicate: duplicate,
		})
	}
}

func handleItemStatus(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap, err := env.Queue.Get(chi.URLParam(req, "itemID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleCancel(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := env.Queue.Cancel(chi.URLParam(req, "itemID"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		case eris.Is(err, queue.ErrNotFound):
			writeError(w, http.StatusNotFound, "item not found")
		case eris.Is(err, queue.ErrNotCancellable):
			writeError(w, http.StatusConflict, "only queued items can be cancelled")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func handleQueueStats(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := env.Queue.Stats()
		stats.WorkerRunning = env.Worker.Running()
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleStartSweep(env *engineEnv) http.HandlerFunc {
	type request struct {
		Kind         string `json:"kind"`
		SkipExisting *bool  `json:"skip_existing"`
	}

	return func(w http.ResponseWriter, req *http.Request) {
		var body request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kinds, ok := model.ParseKinds(body.Kind)
		if !ok || len(kinds) != 1 {
			writeError(w, http.StatusBadRequest, "kind must name exactly one enhancement")
			return
		}
		skipExisting := true
		if body.SkipExisting != nil {
			skipExisting = *body.SkipExisting
		}

		total, err := env.Sweeps.StartSweep(req.Context(), kinds.Slice()[0], skipExisting)
		if err != nil {
			if eris.Is(err, queue.ErrSweepActive) {
				writeError(w, http.StatusConflict, "a sweep is already running")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"total": total})
	}
}

func handleSweepProgress(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		prog, err := env.Sweeps.Progress()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active sweep")
			return
		}
		writeJSON(w, http.StatusOK, prog)
	}
}

func handleStopSweep(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := env.Sweeps.StopSweep(); err != nil {
			writeError(w, http.StatusNotFound, "no active sweep")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
