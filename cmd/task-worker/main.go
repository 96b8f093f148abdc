// cmd/task-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"task-recipes/internal/app"
	commonhttp "task-recipes/internal/common/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	app.Main("task-worker", run)
}

func run(ctx context.Context, a *app.App) error {
	if a.Config.Orchestrator.Broker == "memory" {
		return errors.New("the memory broker only works inside the orchestrator process; use asynq or zeebe")
	}

	st, err := a.Stack(ctx)
	if err != nil {
		return err
	}
	reg, err := a.WorkerRegistry(ctx)
	if err != nil {
		return err
	}

	// --- Health & Metrics Server ---
	r := commonhttp.NewChiRouter(a.Log)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		for name, p := range st.Pingers {
			if err := p.Ping(r.Context()); err != nil {
				commonhttp.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"store":  name,
				})
				return
			}
		}
		commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := a.ServeHTTP(ctx, a.Config.Servers.Worker, r); err != nil {
			a.Zap.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	err = a.ServeWorker(ctx, reg, st)
	a.Zap.Info("Shutdown signal received, stopping workers...")
	if cerr := st.Broker.Close(); cerr != nil {
		a.Zap.Error("Error closing broker", zap.Error(cerr))
	}
	return err
}
