package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"task-recipes/internal/orchestrator"
	"task-recipes/internal/orchestrator/apiclient"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Main is the entry point shared by the binaries: it parses flags (declare
// extra ones before calling it), builds the App for name and runs fn until
// SIGINT or SIGTERM. A failing fn exits with status 1.
func Main(name string, fn func(ctx context.Context, a *App) error) {
	configPath := flag.String("config", "", "Path to config file (defaults to configs/config.yaml)")
	flag.Parse()

	ctx, stop := SignalContext(context.Background())
	defer stop()

	a, err := New(ctx, name, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
	a.Zap.Info("Starting " + name + "...")

	if err := fn(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
		a.Zap.Error(name+" failed", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Zap.Info(name + " stopped gracefully")
	a.Close()
}

// Worker builds the executor for reg over the stack. Crashed runs that ask
// for an exit only stop the process when orchestrator.exit_on_crash is set.
func (a *App) Worker(reg *orchestrator.Registry, st *Stack) *orchestrator.Worker {
	exit := func(code int) {
		a.Zap.Warn("Task requested worker exit, ignoring", zap.Int("exitCode", code))
	}
	if a.Config.Orchestrator.ExitOnCrash {
		exit = func(code int) {
			a.Zap.Error("Task requested worker exit", zap.Int("exitCode", code))
			a.Close()
			os.Exit(code)
		}
	}
	return orchestrator.NewWorker(reg, st.Runs, st.Results, st.Cache, a.Log,
		orchestrator.WithObservability(a.Obs),
		orchestrator.WithExitFunc(exit),
	)
}

// ServeWorker serves every task of reg that has a handler until ctx ends.
func (a *App) ServeWorker(ctx context.Context, reg *orchestrator.Registry, st *Stack) error {
	served := reg.Served()
	keys := make([]string, 0, len(served))
	for _, t := range served {
		keys = append(keys, t.Key)
	}
	a.Zap.Info("Serving tasks", zap.Strings("tasks", keys), zap.String("broker", a.Config.Orchestrator.Broker))
	return st.Broker.Serve(ctx, served, a.Worker(reg, st))
}

// Tasks returns the orchestration client front-ends submit through. With
// orchestrator.api_url set it talks to a remote orchestrator. Otherwise it
// connects the stack directly, and with the memory broker it also runs a
// worker in this process since nothing else can reach the queue.
func (a *App) Tasks(ctx context.Context) (orchestrator.Orchestrator, error) {
	o := a.Config.Orchestrator
	if o.APIURL != "" {
		a.Zap.Info("Using remote orchestrator", zap.String("url", o.APIURL))
		return apiclient.New(o.APIURL, o.APIToken, 10*time.Second), nil
	}

	st, err := a.Stack(ctx)
	if err != nil {
		return nil, err
	}
	if o.Broker != "memory" {
		reg, err := a.SubmitRegistry()
		if err != nil {
			return nil, err
		}
		return a.Client(reg, st), nil
	}

	reg, err := a.WorkerRegistry(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := a.ServeWorker(ctx, reg, st); err != nil && !errors.Is(err, context.Canceled) {
			a.Zap.Error("Embedded worker stopped", zap.Error(err))
		}
	}()
	return a.Client(reg, st), nil
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (a *App) ServeHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Zap.Info("HTTP server listening", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Zap.Info("Shutdown signal received, stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeFiber is ServeHTTP for fiber applications.
func (a *App) ServeFiber(ctx context.Context, addr string, app *fiber.App) error {
	errCh := make(chan error, 1)
	go func() {
		a.Zap.Info("HTTP server listening", zap.String("address", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Zap.Info("Shutdown signal received, stopping HTTP server...")
	return app.ShutdownWithTimeout(shutdownTimeout)
}
