package app

import (
	"context"
	"fmt"
	"time"

	"task-recipes/internal/common/camunda"
	"task-recipes/internal/common/config"
	"task-recipes/internal/common/database"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/orchestrator/asynqbroker"
	"task-recipes/internal/orchestrator/objectstore"
	"task-recipes/internal/orchestrator/pgstore"
	"task-recipes/internal/orchestrator/redisstore"
	"task-recipes/pkg/registry"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stack is the broker and stores selected under orchestrator.*.
type Stack struct {
	Runs      orchestrator.RunStore
	Results   orchestrator.ResultStore
	Cache     orchestrator.CacheStore
	Broker    orchestrator.Broker
	Inspector orchestrator.QueueInspector // nil when the broker cannot report queues
	Pingers   map[string]Pinger
}

// Stack connects the configured broker and stores.
func (a *App) Stack(ctx context.Context) (*Stack, error) {
	o := a.Config.Orchestrator
	st := &Stack{Pingers: map[string]Pinger{}}

	var (
		mem *orchestrator.MemoryStore
		rs  *redisstore.Store
	)
	memory := func() *orchestrator.MemoryStore {
		if mem == nil {
			mem = orchestrator.NewMemoryStore()
		}
		return mem
	}
	redisStore := func() (*redisstore.Store, error) {
		if rs != nil {
			return rs, nil
		}
		rdb, err := a.Redis(ctx)
		if err != nil {
			return nil, err
		}
		rs = redisstore.New(rdb.Client, redisstore.WithResultRetention(config.GetDuration(o.ResultRetention)))
		st.Pingers["redis"] = rdb
		return rs, nil
	}

	switch o.RunStore {
	case "memory":
		st.Runs = memory()
	case "redis":
		s, err := redisStore()
		if err != nil {
			return nil, err
		}
		st.Runs = s
	case "postgres":
		pg, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		st.Runs = pgstore.New(pg.DB)
		st.Pingers["postgres"] = pg
	default:
		return nil, fmt.Errorf("unknown run store %q", o.RunStore)
	}

	switch o.ResultStore {
	case "memory":
		st.Results = memory()
	case "redis":
		s, err := redisStore()
		if err != nil {
			return nil, err
		}
		st.Results = s
	case "minio":
		storage, err := objectstore.NewMinIO(ctx, a.Config.Storage.MinIO)
		if err != nil {
			return nil, err
		}
		st.Results = objectstore.New(storage, a.Config.Storage.MinIO.Prefix)
	default:
		return nil, fmt.Errorf("unknown result store %q", o.ResultStore)
	}

	// Cache entries live next to the results when those are in memory and in
	// Redis otherwise.
	if o.ResultStore == "memory" && o.RunStore == "memory" {
		st.Cache = memory()
	} else {
		s, err := redisStore()
		if err != nil {
			return nil, err
		}
		st.Cache = s
	}

	broker, inspector, err := a.broker(ctx)
	if err != nil {
		return nil, err
	}
	st.useBroker(o.Broker, broker, inspector)
	a.OnClose(broker.Close)

	a.Zap.Info("Orchestration stack ready",
		zap.String("broker", o.Broker),
		zap.String("runStore", o.RunStore),
		zap.String("resultStore", o.ResultStore),
	)
	return st, nil
}

// useBroker installs b and, when it can be pinged, checks it on /ready.
func (st *Stack) useBroker(name string, b orchestrator.Broker, inspector orchestrator.QueueInspector) {
	st.Broker = b
	st.Inspector = inspector
	if p, ok := b.(Pinger); ok {
		st.Pingers[name] = p
	}
}

func (a *App) broker(ctx context.Context) (orchestrator.Broker, orchestrator.QueueInspector, error) {
	o := a.Config.Orchestrator
	switch o.Broker {
	case "memory":
		b := orchestrator.NewMemoryBroker(1024, o.Concurrency, a.Log)
		return b, nil, nil
	case "asynq":
		r := a.Config.Database.Redis
		b := asynqbroker.New(asynq.RedisClientOpt{Addr: r.Address, Password: r.Password, DB: r.DB}, asynqbroker.Options{
			Queue:       o.Queue,
			Concurrency: o.Concurrency,
			Printer:     logger.NewPrinter(a.Zap, "asynq"),
		}, a.Log)
		return b, b, nil
	case "zeebe":
		var client *camunda.Client
		err := RetryWithBackoff(ctx, func() error {
			var err error
			client, err = camunda.NewClientWithConfig(camunda.ConfigFrom(a.Config.Camunda))
			return err
		}, 10, 2*time.Second, a.Zap, "Zeebe client initialization")
		if err != nil {
			return nil, nil, err
		}
		a.Zap.Info("Zeebe client connected successfully")
		b := camunda.NewBroker(client, a.Config.Camunda.MaxJobsActive, config.GetDuration(a.Config.Camunda.Timeout), a.Zap)
		return b, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker %q", o.Broker)
	}
}

func (a *App) postgres(ctx context.Context) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := RetryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(a.Config.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		return nil
	}, 15, 2*time.Second, a.Zap, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	a.OnClose(pg.Close)

	if err := pgstore.Migrate(ctx, pg, logger.NewPrinter(a.Zap, "goose")); err != nil {
		return nil, err
	}
	a.Zap.Info("PostgreSQL connected successfully")
	return pg, nil
}

// ApplyCatalog overrides task settings from orchestrator.catalog_path.
func (a *App) ApplyCatalog(reg *orchestrator.Registry) error {
	path := a.Config.Orchestrator.CatalogPath
	if path == "" {
		return nil
	}
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("load task catalog: %w", err)
	}
	if errs := cat.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid task catalog %s: %v", path, errs)
	}
	if err := reg.ApplyCatalog(cat); err != nil {
		return err
	}
	a.Zap.Info("Task catalog applied", zap.String("path", path), zap.Int("entries", len(cat.Tasks)))
	return nil
}

// Client builds a local orchestration client over the stack.
func (a *App) Client(reg *orchestrator.Registry, st *Stack) *orchestrator.Client {
	return orchestrator.NewClient(reg, st.Runs, st.Results, st.Broker, a.Log)
}
