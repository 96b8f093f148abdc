// cmd/orchestrator/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"task-recipes/internal/app"
	"task-recipes/internal/common/auth"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/orchestrator/api"

	"go.uber.org/zap"
)

func main() {
	printToken := flag.String("print-token", "", "Print an API token for this subject and exit")
	app.Main("orchestrator", func(ctx context.Context, a *app.App) error {
		tokens, err := auth.NewTokenService(a.Config.Auth)
		if err != nil {
			return err
		}
		if *printToken != "" {
			if tokens == nil {
				return errors.New("auth.jwt.secret is not configured")
			}
			tok, err := tokens.Generate(*printToken, "api")
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		}
		return run(ctx, a, tokens)
	})
}

func run(ctx context.Context, a *app.App, tokens *auth.TokenService) error {
	st, err := a.Stack(ctx)
	if err != nil {
		return err
	}

	// Nothing outside this process can consume the memory queue, so the
	// orchestrator runs the worker itself.
	var reg *orchestrator.Registry
	if a.Config.Orchestrator.Broker == "memory" {
		reg, err = a.WorkerRegistry(ctx)
		if err != nil {
			return err
		}
		go func() {
			if err := a.ServeWorker(ctx, reg, st); err != nil && !errors.Is(err, context.Canceled) {
				a.Zap.Error("Embedded worker stopped", zap.Error(err))
			}
		}()
	} else {
		reg, err = a.SubmitRegistry()
		if err != nil {
			return err
		}
	}

	opts := []api.Option{api.WithAuth(tokens)}
	if st.Inspector != nil {
		opts = append(opts, api.WithInspector(st.Inspector))
	}
	for name, p := range st.Pingers {
		opts = append(opts, api.WithPinger(name, p))
	}
	if tokens == nil {
		a.Zap.Warn("No auth.jwt.secret configured, the API is open")
	}

	srv := api.NewServer(a.Client(reg, st), a.Log, opts...)
	return a.ServeHTTP(ctx, a.Config.Servers.Orchestrator, srv.Routes())
}
