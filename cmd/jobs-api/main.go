// cmd/jobs-api/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/jobs"
)

func main() {
	app.Main("jobs-api", func(ctx context.Context, a *app.App) error {
		tasks, err := a.Tasks(ctx)
		if err != nil {
			return err
		}
		return a.ServeHTTP(ctx, a.Config.Servers.Jobs, jobs.NewServer(tasks, a.Log).Routes())
	})
}
