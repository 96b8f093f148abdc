// cmd/quickstart-api/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/quickstart"
)

func main() {
	app.Main("quickstart-api", func(ctx context.Context, a *app.App) error {
		tasks, err := a.Tasks(ctx)
		if err != nil {
			return err
		}
		return a.ServeHTTP(ctx, a.Config.Servers.Quickstart, quickstart.NewServer(tasks, a.Log).Routes())
	})
}
