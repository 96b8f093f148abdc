// cmd/task-monitor/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/monitoring"
)

func main() {
	app.Main("task-monitor", func(ctx context.Context, a *app.App) error {
		tasks, err := a.Tasks(ctx)
		if err != nil {
			return err
		}
		return a.ServeFiber(ctx, a.Config.Servers.Monitoring, monitoring.NewServer(tasks, a.Log).App())
	})
}
