// cmd/webhook-api/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/webhook"
)

func main() {
	app.Main("webhook-api", func(ctx context.Context, a *app.App) error {
		tasks, err := a.Tasks(ctx)
		if err != nil {
			return err
		}
		if a.Config.Webhook.Secret == "" {
			a.Zap.Warn("No webhook.secret configured, deliveries are not verified")
		}
		srv := webhook.NewServer(tasks, a.Config.Webhook.Secret, a.Log)
		return a.ServeHTTP(ctx, a.Config.Servers.Webhook, srv.Routes())
	})
}
