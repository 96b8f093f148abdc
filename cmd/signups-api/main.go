// cmd/signups-api/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/signups"
	"task-recipes/internal/users"
)

func main() {
	app.Main("signups-api", func(ctx context.Context, a *app.App) error {
		rdb, err := a.Redis(ctx)
		if err != nil {
			return err
		}
		tasks, err := a.Tasks(ctx)
		if err != nil {
			return err
		}
		srv := signups.NewServer(users.NewStore(rdb.Client), tasks, a.Log)
		return a.ServeHTTP(ctx, a.Config.Servers.Signups, srv.Routes())
	})
}
