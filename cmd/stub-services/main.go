// cmd/stub-services/main.go
package main

import (
	"context"

	"task-recipes/internal/app"
	"task-recipes/internal/services/stubs"
)

func main() {
	app.Main("stub-services", func(ctx context.Context, a *app.App) error {
		rec := &stubs.Recorder{}
		errCh := make(chan error, 2)
		go func() { errCh <- a.ServeFiber(ctx, a.Config.Servers.Mail, stubs.MailApp(rec, a.Log)) }()
		go func() { errCh <- a.ServeFiber(ctx, a.Config.Servers.Onboarding, stubs.OnboardingApp(rec, a.Log)) }()

		// Either server failing stops both.
		err := <-errCh
		if ctx.Err() == nil {
			return err
		}
		return <-errCh
	})
}
