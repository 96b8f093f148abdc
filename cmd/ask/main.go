// cmd/ask/main.go
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"task-recipes/internal/app"
	"task-recipes/internal/services/ask"
)

// Usage: ask [-url http://localhost:5000] [question...]
func main() {
	baseURL := flag.String("url", "", "Task monitor base URL (defaults to servers.monitoring on localhost)")
	app.Main("ask", func(ctx context.Context, a *app.App) error {
		u := *baseURL
		if u == "" {
			u = "http://localhost" + a.Config.Servers.Monitoring
		}
		return ask.New(u, os.Stdout).Ask(ctx, strings.Join(flag.Args(), " "))
	})
}
