// cmd/chaos-duck/main.go
package main

import (
	"context"
	"flag"
	"os"
	"strconv"

	"task-recipes/internal/app"
	"task-recipes/internal/chaos"
	"task-recipes/internal/common/config"
	"task-recipes/internal/orchestrator/apiclient"

	"go.uber.org/zap"
)

// Usage: chaos-duck [-config path] [-no-havoc] [iterations]
func main() {
	noHavoc := flag.Bool("no-havoc", false, "Only drive pings, leave the containers alone")
	app.Main("chaos-duck", func(ctx context.Context, a *app.App) error {
		cfg := a.Config
		iterations := cfg.Chaos.Runs
		if arg := flag.Arg(0); arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return err
			}
			iterations = n
		}

		tasks := apiclient.New(cfg.Orchestrator.RemoteURL(), cfg.Orchestrator.APIToken, 0)
		driver := chaos.NewDriver(tasks, os.Stdout, config.GetDuration(cfg.Chaos.PollInterval))

		var havoc *chaos.Havoc
		if !*noHavoc && !cfg.Chaos.DisableHavoc {
			rt, err := chaos.NewDockerRuntime()
			if err != nil {
				a.Zap.Warn("Docker unavailable, running without havoc", zap.Error(err))
			} else {
				defer rt.Close()
				havoc = chaos.NewHavoc(rt, tasks, cfg.Chaos, os.Stdout, a.Log)
			}
		}

		report, err := chaos.RunWithHavoc(ctx, driver, havoc, iterations)
		if report != nil {
			report.Print(os.Stdout)
		}
		return err
	})
}
