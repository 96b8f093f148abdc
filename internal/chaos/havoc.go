package chaos

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"task-recipes/internal/common/config"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	crashme "task-recipes/internal/workers/chaos/crash-me"
)

// Action is what one havoc roll did.
type Action string

const (
	ActionNone          Action = "none"
	ActionRestartServer Action = "restart_server"
	ActionKillWorker    Action = "kill_worker"
	ActionCrashTask     Action = "crash_task"
)

// Havoc periodically restarts the server, kills a worker or submits a task
// that crashes its worker.
type Havoc struct {
	runtime ContainerRuntime
	tasks   orchestrator.Submitter
	cfg     config.ChaosConfig
	rng     *rand.Rand
	out     io.Writer
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewHavoc(runtime ContainerRuntime, tasks orchestrator.Submitter, cfg config.ChaosConfig, out io.Writer, log logger.Logger) *Havoc {
	return &Havoc{
		runtime: runtime,
		tasks:   tasks,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		out:     out,
		logger:  log.WithFields(map[string]interface{}{"component": "havoc"}),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run rolls until ctx is cancelled. Failed actions are logged and the loop
// keeps going.
func (h *Havoc) Run(ctx context.Context) {
	for {
		if err := h.sleep(ctx, h.pause()); err != nil {
			return
		}
		action, err := h.Roll(ctx)
		if err != nil {
			h.logger.Warn("Havoc action failed", map[string]interface{}{
				"action": string(action),
				"error":  err.Error(),
			})
		}
	}
}

func (h *Havoc) pause() time.Duration {
	lo, hi := h.cfg.MinPause, h.cfg.MaxPause
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+h.rng.Intn(hi-lo+1)) * time.Millisecond
}

// Roll picks at most one action. Each branch rolls its own dice.
func (h *Havoc) Roll(ctx context.Context) (Action, error) {
	switch {
	case h.rng.Float64() < h.cfg.RestartRate:
		return ActionRestartServer, h.restartServer(ctx)
	case h.rng.Float64() < h.cfg.KillRate:
		return ActionKillWorker, h.killWorker(ctx)
	case h.rng.Float64() < h.cfg.CrashRate:
		fmt.Fprintln(h.out, "🦆 Sending a crash_me task")
		_, err := h.tasks.Submit(ctx, crashme.TaskKey, crashme.Input{ExitCode: h.cfg.CrashExitCode})
		return ActionCrashTask, err
	}
	return ActionNone, nil
}

func (h *Havoc) pick(ctx context.Context, pattern string) (*Container, error) {
	all, err := h.runtime.List(ctx)
	if err != nil {
		return nil, err
	}
	candidates := matching(all, pattern)
	if len(candidates) == 0 {
		return nil, nil
	}
	c := candidates[h.rng.Intn(len(candidates))]
	return &c, nil
}

func (h *Havoc) restartServer(ctx context.Context) error {
	c, err := h.pick(ctx, h.cfg.ServerPattern)
	if err != nil || c == nil {
		return err
	}
	fmt.Fprintf(h.out, "🦆 Restarting %s\n", c.Name)
	return h.runtime.Restart(ctx, c.ID, h.cfg.RestartTimeoutS)
}

func (h *Havoc) killWorker(ctx context.Context) error {
	c, err := h.pick(ctx, h.cfg.WorkerPattern)
	if err != nil || c == nil {
		return err
	}
	fmt.Fprintf(h.out, "🦆 Killing %s\n", c.Name)
	return h.runtime.Exec(ctx, c.ID, []string{"kill", "1"})
}

// RunWithHavoc runs the driver while havoc rolls in the background. The havoc
// loop is cancelled and awaited before returning. A nil havoc only drives.
func RunWithHavoc(ctx context.Context, d *Driver, h *Havoc, iterations int) (*Report, error) {
	if h == nil {
		return d.Run(ctx, iterations)
	}
	havocCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(havocCtx)
	}()

	report, err := d.Run(ctx, iterations)
	cancel()
	<-done
	return report, err
}
