// Package workers assembles every task of the recipes into registries.
package workers

import (
	"fmt"

	"task-recipes/internal/common/config"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/shared"

	crashme "task-recipes/internal/workers/chaos/crash-me"
	"task-recipes/internal/workers/chaos/ping"
	processjob "task-recipes/internal/workers/jobs/process-job"
	gethelp "task-recipes/internal/workers/monitoring/get-help"
	"task-recipes/internal/workers/quickstart"
	enroll "task-recipes/internal/workers/signups/enroll-in-onboarding-flow"
	populate "task-recipes/internal/workers/signups/populate-workspace"
	confirm "task-recipes/internal/workers/signups/send-confirmation-email"
	repo "task-recipes/internal/workers/webhook/handle-repo-request"
	processevent "task-recipes/internal/workers/webhook/process-event"

	"github.com/redis/go-redis/v9"
)

// Deps are the clients task handlers need. A nil dependency leaves the
// tasks that need it unserved.
type Deps struct {
	Mailer       mail.Mailer
	Enroller     enroll.Enroller
	Users        populate.UserStore
	Helper       gethelp.Helper
	Redis        redis.UniversalClient
	Indexer      repo.Indexer
	ArchiveIndex string

	// Hooks run after every final state of every task.
	Hooks  []orchestrator.StateHook
	Logger logger.Logger
}

// Definitions returns every task without handlers, for submitters.
func Definitions() []*orchestrator.Task {
	defs := []*orchestrator.Task{
		confirm.Definition(),
		enroll.Definition(),
		populate.Definition(),
		gethelp.Definition(),
		ping.Definition(),
		crashme.Definition(),
		processjob.Definition(),
		repo.Definition(),
		processevent.Definition(),
	}
	return append(defs, quickstart.Definitions()...)
}

// NewSubmitRegistry registers every definition.
func NewSubmitRegistry() (*orchestrator.Registry, error) {
	reg := orchestrator.NewRegistry()
	if err := reg.Register(Definitions()...); err != nil {
		return nil, err
	}
	return reg, nil
}

// Build binds every enabled task whose dependencies are available. Tasks
// that are disabled or missing a dependency stay registered without a
// handler so they can still be submitted.
func Build(cfg *config.Config, deps Deps) (*orchestrator.Registry, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	served := map[string]*orchestrator.Task{}
	bind := func(t *orchestrator.Task) { served[t.Key] = t }

	if deps.Mailer != nil {
		bind(confirm.NewHandler(deps.Mailer, shared.ChanceFor(cfg, confirm.TaskKey, confirm.DefaultFailureRate), log).Task())
	}
	if deps.Enroller != nil {
		bind(enroll.NewHandler(deps.Enroller, log).Task())
	}
	if deps.Users != nil {
		bind(populate.NewHandler(deps.Users, log).Task())
	}
	if deps.Helper != nil {
		bind(gethelp.NewHandler(deps.Helper, shared.ChanceFor(cfg, gethelp.TaskKey, gethelp.DefaultFailureRate), log).Task())
	}
	bind(ping.NewHandler(shared.ChanceFor(cfg, ping.TaskKey, ping.DefaultFailureRate)).Task())
	bind(crashme.NewHandler(log).Task())
	bind(processjob.NewHandler(log).Task())
	bind(processevent.NewHandler(log).Task())
	if deps.Redis != nil {
		bind(repo.NewHandler(RepoHandlers(cfg, deps, log), deps.Redis, log).Task())
	}
	for _, t := range quickstart.NewHandlers(log).Tasks() {
		bind(t)
	}

	reg := orchestrator.NewRegistry()
	for _, def := range Definitions() {
		t, ok := served[def.Key]
		switch {
		case !ok:
			log.Warn("Task has no dependencies configured, not serving it", map[string]interface{}{"taskKey": def.Key})
			t = def
		case cfg != nil && !config.IsWorkerEnabled(cfg, def.Key):
			log.Info("Task disabled by configuration", map[string]interface{}{"taskKey": def.Key})
			t = def
		}
		applyWorkerConfig(cfg, t)
		t.OnCompletion = append(t.OnCompletion, deps.Hooks...)
		t.OnFailure = append(t.OnFailure, deps.Hooks...)
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Key, err)
		}
	}
	return reg, nil
}

// RepoHandlers archives the configured repositories and handles the rest
// with the default handler.
func RepoHandlers(cfg *config.Config, deps Deps, log logger.Logger) *repo.RepoHandlers {
	handlers := repo.NewRepoHandlers(log)
	if cfg == nil || deps.Indexer == nil {
		return handlers
	}
	archive := repo.ArchiveHandler(deps.Indexer, deps.ArchiveIndex, log)
	for _, name := range cfg.Webhook.ArchiveRepos {
		handlers.Handle(name, archive)
	}
	return handlers
}

func applyWorkerConfig(cfg *config.Config, t *orchestrator.Task) {
	if cfg == nil {
		return
	}
	wc, ok := cfg.Workers[config.WorkerKey(t.Key)]
	if !ok {
		return
	}
	if wc.MaxRetries > 0 {
		t.Retries = wc.MaxRetries
	}
	if wc.Timeout > 0 {
		t.Timeout = config.GetDuration(wc.Timeout)
	}
	if wc.MaxJobsActive > 0 {
		t.Concurrency = wc.MaxJobsActive
	}
}
