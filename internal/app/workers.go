package app

import (
	"context"
	"fmt"

	"task-recipes/internal/common/ai"
	awsclient "task-recipes/internal/common/aws"
	"task-recipes/internal/common/config"
	"task-recipes/internal/common/database"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/users"
	"task-recipes/internal/workers"

	"go.uber.org/zap"
)

// WorkerRegistry builds the served task registry with every dependency the
// configuration makes available. Missing optional services leave their
// tasks unserved instead of failing startup.
func (a *App) WorkerRegistry(ctx context.Context) (*orchestrator.Registry, error) {
	cfg := a.Config
	deps := workers.Deps{Logger: a.Log, ArchiveIndex: cfg.Database.Elasticsearch.Index}

	mailer, err := mail.New(ctx, cfg.Integrations)
	if err != nil {
		return nil, err
	}
	deps.Mailer = mailer
	ob := cfg.Integrations.Onboarding
	deps.Enroller = mail.NewOnboardingClient(ob.BaseURL, ob.AcceptedStatus, config.GetDuration(ob.Timeout))

	if rdb, err := a.Redis(ctx); err != nil {
		a.Zap.Warn("Redis unavailable, user and webhook tasks are not served", zap.Error(err))
	} else {
		deps.Redis = rdb.Client
		deps.Users = users.NewStore(rdb.Client)
	}

	if cfg.APIs.GenAI.APIKey != "" {
		gen, err := ai.NewGeminiGenerator(ctx, cfg.APIs)
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		deps.Helper = ai.NewAssistant(gen, config.GetDuration(cfg.APIs.GenAI.Timeout), a.Log)
	} else {
		a.Zap.Warn("No GenAI API key configured")
	}

	if cfg.Database.Elasticsearch.GetURL() != "" && len(cfg.Webhook.ArchiveRepos) > 0 {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			a.Zap.Warn("Elasticsearch unreachable, archiving will retry per delivery", zap.Error(err))
		}
		deps.Indexer = es
	}

	if sns := cfg.Integrations.AWS.SNS; sns.Enabled {
		client, err := awsclient.NewSNSClient(ctx, cfg.Integrations.AWS.Region, sns.TopicARN)
		if err != nil {
			return nil, fmt.Errorf("create sns client: %w", err)
		}
		deps.Hooks = append(deps.Hooks, client.TaskRunHook())
	}

	reg, err := workers.Build(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := a.ApplyCatalog(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// SubmitRegistry is the registry used by processes that only submit runs.
func (a *App) SubmitRegistry() (*orchestrator.Registry, error) {
	reg, err := workers.NewSubmitRegistry()
	if err != nil {
		return nil, err
	}
	if err := a.ApplyCatalog(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
