package handlereporequest

import (
	"context"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
)

// RepoHandler handles the deliveries of one repository.
type RepoHandler func(ctx context.Context, req models.WebhookRequest) (any, error)

// Indexer is implemented by database.ElasticsearchClient.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

const DefaultArchiveIndex = "webhook-events"

type RepoHandlers struct {
	byRepo   map[string]RepoHandler
	fallback RepoHandler
}

func NewRepoHandlers(log logger.Logger) *RepoHandlers {
	return &RepoHandlers{
		byRepo:   make(map[string]RepoHandler),
		fallback: DefaultHandler(log),
	}
}

func (r *RepoHandlers) Handle(repo string, h RepoHandler) {
	r.byRepo[repo] = h
}

// For returns the handler registered for repo or the default one.
func (r *RepoHandlers) For(repo string) RepoHandler {
	if h, ok := r.byRepo[repo]; ok {
		return h
	}
	return r.fallback
}

func DefaultHandler(log logger.Logger) RepoHandler {
	return func(_ context.Context, req models.WebhookRequest) (any, error) {
		log.Info("got "+req.Headers.Event+" event for "+req.Event.Repository.FullName, map[string]interface{}{
			"delivery": req.Headers.Delivery,
			"action":   req.Event.Action,
		})
		return req, nil
	}
}

// ArchiveHandler runs the default handler and indexes the event, keyed by
// delivery id.
func ArchiveHandler(idx Indexer, index string, log logger.Logger) RepoHandler {
	if index == "" {
		index = DefaultArchiveIndex
	}
	fallback := DefaultHandler(log)
	return func(ctx context.Context, req models.WebhookRequest) (any, error) {
		out, err := fallback(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := idx.IndexDocument(ctx, index, req.Headers.Delivery, req); err != nil {
			return nil, apperrors.NewArchiveFailedError(index, err)
		}
		return out, nil
	}
}
