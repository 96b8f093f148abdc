// Package users stores the signups demo's users in Redis.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const usersSetKey = "users"

func userKey(id uuid.UUID) string      { return "user:" + id.String() }
func workspaceKey(id uuid.UUID) string { return "user:" + id.String() + ":workspace" }

// Store keeps users as JSON at user:<id>, indexes them in the users set and
// keeps each workspace in user:<id>:workspace.
type Store struct {
	rdb redis.UniversalClient
}

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Create persists a new active, non-superuser user.
func (s *Store) Create(ctx context.Context, nu models.NewUser) (models.User, error) {
	user := models.User{
		ID:       uuid.New(),
		Email:    nu.Email,
		Name:     nu.Name,
		IsActive: true,
	}
	data, err := json.Marshal(user)
	if err != nil {
		return models.User{}, err
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, userKey(user.ID), data, 0)
		p.SAdd(ctx, usersSetKey, user.ID.String())
		return nil
	})
	if err != nil {
		return models.User{}, apperrors.NewStoreUnavailableError("users", err)
	}
	return user, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.User{}, apperrors.NewUserNotFoundError(id.String())
	}
	if err != nil {
		return models.User{}, apperrors.NewStoreUnavailableError("users", err)
	}
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return models.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return user, nil
}

// Count returns the number of indexed users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, usersSetKey).Result()
}

func (s *Store) AddToWorkspace(ctx context.Context, id uuid.UUID, things ...string) error {
	if len(things) == 0 {
		return nil
	}
	members := make([]interface{}, len(things))
	for i, t := range things {
		members[i] = t
	}
	if err := s.rdb.SAdd(ctx, workspaceKey(id), members...).Err(); err != nil {
		return apperrors.NewStoreUnavailableError("users", err)
	}
	return nil
}

// Workspace returns the user's things sorted.
func (s *Store) Workspace(ctx context.Context, id uuid.UUID) ([]string, error) {
	things, err := s.rdb.SMembers(ctx, workspaceKey(id)).Result()
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("users", err)
	}
	sort.Strings(things)
	return things, nil
}
