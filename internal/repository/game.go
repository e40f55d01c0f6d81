package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

// GameRepository is the shared keyed store behind the polling transport.
type GameRepository interface {
	CreateOrUpdate(ctx context.Context, game *entity.GameState) error
	GetByID(ctx context.Context, id string) (*entity.GameState, error)
	DeleteByID(ctx context.Context, id string) error

	PushJoinRequest(ctx context.Context, gameID string, req *entity.JoinRequest) error
	// PopJoinRequest - returns nil without error when no request is pending.
	PopJoinRequest(ctx context.Context, gameID string) (*entity.JoinRequest, error)
}

type dbGame struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGameRepository - ttl of zero keeps records forever.
func NewGameRepository(client *redis.Client, ttl time.Duration) GameRepository {
	return &dbGame{
		client: client,
		ttl:    ttl,
	}
}

func gameKey(id string) string {
	return "game:" + id
}

func joinKey(id string) string {
	return "join:" + id
}

func (that *dbGame) CreateOrUpdate(ctx context.Context, game *entity.GameState) error {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	if err = that.client.Set(ctx, gameKey(game.GameID), gameJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.GameState, error) {
	response, err := that.client.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrGameNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	var existingGame entity.GameState
	if err = json.Unmarshal(response, &existingGame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &existingGame, nil
}

func (that *dbGame) DeleteByID(ctx context.Context, id string) error {
	deleted, err := that.client.Del(ctx, gameKey(id), joinKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete game by id: %w", err)
	}

	if deleted == 0 {
		return apperror.ErrGameNotFound
	}

	return nil
}

func (that *dbGame) PushJoinRequest(ctx context.Context, gameID string, req *entity.JoinRequest) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal join request: %w", err)
	}

	if err = that.client.Set(ctx, joinKey(gameID), reqJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set join request: %w", err)
	}

	return nil
}

func (that *dbGame) PopJoinRequest(ctx context.Context, gameID string) (*entity.JoinRequest, error) {
	response, err := that.client.GetDel(ctx, joinKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint: nilnil // no pending request is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("failed to pop join request: %w", err)
	}

	var req entity.JoinRequest
	if err = json.Unmarshal(response, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal join request: %w", err)
	}

	return &req, nil
}
