package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

// recordItem is the single item shape of the table: PK is GAME#<id> or JOIN#<id>.
type recordItem struct {
	PK        string
	Type      string
	Data      string
	ExpiresAt int64 `dynamodbav:",omitempty"`
}

type dynamoGame struct {
	db        *dynamodb.DynamoDB
	tableName string
	ttl       time.Duration
}

// NewDynamoGameRepository - the table needs a string hash key named PK.
// ExpiresAt is meant to be configured as the table TTL attribute.
func NewDynamoGameRepository(db *dynamodb.DynamoDB, tableName string, ttl time.Duration) GameRepository {
	return &dynamoGame{
		db:        db,
		tableName: tableName,
		ttl:       ttl,
	}
}

func gamePK(id string) string {
	return fmt.Sprintf("GAME#%s", id)
}

func joinPK(id string) string {
	return fmt.Sprintf("JOIN#%s", id)
}

func keyOf(pk string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(pk)},
	}
}

func (that *dynamoGame) put(ctx context.Context, pk, itemType string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal %s: %w", itemType, err)
	}

	item := recordItem{PK: pk, Type: itemType, Data: string(data)}
	if that.ttl > 0 {
		item.ExpiresAt = time.Now().Add(that.ttl).Unix()
	}

	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("could not marshal %s item: %w", itemType, err)
	}

	_, err = that.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(that.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", itemType, err)
	}

	return nil
}

func (that *dynamoGame) CreateOrUpdate(ctx context.Context, game *entity.GameState) error {
	return that.put(ctx, gamePK(game.GameID), "GameItem", game)
}

func (that *dynamoGame) GetByID(ctx context.Context, id string) (*entity.GameState, error) {
	result, err := that.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(that.tableName),
		Key:            keyOf(gamePK(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if len(result.Item) == 0 {
		return nil, apperror.ErrGameNotFound
	}

	var item recordItem
	if err = dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to read game record: %w", err)
	}

	if expired(item.ExpiresAt) {
		return nil, apperror.ErrGameNotFound
	}

	var game entity.GameState
	if err = json.Unmarshal([]byte(item.Data), &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &game, nil
}

func (that *dynamoGame) delete(ctx context.Context, pk string) (map[string]*dynamodb.AttributeValue, error) {
	result, err := that.db.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(that.tableName),
		Key:          keyOf(pk),
		ReturnValues: aws.String(dynamodb.ReturnValueAllOld),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", pk, err)
	}

	return result.Attributes, nil
}

func (that *dynamoGame) DeleteByID(ctx context.Context, id string) error {
	old, err := that.delete(ctx, gamePK(id))
	if err != nil {
		return err
	}

	if _, err = that.delete(ctx, joinPK(id)); err != nil {
		return err
	}

	if len(old) == 0 {
		return apperror.ErrGameNotFound
	}

	return nil
}

func (that *dynamoGame) PushJoinRequest(ctx context.Context, gameID string, req *entity.JoinRequest) error {
	return that.put(ctx, joinPK(gameID), "JoinItem", req)
}

func (that *dynamoGame) PopJoinRequest(ctx context.Context, gameID string) (*entity.JoinRequest, error) {
	old, err := that.delete(ctx, joinPK(gameID))
	if err != nil {
		return nil, err
	}

	if len(old) == 0 {
		return nil, nil //nolint: nilnil // no pending request is not an error
	}

	var item recordItem
	if err = dynamodbattribute.UnmarshalMap(old, &item); err != nil {
		return nil, fmt.Errorf("failed to read join record: %w", err)
	}

	if expired(item.ExpiresAt) {
		return nil, nil //nolint: nilnil // expired requests are dropped
	}

	var req entity.JoinRequest
	if err = json.Unmarshal([]byte(item.Data), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal join request: %w", err)
	}

	return &req, nil
}

// expired - DynamoDB removes expired items lazily, so reads filter them too.
func expired(expiresAt int64) bool {
	return expiresAt != 0 && expiresAt < time.Now().Unix()
}

