// Package dynamodb provides a SessionStore on a single DynamoDB table. Items
// carry an ExpiresAt attribute so the table's TTL setting removes abandoned
// sessions without the reaper.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"topicref/domain/core/entities"
	apperrors "topicref/pkg/errors"
)

const (
	sessionPrefix     = "SESSION#"
	sessionSortKey    = "METADATA"
	sessionEntityType = "SESSION"
)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type sessionItem struct {
	PK         string     `dynamodbav:"PK"`
	SK         string     `dynamodbav:"SK"`
	EntityType string     `dynamodbav:"EntityType"`
	SessionKey string     `dynamodbav:"SessionKey"`
	Verifier   string     `dynamodbav:"Verifier,omitempty"`
	Nonce      string     `dynamodbav:"Nonce,omitempty"`
	CreatedAt  int64      `dynamodbav:"CreatedAt"` // epoch millis
	ExpiresAt  int64      `dynamodbav:"ExpiresAt"` // epoch seconds, TTL attribute
	Token      *tokenItem `dynamodbav:"Token,omitempty"`
}

type tokenItem struct {
	AccessToken       string `dynamodbav:"AccessToken,omitempty"`
	TokenType         string `dynamodbav:"TokenType,omitempty"`
	RefreshToken      string `dynamodbav:"RefreshToken,omitempty"`
	IDToken           string `dynamodbav:"IDToken,omitempty"`
	IssuedAt          int64  `dynamodbav:"IssuedAt"`
	ExpiresIn         int64  `dynamodbav:"ExpiresIn,omitempty"` // seconds
	Name              string `dynamodbav:"Name,omitempty"`
	PreferredUsername string `dynamodbav:"PreferredUsername,omitempty"`
	Email             string `dynamodbav:"Email,omitempty"`
	Nonce             string `dynamodbav:"Nonce,omitempty"`
	ClaimsExpiresAt   int64  `dynamodbav:"ClaimsExpiresAt,omitempty"`
	HasClaims         bool   `dynamodbav:"HasClaims,omitempty"`
}

type SessionStore struct {
	client    API
	tableName string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSessionStore returns a store that stamps each item with a TTL of
// CreatedAt+ttl.
func NewSessionStore(client API, tableName string, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{client: client, tableName: tableName, ttl: ttl, logger: logger}
}

func sessionKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPrefix + key},
		"SK": &types.AttributeValueMemberS{Value: sessionSortKey},
	}
}

func (s *SessionStore) CreateSession(ctx context.Context, key string, rec entities.SessionRecord) error {
	if key == "" {
		return apperrors.NewValidationError("session key is required")
	}
	item := sessionItem{
		PK:         sessionPrefix + key,
		SK:         sessionSortKey,
		EntityType: sessionEntityType,
		SessionKey: key,
		Verifier:   rec.Verifier,
		Nonce:      rec.Nonce,
		CreatedAt:  rec.CreatedAt.UnixMilli(),
		ExpiresAt:  rec.CreatedAt.Add(s.ttl).Unix(),
	}
	if rec.Token != nil {
		item.Token = toTokenItem(*rec.Token)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.NewStoreError("create_session", err)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return apperrors.NewStoreError("create_session", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return apperrors.NewConflictError("session already exists")
		}
		return s.storeError("create_session", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, key string) (*entities.SessionRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            sessionKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.storeError("get_session", err)
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NewNotFoundError("session")
	}
	return decodeItem(out.Item)
}

func (s *SessionStore) UpdateSession(ctx context.Context, key string, token entities.Token) (*entities.SessionRecord, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("Token"), expression.Value(toTokenItem(token)))).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, apperrors.NewStoreError("update_session", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       sessionKey(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, apperrors.NewNotFoundError("session")
		}
		return nil, s.storeError("update_session", err)
	}
	return decodeItem(out.Attributes)
}

func (s *SessionStore) DeleteSession(ctx context.Context, key string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return apperrors.NewStoreError("delete_session", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      sessionKey(key),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return apperrors.NewNotFoundError("session")
		}
		return s.storeError("delete_session", err)
	}
	return nil
}

// PurgeSessions scans for sessions created before the cutoff and deletes
// them one by one. Items already removed by TTL in the meantime are skipped.
func (s *SessionStore) PurgeSessions(ctx context.Context, createdBefore time.Time) (int, error) {
	filter := expression.Name("EntityType").Equal(expression.Value(sessionEntityType)).
		And(expression.Name("CreatedAt").LessThan(expression.Value(createdBefore.UnixMilli())))
	expr, err := expression.NewBuilder().
		WithFilter(filter).
		WithProjection(expression.NamesList(expression.Name("PK"), expression.Name("SK"))).
		Build()
	if err != nil {
		return 0, apperrors.NewStoreError("purge_sessions", err)
	}

	removed := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          expr.Filter(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return removed, s.storeError("purge_sessions", err)
		}
		for _, item := range out.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key:       map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]},
			})
			if err != nil {
				return removed, s.storeError("purge_sessions", err)
			}
			removed++
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return removed, nil
}

func (s *SessionStore) storeError(op string, err error) error {
	s.logger.Error("DynamoDB session operation failed",
		zap.String("operation", op),
		zap.String("table", s.tableName),
		zap.Error(err),
	)
	return apperrors.NewStoreError(op, err)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func toTokenItem(t entities.Token) *tokenItem {
	item := &tokenItem{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
		IssuedAt:     t.IssuedAt.UnixMilli(),
		ExpiresIn:    int64(t.ExpiresIn / time.Second),
	}
	if c := t.Claims; c != nil {
		item.HasClaims = true
		item.Name = c.Name
		item.PreferredUsername = c.PreferredUsername
		item.Email = c.Email
		item.Nonce = c.Nonce
		if !c.ExpiresAt.IsZero() {
			item.ClaimsExpiresAt = c.ExpiresAt.UnixMilli()
		}
	}
	return item
}

func decodeItem(av map[string]types.AttributeValue) (*entities.SessionRecord, error) {
	var item sessionItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, apperrors.NewStoreError("decode_session", err)
	}
	if item.SessionKey == "" {
		return nil, apperrors.NewStoreError("decode_session", fmt.Errorf("item %s has no session key", item.PK))
	}
	rec := &entities.SessionRecord{
		Key:       item.SessionKey,
		Verifier:  item.Verifier,
		Nonce:     item.Nonce,
		CreatedAt: time.UnixMilli(item.CreatedAt).UTC(),
	}
	if t := item.Token; t != nil {
		token := &entities.Token{
			AccessToken:  t.AccessToken,
			TokenType:    t.TokenType,
			RefreshToken: t.RefreshToken,
			IDToken:      t.IDToken,
			IssuedAt:     time.UnixMilli(t.IssuedAt).UTC(),
			ExpiresIn:    time.Duration(t.ExpiresIn) * time.Second,
		}
		if t.HasClaims {
			token.Claims = &entities.Claims{
				Name:              t.Name,
				PreferredUsername: t.PreferredUsername,
				Email:             t.Email,
				Nonce:             t.Nonce,
			}
			if t.ClaimsExpiresAt != 0 {
				token.Claims.ExpiresAt = time.UnixMilli(t.ClaimsExpiresAt).UTC()
			}
		}
		rec.Token = token
	}
	return rec, nil
}
