package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// все попытки лежат в одной партиции, отсортированные по времени
	attemptsPartition = "ATTEMPTS"

	attrPK            = "PK"
	attrSK            = "SK"
	attrID            = "attempt_id"
	attrApproved      = "approved"
	attrScore         = "overall_score"
	attrBlockedReason = "blocked_reason"
	attrTimestamp     = "timestamp"
	attrDurationMS    = "duration_ms"
	attrResult        = "result"
	attrExpiresAt     = "expires_at"
)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	// Retention задает TTL записи; ноль - хранить бессрочно.
	Retention time.Duration
}

// itemAPI - подмножество dynamodb.Client
type itemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// AttemptRepository - журнал попыток деплоя в DynamoDB
type AttemptRepository struct {
	client      itemAPI
	tableName   string
	strongReads bool
	retention   time.Duration
}

type cursorPayload struct {
	Key map[string]cursorValue `json:"key"`
}

type cursorValue struct {
	S string `json:"s,omitempty"`
	N string `json:"n,omitempty"`
}

func NewAttemptRepository(ctx context.Context, cfg Config) (*AttemptRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return newAttemptRepository(client, cfg), nil
}

func newAttemptRepository(client itemAPI, cfg Config) *AttemptRepository {
	return &AttemptRepository{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		strongReads: cfg.StrongReads,
		retention:   cfg.Retention,
	}
}

func (r *AttemptRepository) Save(ctx context.Context, attempt entity.DeploymentAttempt) error {
	item, err := r.toItem(attempt)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put attempt failed: %w", err)
	}
	return nil
}

// ListRecent возвращает попытки от новых к старым.
func (r *AttemptRepository) ListRecent(ctx context.Context, query port.AttemptQuery) (port.AttemptPage, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	keyCondition := "#pk = :pk"
	input := &dynamodb.QueryInput{
		TableName:                 &r.tableName,
		Limit:                     int32Pointer(int32(limit)),
		ScanIndexForward:          boolPointer(false),
		ConsistentRead:            boolPointer(r.strongReads),
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeNames:  map[string]string{"#pk": attrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: attemptsPartition}},
	}

	if strings.TrimSpace(query.Cursor) != "" {
		exclusiveStartKey, err := decodeCursor(query.Cursor)
		if err != nil {
			return port.AttemptPage{}, err
		}
		input.ExclusiveStartKey = exclusiveStartKey
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.AttemptPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	items := make([]entity.DeploymentAttempt, 0, len(output.Items))
	for _, raw := range output.Items {
		attempt, err := fromItem(raw)
		if err != nil {
			return port.AttemptPage{}, err
		}
		items = append(items, attempt)
	}

	nextCursor := ""
	if len(output.LastEvaluatedKey) > 0 {
		nextCursor, err = encodeCursor(output.LastEvaluatedKey)
		if err != nil {
			return port.AttemptPage{}, err
		}
	}

	return port.AttemptPage{Items: items, NextCursor: nextCursor}, nil
}

func (r *AttemptRepository) toItem(attempt entity.DeploymentAttempt) (map[string]types.AttributeValue, error) {
	id := strings.TrimSpace(attempt.ID)
	if id == "" {
		return nil, fmt.Errorf("attempt id is required")
	}

	ts := attempt.Timestamp.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	tsMS := ts.UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:         &types.AttributeValueMemberS{Value: attemptsPartition},
		attrSK:         &types.AttributeValueMemberS{Value: buildSK(tsMS, id)},
		attrID:         &types.AttributeValueMemberS{Value: id},
		attrApproved:   &types.AttributeValueMemberBOOL{Value: attempt.Approved},
		attrTimestamp:  &types.AttributeValueMemberN{Value: strconv.FormatInt(tsMS, 10)},
		attrDurationMS: &types.AttributeValueMemberN{Value: strconv.FormatInt(attempt.Duration.Milliseconds(), 10)},
	}

	if reason := strings.TrimSpace(attempt.BlockedReason); reason != "" {
		item[attrBlockedReason] = &types.AttributeValueMemberS{Value: reason}
	}
	if attempt.Result != nil {
		item[attrScore] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(attempt.Result.OverallScore, 'f', 2, 64)}
		raw, err := json.Marshal(attempt.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attempt result: %w", err)
		}
		item[attrResult] = &types.AttributeValueMemberS{Value: string(raw)}
	}
	if r.retention > 0 {
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ts.Add(r.retention).Unix(), 10)}
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (entity.DeploymentAttempt, error) {
	id, err := attrString(item, attrID)
	if err != nil {
		return entity.DeploymentAttempt{}, err
	}
	tsMS, err := attrInt64(item, attrTimestamp)
	if err != nil {
		return entity.DeploymentAttempt{}, err
	}

	attempt := entity.DeploymentAttempt{
		ID:            id,
		Timestamp:     time.UnixMilli(tsMS).UTC(),
		Approved:      optionalBool(item, attrApproved),
		Duration:      time.Duration(optionalInt64(item, attrDurationMS)) * time.Millisecond,
		BlockedReason: optionalString(item, attrBlockedReason),
	}

	if raw := optionalString(item, attrResult); raw != "" {
		var result entity.DeploymentValidationResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return entity.DeploymentAttempt{}, fmt.Errorf("invalid attribute %s: %w", attrResult, err)
		}
		attempt.Result = &result
	}

	return attempt, nil
}

func buildSK(tsMS int64, id string) string {
	return fmt.Sprintf("TS#%013d#ID#%s", tsMS, id)
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	values := make(map[string]cursorValue, len(key))
	for attributeName, raw := range key {
		switch value := raw.(type) {
		case *types.AttributeValueMemberS:
			values[attributeName] = cursorValue{S: value.Value}
		case *types.AttributeValueMemberN:
			values[attributeName] = cursorValue{N: value.Value}
		default:
			return "", fmt.Errorf("unsupported cursor attribute type for %s", attributeName)
		}
	}

	serialized, err := json.Marshal(cursorPayload{Key: values})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(serialized), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}

	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Key) == 0 {
		return nil, fmt.Errorf("invalid cursor")
	}

	key := make(map[string]types.AttributeValue, len(payload.Key))
	for attributeName, value := range payload.Key {
		if value.S != "" {
			key[attributeName] = &types.AttributeValueMemberS{Value: value.S}
			continue
		}
		if value.N != "" {
			key[attributeName] = &types.AttributeValueMemberN{Value: value.N}
			continue
		}
		return nil, fmt.Errorf("invalid cursor")
	}

	return key, nil
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	value, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func optionalBool(item map[string]types.AttributeValue, name string) bool {
	value, ok := item[name].(*types.AttributeValueMemberBOOL)
	return ok && value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	value, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func boolPointer(v bool) *bool {
	return &v
}

func int32Pointer(v int32) *int32 {
	return &v
}
