package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// MaxRowKeyBytes is the largest range key DynamoDB accepts.
const MaxRowKeyBytes = 1024

// Client is the subset of the DynamoDB API used by the store.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store provides DynamoDB operations on task rows.
type Store struct {
	client Client
	config Config

	now   func() time.Time
	newID func() string
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Config returns the effective store configuration.
func (s *Store) Config() Config {
	return s.config
}

// Create inserts a new pending task with a generated row key.
func (s *Store) Create(ctx context.Context, text string) (*Task, error) {
	task := &Task{
		PartitionKey: s.config.PartitionKey,
		RowKey:       s.newID(),
		Task:         text,
		Status:       StatusPending,
		Timestamp:    s.timestamp(),
		Version:      1,
	}

	item, err := attributevalue.MarshalMap(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.config.TableName),
		Item:                     item,
		ConditionExpression:      aws.String(RowAbsentCondition()),
		ExpressionAttributeNames: rowKeyNames(),
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("put task %s: %w", task.RowKey, err)
	}

	return task, nil
}

// Get retrieves a task by id, returning ErrNotFound if missing.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	if !validRowKey(id) {
		return nil, ErrNotFound
	}
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            taskKey(s.config.PartitionKey, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if isKeyRejected(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	return s.unmarshalTask(result.Item)
}

// List returns every task in the partition.
// All result pages are drained before returning.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: s.config.PartitionKey},
		},
		ConsistentRead: aws.Bool(true),
	})

	tasks := []Task{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query tasks: %w", err)
		}
		var batch []Task
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal tasks: %w", err)
		}
		tasks = append(tasks, batch...)
	}

	return tasks, nil
}

// UpdateStatus replaces the status of an existing task with optimistic locking.
// Only Status, Timestamp and Version change. It returns ErrNotFound if the
// row does not exist and ErrConcurrentModification if its version is no
// longer expectedVersion.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64) (*Task, error) {
	if !validRowKey(id) {
		return nil, ErrNotFound
	}
	exprNames := mergeExprNames(rowKeyNames(), map[string]string{
		"#status":    AttrStatus,
		"#timestamp": AttrTimestamp,
		"#version":   AttrVersion,
	})
	exprValues := mergeExprValues(versionValues(expectedVersion), map[string]types.AttributeValue{
		":status":    &types.AttributeValueMemberS{Value: status},
		":timestamp": &types.AttributeValueMemberS{Value: s.timestamp()},
		":one":       &types.AttributeValueMemberN{Value: "1"},
	})

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.config.TableName),
		Key:                                 taskKey(s.config.PartitionKey, id),
		UpdateExpression:                    aws.String("SET #status = :status, #timestamp = :timestamp, #version = #version + :one"),
		ConditionExpression:                 aws.String(VersionCondition()),
		ExpressionAttributeNames:            exprNames,
		ExpressionAttributeValues:           exprValues,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// The old image is only returned when the row still exists.
			if condErr.Item == nil {
				return nil, ErrNotFound
			}
			return nil, ErrConcurrentModification
		}
		if isKeyRejected(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	return s.unmarshalTask(result.Attributes)
}

// Delete removes a task, returning ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !validRowKey(id) {
		return ErrNotFound
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.config.TableName),
		Key:                      taskKey(s.config.PartitionKey, id),
		ConditionExpression:      aws.String(RowExistsCondition()),
		ExpressionAttributeNames: rowKeyNames(),
	})
	if err != nil {
		if isConditionFailure(err) || isKeyRejected(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// unmarshalTask converts a DynamoDB item to a Task.
func (s *Store) unmarshalTask(raw map[string]types.AttributeValue) (*Task, error) {
	var task Task
	if err := attributevalue.UnmarshalMap(raw, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// validRowKey reports whether id can be stored as a range key at all.
// Ids that cannot be stored cannot exist.
func validRowKey(id string) bool {
	return id != "" && len(id) <= MaxRowKeyBytes
}

// isKeyRejected reports whether DynamoDB refused the request's key, as it
// does for oversized or otherwise unstorable key values.
func isKeyRejected(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// ParseVersion parses a strong version token such as an ETag value.
// Surrounding quotes are accepted. Weak validators ("W/...") are rejected
// since If-Match requires strong comparison.
func ParseVersion(token string) (int64, error) {
	if strings.HasPrefix(token, "W/") {
		return 0, fmt.Errorf("%w: %q", ErrWeakVersion, token)
	}
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		token = token[1 : len(token)-1]
	}
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid version %q", token)
	}
	return v, nil
}

// FormatVersion renders a version as a quoted ETag value.
func FormatVersion(v int64) string {
	return `"` + strconv.FormatInt(v, 10) + `"`
}
