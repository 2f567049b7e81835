// Package stream provides a DynamoDB Streams handler for the task table.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tasktable/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// ErrUnknownEvent is returned by DecodeChange for event names it does not handle.
var ErrUnknownEvent = errors.New("tasktable: unknown stream event")

// ChangeType classifies a change to a task row.
type ChangeType string

const (
	ChangeCreated       ChangeType = "created"
	ChangeStatusChanged ChangeType = "status_changed"
	ChangeModified      ChangeType = "modified"
	ChangeDeleted       ChangeType = "deleted"
)

// Change is a decoded stream record.
// Old and New are nil when the stream view does not carry that image.
type Change struct {
	Type      ChangeType
	Partition string
	ID        string
	Old       *store.Task
	New       *store.Task
}

// Handler processes DynamoDB stream events for the task table.
type Handler struct {
	partition string
	logger    *slog.Logger
	notify    func(ctx context.Context, c Change) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotify sets a callback run for every task change in the partition.
// A callback error fails the batch so Lambda retries it.
func WithNotify(fn func(ctx context.Context, c Change) error) Option {
	return func(h *Handler) {
		h.notify = fn
	}
}

// NewHandler creates a new stream handler for the given partition.
// An empty partition means store.DefaultPartitionKey.
func NewHandler(partition string, logger *slog.Logger, opts ...Option) *Handler {
	if partition == "" {
		partition = store.DefaultPartitionKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		partition: partition,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleTaskChanges logs the lifecycle transition of every task row in the event.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleTaskChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		if err := h.processRecord(ctx, &event.Records[i]); err != nil {
			h.logger.Error("failed to process record",
				"eventID", event.Records[i].EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	change, err := DecodeChange(record)
	if errors.Is(err, ErrUnknownEvent) {
		h.logger.Warn("skipping stream record", "eventID", record.EventID, "eventName", record.EventName)
		return nil
	}
	if err != nil {
		return err
	}
	if change.Partition != h.partition {
		return nil
	}

	attrs := []any{"id", change.ID, "change", string(change.Type)}
	switch {
	case change.Type == ChangeStatusChanged && change.Old != nil && change.New != nil:
		attrs = append(attrs, "from", change.Old.Status, "to", change.New.Status, "version", change.New.Version)
	case change.New != nil:
		attrs = append(attrs, "status", change.New.Status, "version", change.New.Version)
	case change.Old != nil:
		attrs = append(attrs, "status", change.Old.Status)
	}
	h.logger.Info("task changed", attrs...)

	if h.notify != nil {
		if err := h.notify(ctx, change); err != nil {
			return fmt.Errorf("notify %s %s: %w", change.Type, change.ID, err)
		}
	}
	return nil
}

// DecodeChange converts a stream record into a Change.
func DecodeChange(record *events.DynamoDBEventRecord) (Change, error) {
	keys := ConvertImage(record.Change.Keys)
	var key struct {
		PartitionKey string `dynamodbav:"PartitionKey"`
		RowKey       string `dynamodbav:"RowKey"`
	}
	if err := attributevalue.UnmarshalMap(keys, &key); err != nil {
		return Change{}, fmt.Errorf("decode keys: %w", err)
	}

	oldTask, err := decodeTask(record.Change.OldImage)
	if err != nil {
		return Change{}, fmt.Errorf("decode old image: %w", err)
	}
	newTask, err := decodeTask(record.Change.NewImage)
	if err != nil {
		return Change{}, fmt.Errorf("decode new image: %w", err)
	}

	change := Change{
		Partition: key.PartitionKey,
		ID:        key.RowKey,
		Old:       oldTask,
		New:       newTask,
	}
	switch record.EventName {
	case EventInsert:
		change.Type = ChangeCreated
	case EventModify:
		change.Type = ChangeModified
		if oldTask != nil && newTask != nil && oldTask.Status != newTask.Status {
			change.Type = ChangeStatusChanged
		}
	case EventRemove:
		change.Type = ChangeDeleted
	default:
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownEvent, record.EventName)
	}
	return change, nil
}

func decodeTask(image map[string]events.DynamoDBAttributeValue) (*store.Task, error) {
	if len(image) == 0 {
		return nil, nil
	}
	var task store.Task
	if err := attributevalue.UnmarshalMap(ConvertImage(image), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ConvertImage converts a DynamoDB stream image or key to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, item := range list {
			if av := convertValue(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
