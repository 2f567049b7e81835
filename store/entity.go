package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of a task item.
const (
	AttrPartitionKey = "PartitionKey"
	AttrRowKey       = "RowKey"
	AttrTask         = "Task"
	AttrStatus       = "Status"
	AttrTimestamp    = "Timestamp"
	AttrVersion      = "Version"
)

// StatusPending is the status of every newly created task.
const StatusPending = "Pending"

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Task is a single task row.
type Task struct {
	// PartitionKey is the configured partition.
	PartitionKey string `dynamodbav:"PartitionKey" json:"PartitionKey"`

	// RowKey is the server-generated task id.
	RowKey string `dynamodbav:"RowKey" json:"RowKey"`

	// Task is the client-supplied description. Never changed after creation.
	Task string `dynamodbav:"Task" json:"Task"`

	// Status is "Pending" at creation and replaced by status updates.
	Status string `dynamodbav:"Status" json:"Status"`

	// Timestamp is the RFC 3339 time of the last write.
	Timestamp string `dynamodbav:"Timestamp,omitempty" json:"Timestamp,omitempty"`

	// Version is the optimistic lock version.
	Version int64 `dynamodbav:"Version" json:"Version"`
}

// Key returns the primary key of the task.
func (t Task) Key() PK {
	return taskKey(t.PartitionKey, t.RowKey)
}

func taskKey(partition, id string) PK {
	return PK{
		AttrPartitionKey: &types.AttributeValueMemberS{Value: partition},
		AttrRowKey:       &types.AttributeValueMemberS{Value: id},
	}
}
