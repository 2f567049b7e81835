package store

const (
	// DefaultTableName is the table used when Config.TableName is empty.
	DefaultTableName = "ToDoTable"

	// DefaultPartitionKey is the partition every task is written to.
	DefaultPartitionKey = "ToDo"
)

// Config holds configuration for the Store.
type Config struct {
	// TableName is the DynamoDB table holding tasks.
	// Default: "ToDoTable"
	TableName string

	// PartitionKey is the hash key value shared by every task.
	// Default: "ToDo"
	PartitionKey string
}

// DefaultConfig returns the default table and partition.
func DefaultConfig() Config {
	return Config{
		TableName:    DefaultTableName,
		PartitionKey: DefaultPartitionKey,
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.PartitionKey == "" {
		c.PartitionKey = DefaultPartitionKey
	}
}
