// Package store provides a DynamoDB data access layer for task records.
//
// Every task lives in one logical partition of a single table. The table
// uses a composite primary key:
//
//   - PartitionKey (hash): the configured partition, "ToDo" by default
//   - RowKey (range): a server-generated UUID
//
// # Operations
//
// [Store] exposes typed operations over [Task]:
//
//   - Create inserts a new task, failing if the row key is taken
//   - List drains every page of the partition
//   - Get performs a consistent point lookup
//   - UpdateStatus replaces the Status field with optimistic locking
//   - Delete removes the row, failing if it does not exist
//
// # Access
//
// [Accessor] builds a Store lazily from a connection string read from the
// environment on first use:
//
//	acc := store.NewAccessor(store.AccessorConfig{
//	    Store:         store.DefaultConfig(),
//	    ConnectionEnv: "TASKTABLE_STORAGE_CONNECTION",
//	    EnsureTable:   true,
//	}, logger)
//	task, err := acc.Create(ctx, "buy milk")
//
// # Errors
//
// Failures are classified with [KindOf]:
//
//   - [ErrNotFound] - no row at the given key ([KindNotFound])
//   - [ErrAlreadyExists] - row key already taken ([KindConflict])
//   - [ErrConcurrentModification] - version changed since read ([KindConflict])
//   - anything else, including [ErrMissingCredential] ([KindInfrastructure])
package store
