package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultConnectionEnv is the environment variable holding the connection string.
const DefaultConnectionEnv = "TASKTABLE_STORAGE_CONNECTION"

// AccessorConfig configures an Accessor.
type AccessorConfig struct {
	// Store is the table and partition configuration.
	Store Config

	// ConnectionEnv names the environment variable holding the connection string.
	// Default: "TASKTABLE_STORAGE_CONNECTION"
	ConnectionEnv string

	// EnsureTable creates the table on first use if it is missing.
	EnsureTable bool

	// TableWait bounds the wait for a newly created table.
	// Default: DefaultTableWait
	TableWait time.Duration

	// LookupEnv reads the environment. Default: os.LookupEnv
	LookupEnv func(key string) (string, bool)

	// NewClient builds the DynamoDB client. Default: NewClient
	NewClient func(ctx context.Context, cs ConnectionString) (Client, error)
}

// Accessor lazily builds a Store from the connection string in the environment.
// The Store is built once on first successful use; failed builds are not
// cached, so a later call retries. It is safe for concurrent use.
type Accessor struct {
	config AccessorConfig
	logger *slog.Logger

	mu    sync.Mutex
	store *Store
}

// NewAccessor creates a new Accessor. Nothing is read or dialled until first use.
func NewAccessor(config AccessorConfig, logger *slog.Logger) *Accessor {
	if logger == nil {
		logger = slog.Default()
	}
	config.Store.validate()
	if config.ConnectionEnv == "" {
		config.ConnectionEnv = DefaultConnectionEnv
	}
	if config.LookupEnv == nil {
		config.LookupEnv = os.LookupEnv
	}
	if config.NewClient == nil {
		config.NewClient = func(ctx context.Context, cs ConnectionString) (Client, error) {
			return NewClient(ctx, cs)
		}
	}
	return &Accessor{
		config: config,
		logger: logger,
	}
}

// Store returns the Store, building it on first use.
//
// The build, including any EnsureTable wait, runs under the lock, so
// concurrent first callers wait for it rather than dialling in parallel.
// A build that fails or whose context ends is not cached: each waiter then
// builds in turn with its own context, and a waiter whose context has
// already ended returns without building.
func (a *Accessor) Store(ctx context.Context) (*Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return a.store, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connect to table store: %w", err)
	}

	raw, _ := a.config.LookupEnv(a.config.ConnectionEnv)
	cs, err := ParseConnectionString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.config.ConnectionEnv, err)
	}

	client, err := a.config.NewClient(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("connect to table store: %w", err)
	}

	if a.config.EnsureTable {
		created, err := EnsureTable(ctx, client, a.config.Store.TableName, a.config.TableWait)
		if err != nil {
			return nil, err
		}
		if created {
			a.logger.Info("created table", "table", a.config.Store.TableName)
		}
	}

	a.store = New(client, a.config.Store)
	a.logger.Info("table store ready",
		"table", a.config.Store.TableName,
		"partition", a.config.Store.PartitionKey,
		"connection", cs.String(),
	)
	return a.store, nil
}

// Close drops the built Store. The next call to Store rebuilds it.
func (a *Accessor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store = nil
}

// Create builds the Store if needed and creates a task.
func (a *Accessor) Create(ctx context.Context, text string) (*Task, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, text)
}

// List builds the Store if needed and lists all tasks.
func (a *Accessor) List(ctx context.Context) ([]Task, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx)
}

// Get builds the Store if needed and fetches a task.
func (a *Accessor) Get(ctx context.Context, id string) (*Task, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateStatus builds the Store if needed and updates a task's status.
func (a *Accessor) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64) (*Task, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, id, status, expectedVersion)
}

// Delete builds the Store if needed and deletes a task.
func (a *Accessor) Delete(ctx context.Context, id string) error {
	s, err := a.Store(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, id)
}
