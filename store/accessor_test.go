package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jacentio/tasktable/internal/ddbtest"
	"github.com/jacentio/tasktable/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func newTestAccessor(env map[string]string, client *ddbtest.Client, ensure bool) (*store.Accessor, *int) {
	builds := 0
	acc := store.NewAccessor(store.AccessorConfig{
		Store:       store.DefaultConfig(),
		EnsureTable: ensure,
		LookupEnv:   envMap(env),
		NewClient: func(ctx context.Context, cs store.ConnectionString) (store.Client, error) {
			builds++
			return client, nil
		},
	}, discardLogger())
	return acc, &builds
}

func TestAccessor_MissingCredential(t *testing.T) {
	acc, builds := newTestAccessor(nil, ddbtest.New(), false)

	_, err := acc.Store(context.Background())
	if !errors.Is(err, store.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if store.KindOf(err) != store.KindInfrastructure {
		t.Errorf("expected infrastructure kind, got %v", store.KindOf(err))
	}
	if *builds != 0 {
		t.Error("expected no client build without a credential")
	}

	// Every operation surfaces the failure
	if _, err := acc.Create(context.Background(), "x"); !errors.Is(err, store.ErrMissingCredential) {
		t.Errorf("Create: expected ErrMissingCredential, got %v", err)
	}
	if _, err := acc.List(context.Background()); !errors.Is(err, store.ErrMissingCredential) {
		t.Errorf("List: expected ErrMissingCredential, got %v", err)
	}
	if _, err := acc.Get(context.Background(), "id"); !errors.Is(err, store.ErrMissingCredential) {
		t.Errorf("Get: expected ErrMissingCredential, got %v", err)
	}
	if _, err := acc.UpdateStatus(context.Background(), "id", "Done", 1); !errors.Is(err, store.ErrMissingCredential) {
		t.Errorf("UpdateStatus: expected ErrMissingCredential, got %v", err)
	}
	if err := acc.Delete(context.Background(), "id"); !errors.Is(err, store.ErrMissingCredential) {
		t.Errorf("Delete: expected ErrMissingCredential, got %v", err)
	}
}

func TestAccessor_InvalidCredential(t *testing.T) {
	acc, _ := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "NotAKey=1",
	}, ddbtest.New(), false)

	_, err := acc.Store(context.Background())
	if !errors.Is(err, store.ErrInvalidConnection) {
		t.Errorf("expected ErrInvalidConnection, got %v", err)
	}
}

func TestAccessor_CustomEnvName(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc := store.NewAccessor(store.AccessorConfig{
		ConnectionEnv: "MY_CONN",
		LookupEnv:     envMap(map[string]string{"MY_CONN": "Region=us-east-1"}),
		NewClient: func(ctx context.Context, cs store.ConnectionString) (store.Client, error) {
			if cs.Region != "us-east-1" {
				t.Errorf("expected parsed region, got %q", cs.Region)
			}
			return client, nil
		},
	}, nil)

	if _, err := acc.Store(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccessor_BuildsOnce(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc, builds := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, false)

	first, err := acc.Store(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := acc.Store(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same store on repeated calls")
	}
	if *builds != 1 {
		t.Errorf("expected 1 build, got %d", *builds)
	}
}

func TestAccessor_ConcurrentFirstUse(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc, builds := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := acc.Create(context.Background(), "x"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if *builds != 1 {
		t.Errorf("expected 1 build, got %d", *builds)
	}
	if client.Len(store.DefaultTableName) != 20 {
		t.Errorf("expected 20 tasks, got %d", client.Len(store.DefaultTableName))
	}
}

func TestAccessor_FailedBuildIsRetried(t *testing.T) {
	env := map[string]string{}
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc, builds := newTestAccessor(env, client, false)

	if _, err := acc.Store(context.Background()); err == nil {
		t.Fatal("expected error without credential")
	}

	env[store.DefaultConnectionEnv] = "Region=us-east-1"
	if _, err := acc.Store(context.Background()); err != nil {
		t.Fatalf("unexpected error after credential set: %v", err)
	}
	if *builds != 1 {
		t.Errorf("expected 1 build, got %d", *builds)
	}
}

func TestAccessor_EndedContextDoesNotBuild(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc, builds := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := acc.Store(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if *builds != 0 {
		t.Errorf("expected no build for an ended context, got %d", *builds)
	}

	if _, err := acc.Store(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *builds != 1 {
		t.Errorf("expected 1 build, got %d", *builds)
	}
}

func TestAccessor_WaiterBuildsAfterCancelledBuild(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	started := make(chan struct{})
	var mu sync.Mutex
	builds := 0
	acc := store.NewAccessor(store.AccessorConfig{
		LookupEnv: envMap(map[string]string{store.DefaultConnectionEnv: "Region=us-east-1"}),
		NewClient: func(ctx context.Context, cs store.ConnectionString) (store.Client, error) {
			mu.Lock()
			builds++
			n := builds
			mu.Unlock()
			if n == 1 {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return client, nil
		},
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := acc.Store(ctx)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := acc.Store(context.Background())
		secondErr <- err
	}()
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller: expected context.Canceled, got %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Errorf("waiting caller: unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if builds != 2 {
		t.Errorf("expected 2 builds, got %d", builds)
	}
}

func TestAccessor_ClientBuildFailure(t *testing.T) {
	acc := store.NewAccessor(store.AccessorConfig{
		LookupEnv: envMap(map[string]string{store.DefaultConnectionEnv: "Region=us-east-1"}),
		NewClient: func(ctx context.Context, cs store.ConnectionString) (store.Client, error) {
			return nil, errors.New("no route to host")
		},
	}, discardLogger())

	_, err := acc.Store(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if store.KindOf(err) != store.KindInfrastructure {
		t.Errorf("expected infrastructure kind, got %v", store.KindOf(err))
	}
}

func TestAccessor_EnsureTable(t *testing.T) {
	client := ddbtest.New()
	acc, _ := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, true)

	task, err := acc.Create(context.Background(), "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Calls(ddbtest.OpCreateTable) != 1 {
		t.Errorf("expected table to be created once, got %d", client.Calls(ddbtest.OpCreateTable))
	}

	got, err := acc.Get(context.Background(), task.RowKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Task != "first" {
		t.Errorf("expected 'first', got %q", got.Task)
	}
	if client.Calls(ddbtest.OpCreateTable) != 1 {
		t.Error("expected ensure-table to run only on first build")
	}
}

func TestAccessor_EnsureTableFailure(t *testing.T) {
	client := ddbtest.New()
	client.Fail(ddbtest.OpCreateTable, errors.New("limit exceeded"))
	acc, _ := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, true)

	if _, err := acc.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	client.Fail(ddbtest.OpCreateTable, nil)
	if _, err := acc.List(context.Background()); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestAccessor_Close(t *testing.T) {
	client := ddbtest.New().WithTable(store.DefaultTableName, store.AttrPartitionKey, store.AttrRowKey)
	acc, builds := newTestAccessor(map[string]string{
		store.DefaultConnectionEnv: "Region=us-east-1",
	}, client, false)

	if _, err := acc.Store(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc.Close()
	if _, err := acc.Store(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *builds != 2 {
		t.Errorf("expected rebuild after Close, got %d builds", *builds)
	}
}
