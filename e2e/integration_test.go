//go:build e2e

// Package e2e contains end-to-end tests against a real DynamoDB endpoint.
// Run with:
//
//	TASKTABLE_E2E_CONNECTION="Region=us-east-1;Endpoint=http://localhost:8000;AccessKeyId=local;SecretAccessKey=local" \
//	  go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/tasktable/api"
	"github.com/jacentio/tasktable/store"
)

const (
	connectionEnv = "TASKTABLE_E2E_CONNECTION"

	// Table names are unique per test run to avoid conflicts
	tablePrefix = "tasktable-e2e"
)

var (
	tableName string
	ddbClient *dynamodb.Client
	server    *httptest.Server
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	raw, ok := os.LookupEnv(connectionEnv)
	if !ok {
		fmt.Printf("%s not set, skipping e2e tests\n", connectionEnv)
		os.Exit(0)
	}

	ctx := context.Background()
	cs, err := store.ParseConnectionString(raw)
	if err != nil {
		fmt.Printf("Invalid %s: %v\n", connectionEnv, err)
		os.Exit(1)
	}
	ddbClient, err = store.NewClient(ctx, cs)
	if err != nil {
		fmt.Printf("Failed to build client: %v\n", err)
		os.Exit(1)
	}

	tableName = fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8])
	fmt.Printf("Table: %s (%s)\n", tableName, cs)

	if _, err := store.EnsureTable(ctx, ddbClient, tableName, store.DefaultTableWait); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New(ddbClient, store.Config{TableName: tableName, PartitionKey: store.DefaultPartitionKey})
	server = httptest.NewServer(api.NewRouter(api.NewHandler(s, logger), logger))

	code := m.Run()

	server.Close()
	if _, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	}); err != nil {
		fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
	}

	os.Exit(code)
}

// --- Helpers ---

func call(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, r)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(b)
}

func create(t *testing.T, text string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"task": text})
	status, resp := call(t, http.MethodPost, "/todos", string(body))
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", status, resp)
	}
	id := strings.TrimPrefix(resp, "Task created with ID: ")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("create: expected UUID in %q", resp)
	}
	return id
}

func get(t *testing.T, id string) (int, store.Task) {
	t.Helper()
	status, resp := call(t, http.MethodGet, "/todos/"+id, "")
	var task store.Task
	if status == http.StatusOK {
		if err := json.Unmarshal([]byte(resp), &task); err != nil {
			t.Fatalf("decode task: %v", err)
		}
	}
	return status, task
}

// --- Tests ---

func TestCreateThenGet(t *testing.T) {
	id := create(t, "buy milk")

	status, task := get(t, id)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if task.Task != "buy milk" || task.Status != store.StatusPending {
		t.Errorf("unexpected task %+v", task)
	}
	if task.Version != 1 {
		t.Errorf("expected version 1, got %d", task.Version)
	}
}

func TestListContainsCreated(t *testing.T) {
	want := map[string]bool{}
	for i := 0; i < 3; i++ {
		want[create(t, fmt.Sprintf("list %d", i))] = true
	}

	status, resp := call(t, http.MethodGet, "/todos", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var tasks []store.Task
	if err := json.Unmarshal([]byte(resp), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	found := 0
	for _, task := range tasks {
		if want[task.RowKey] {
			found++
		}
	}
	if found != len(want) {
		t.Errorf("expected all %d created tasks in list, found %d", len(want), found)
	}
}

func TestGetMissing(t *testing.T) {
	status, _ := get(t, uuid.NewString())
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestUpdateStatus(t *testing.T) {
	id := create(t, "update me")

	status, resp := call(t, http.MethodPut, "/todos/"+id, `{"status":"Done"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp)
	}

	_, task := get(t, id)
	if task.Status != "Done" || task.Task != "update me" {
		t.Errorf("unexpected task after update %+v", task)
	}
	if task.Version != 2 {
		t.Errorf("expected version 2, got %d", task.Version)
	}
}

func TestUpdateMissingCreatesNothing(t *testing.T) {
	id := uuid.NewString()

	status, _ := call(t, http.MethodPut, "/todos/"+id, `{"status":"Done"}`)
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if status, _ := get(t, id); status != http.StatusNotFound {
		t.Errorf("update must not create a row, GET returned %d", status)
	}
}

func TestDelete(t *testing.T) {
	id := create(t, "delete me")

	if status, _ := call(t, http.MethodDelete, "/todos/"+id, ""); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if status, _ := get(t, id); status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
	if status, _ := call(t, http.MethodDelete, "/todos/"+id, ""); status != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", status)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	id := create(t, "race")
	statuses := []string{"Done", "Cancelled"}

	var wg sync.WaitGroup
	codes := make([]int, len(statuses))
	for i, s := range statuses {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			codes[i], _ = call(t, http.MethodPut, "/todos/"+id, fmt.Sprintf(`{"status":%q}`, s))
		}(i, s)
	}
	wg.Wait()

	if codes[0] != http.StatusOK && codes[1] != http.StatusOK {
		t.Errorf("expected at least one update to succeed, got %v", codes)
	}
	_, task := get(t, id)
	if task.Status != "Done" && task.Status != "Cancelled" {
		t.Errorf("expected one of the written statuses, got %q", task.Status)
	}
}

func TestUnicodeRoundTrip(t *testing.T) {
	text := "日本語テスト\n\t<b>&</b> 🚀"
	id := create(t, text)

	_, task := get(t, id)
	if task.Task != text {
		t.Errorf("expected %q, got %q", text, task.Task)
	}
}
