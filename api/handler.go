package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jacentio/tasktable/store"
)

// TaskStore is the task persistence used by the handler.
// *store.Store and *store.Accessor satisfy it.
type TaskStore interface {
	Create(ctx context.Context, text string) (*store.Task, error)
	List(ctx context.Context) ([]store.Task, error)
	Get(ctx context.Context, id string) (*store.Task, error)
	UpdateStatus(ctx context.Context, id, status string, expectedVersion int64) (*store.Task, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the task endpoints.
type Handler struct {
	store     TaskStore
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler creates a new Handler.
func NewHandler(s TaskStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		store:     s,
		logger:    logger,
		validator: v,
	}
}

// CreateTask handles POST /todos.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, "create", err)
		return
	}
	if err := h.validate(req); err != nil {
		h.respondError(w, r, "create", err)
		return
	}

	task, err := h.store.Create(r.Context(), *req.Task)
	if err != nil {
		h.respondError(w, r, "create", err)
		return
	}

	h.logger.Info("task created", "id", task.RowKey)
	w.Header().Set("Location", "/todos/"+task.RowKey)
	w.Header().Set("ETag", store.FormatVersion(task.Version))
	h.respondText(w, http.StatusCreated, fmt.Sprintf("Task created with ID: %s", task.RowKey))
}

// ListTasks handles GET /todos.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List(r.Context())
	if err != nil {
		h.respondError(w, r, "list", err)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	h.respondJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /todos/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get", err)
		return
	}

	w.Header().Set("ETag", store.FormatVersion(task.Version))
	h.respondJSON(w, http.StatusOK, task)
}

// UpdateTaskStatus handles PUT /todos/{id}.
// The row is read first; the write only succeeds if the row still has the
// version that was read, or the version given in If-Match.
func (h *Handler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, "update", err)
		return
	}
	var status string
	if req.Status != nil {
		status = *req.Status
	}

	current, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "update", err)
		return
	}

	expected, err := expectedVersion(r, current)
	if err != nil {
		h.respondError(w, r, "update", err)
		return
	}

	updated, err := h.store.UpdateStatus(r.Context(), id, status, expected)
	if err != nil {
		h.respondError(w, r, "update", err)
		return
	}

	h.logger.Info("task updated", "id", id, "status", status, "version", updated.Version)
	w.Header().Set("ETag", store.FormatVersion(updated.Version))
	h.respondText(w, http.StatusOK, fmt.Sprintf("Task with ID: %s updated", id))
}

// DeleteTask handles DELETE /todos/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "delete", err)
		return
	}

	h.logger.Info("task deleted", "id", id)
	h.respondText(w, http.StatusOK, fmt.Sprintf("Task with ID: %s deleted", id))
}

// Health handles GET /health. It does not touch the table store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, http.StatusOK, "OK")
}

// expectedVersion returns the version the update must match: the If-Match
// header when present, otherwise the version that was just read.
func expectedVersion(r *http.Request, current *store.Task) (int64, error) {
	ifMatch := strings.TrimSpace(r.Header.Get("If-Match"))
	if ifMatch == "" || ifMatch == "*" {
		return current.Version, nil
	}
	v, err := store.ParseVersion(ifMatch)
	if errors.Is(err, store.ErrWeakVersion) {
		// A weak tag never matches under strong comparison.
		return 0, store.ErrConcurrentModification
	}
	if err != nil {
		return 0, validationErrorf("invalid If-Match header: %v", err)
	}
	return v, nil
}

// validate runs struct validation and flattens the result into one message.
func (h *Handler) validate(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationErrorf("validation error: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return validationErrorf("%s", strings.Join(msgs, "; "))
}
