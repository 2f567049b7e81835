package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// CreateTaskRequest is the body of POST /todos.
// Task is a pointer so an explicit empty string is accepted but a missing
// field is not.
type CreateTaskRequest struct {
	Task *string `json:"task" validate:"required"`
}

// UpdateStatusRequest is the body of PUT /todos/{id}.
// A missing status is treated as an empty one.
type UpdateStatusRequest struct {
	Status *string `json:"status"`
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return validationErrorf("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return validationErrorf("request body is required")
		}
		return validationErrorf("invalid request body: %v", err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return validationErrorf("invalid request body: unexpected data after JSON value")
	}
	return nil
}
