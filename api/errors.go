package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jacentio/tasktable/store"
)

// validationError marks a malformed or incomplete request.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var verr *validationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	switch store.KindOf(err) {
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
