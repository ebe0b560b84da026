package httputil

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// StatusCoder is implemented by errors that map to an HTTP status
type StatusCoder interface {
	StatusCode() int
}

// Detailer is implemented by errors that carry structured fields for the
// client, such as a quota's current usage and limit
type Detailer interface {
	Details() map[string]string
}

// RetryAfterer is implemented by errors that tell the client when to retry
type RetryAfterer interface {
	RetryAfterSeconds() int
}

// StatusError is an error with a fixed status, used for package sentinels
// such as "not found"
type StatusError struct {
	Status  int
	Message string
}

// NewStatusError creates a StatusError
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}

func (e *StatusError) Error() string   { return e.Message }
func (e *StatusError) StatusCode() int { return e.Status }

// WriteAPIError maps err to a response. Errors that know their status are
// written as-is; anything else is logged and reported as a 500 without
// leaking the message.
func WriteAPIError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		if logger != nil {
			logger.WithError(err).Error("Unhandled request error")
		}
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := sc.StatusCode()
	if status >= http.StatusInternalServerError && logger != nil {
		logger.WithError(err).WithField("status", status).Error("Request failed")
	}

	var ra RetryAfterer
	if errors.As(err, &ra) {
		w.Header().Set("Retry-After", strconv.Itoa(ra.RetryAfterSeconds()))
	}

	resp := ErrorResponse{Error: http.StatusText(status), Message: err.Error()}
	var d Detailer
	if errors.As(err, &d) {
		resp.Details = d.Details()
	}
	WriteJSON(w, status, resp)
}
