package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vbonduro/calscan/internal/domain"
)

// ErrUnavailable is returned when the breaker refuses to call the backend.
var ErrUnavailable = errors.New("ai backend temporarily unavailable")

// Request is one prompt, optionally carrying an inline image.
type Request struct {
	Prompt string
	Image  *domain.EncodedPayload
}

// Generator sends a single request to a generative model and returns the
// first text part of the answer. An absent answer is returned as "" with a
// nil error; callers decide what an empty answer means.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// TransportError reports a non-2xx response from the backend.
type TransportError struct {
	Backend    string
	StatusCode int
	Status     string
	Body       string
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s returned status %d %s", e.Backend, e.StatusCode, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewTransportError builds a TransportError from a status code, filling the
// status text from net/http when the backend did not supply one.
func NewTransportError(backend string, code int, status, body string) *TransportError {
	if status == "" {
		status = http.StatusText(code)
	}
	return &TransportError{Backend: backend, StatusCode: code, Status: status, Body: body}
}

// StatusText strips the numeric prefix net/http puts on Response.Status.
func StatusText(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if len(resp.Status) > len(prefix) && resp.Status[:len(prefix)] == prefix {
		return resp.Status[len(prefix):]
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}
