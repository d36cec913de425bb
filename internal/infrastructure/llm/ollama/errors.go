package ollama

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from the Ollama REST API.
type StatusError struct {
	Endpoint   string
	Model      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("ollama %s (model %s): %d %s", e.Endpoint, e.Model, e.StatusCode, http.StatusText(e.StatusCode))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	if e.ModelMissing() {
		msg += fmt.Sprintf(" (run `ollama pull %s`)", e.Model)
	}
	return msg
}

// ModelMissing reports Ollama's answer for a model that was never pulled.
func (e *StatusError) ModelMissing() bool {
	return e.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(e.Body), "not found")
}

func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func readStatusError(endpoint, model string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Endpoint:   endpoint,
		Model:      model,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// Request errors such as an unknown model say nothing about Ollama's health
// and never trip the breaker. A refused or reset connection is transient:
// the daemon is often still loading a model.
func classify(err error) resilience.Outcome {
	return resilience.Classify(err, func(err error) (resilience.Outcome, bool) {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if statusErr.Temporary() {
				return resilience.Transient, true
			}
			return resilience.Ignored, true
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return resilience.Transient, true
		}
		return resilience.Outcome{}, false
	})
}
