package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request id that ties client and service logs together
const RequestIDHeader = "X-Request-ID"

// loggingTransport logs every outbound request and its outcome
type loggingTransport struct {
	next   http.RoundTripper
	logger *log.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := uuid.New().String()

	// a RoundTripper must not modify the caller's request
	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, id)

	start := time.Now()
	t.logger.Debug("API request", "method", req.Method, "path", req.URL.Path, "request_id", id)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Error("API response error",
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", id,
			"error", err,
		)
		return nil, err
	}

	t.logger.Info("API response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
		"request_id", id,
	)
	return resp, nil
}
