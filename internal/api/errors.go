package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind classifies a failed call to the analysis service
type Kind int

const (
	// KindServerRejected: the service answered with a non-2xx status
	KindServerRejected Kind = iota + 1
	// KindUnreachable: no response was received
	KindUnreachable
	// KindMalformed: the request could not be built or the reply could not be read
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindServerRejected:
		return "server_rejected"
	case KindUnreachable:
		return "unreachable"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// maximum error body read from a rejected response
const maxErrorBody = 64 << 10

var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Error is returned by every Client call that fails. Message is meant for
// display as-is: service-authored for rejections, client-authored otherwise.
type Error struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err did not come from a Client
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func malformed(op string, err error) *Error {
	return &Error{
		Op:      op,
		Kind:    KindMalformed,
		Message: fmt.Sprintf("Request failed: %v", err),
		Err:     err,
	}
}

// unexpected reports a 2xx response whose body could not be decoded
func unexpected(op string, err error) *Error {
	return &Error{
		Op:      op,
		Kind:    KindMalformed,
		Message: "Unexpected response from service",
		Err:     err,
	}
}

func (c *Client) unreachable(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindUnreachable,
		Message: fmt.Sprintf("No response from server. Make sure the analysis service is running at %s (port %s).",
			c.base.Host, c.port()),
		Err: err,
	}
}

// rejected reads the {"error": "..."} body of a non-2xx response
func rejected(op string, resp *http.Response) *Error {
	var payload struct {
		Error string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(body, &payload)

	msg := payload.Error
	if msg == "" {
		msg = fmt.Sprintf("Server error: %d", resp.StatusCode)
	}
	return &Error{
		Op:      op,
		Kind:    KindServerRejected,
		Status:  resp.StatusCode,
		Message: msg,
	}
}

// bodyError marks a failure while streaming the request body, so it is not
// mistaken for a network failure when it surfaces from http.Client.Do.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }
