package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// NetworkError indicates the request never produced an HTTP response:
// connection failures, timeouts, cancelled contexts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError indicates the backend answered with a non-2xx status.
type ServerError struct {
	Op         string
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Temporary reports whether the failure may succeed on retry.
func (e *ServerError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// MalformedResponseError indicates a 2xx response whose body is not valid
// JSON or does not match the expected shape.
type MalformedResponseError struct {
	Op      string
	Content json.RawMessage
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RequestError indicates the request could not be built, so nothing was
// sent: an unencodable body or an invalid URL.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: invalid request: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsServer reports whether err is a *ServerError.
func IsServer(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// IsMalformed reports whether err is a *MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsRequest reports whether err is a *RequestError.
func IsRequest(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
