package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Status categories matched with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// NetworkError reports a request that produced no response: connection
// failures, timeouts and cancelled contexts.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-2xx response.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("api returned status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("api returned status %d", e.Status)
}

// Message extracts the server supplied message from the body, if any.
func (e *ServerError) Message() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return ""
	}
	if !gjson.Valid(body) {
		return truncate(body, 200)
	}
	for _, field := range []string{"message", "error"} {
		if v := gjson.Get(body, field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Is lets callers match status categories with errors.Is.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Status == http.StatusBadRequest
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// ValidationError rejects a request before it is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsServer reports whether err is a ServerError.
func IsServer(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}

// truncate shortens s to at most n bytes without splitting a UTF-8
// sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
