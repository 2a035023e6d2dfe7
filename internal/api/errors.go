package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const genericErrorDetail = "An error occurred"

// ErrUnauthorized matches any [*Error] with status 401 via errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int

	// Detail is the human-readable message; never empty.
	Detail string

	// Body is the normalized error document. It always has a "detail" key.
	Body map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// Is reports whether target is [ErrUnauthorized] and e is a 401.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Detail extracts a display message from err: the backend's detail for an
// [*Error], the error text otherwise, and fallback for nil or empty text.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func newError(status int, raw []byte) *Error {
	body := normalizeErrorBody(raw)

	detail, _ := body["detail"].(string)
	if detail == "" {
		if alt, ok := body["error"].(string); ok && alt != "" {
			detail = alt
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	if detail == "" {
		detail = genericErrorDetail
	}
	body["detail"] = detail

	return &Error{StatusCode: status, Detail: detail, Body: body}
}

// normalizeErrorBody turns any error response body into an object.
//
// An object is returned as is. A JSON string is parsed a second time, since
// some servers double-encode; if that does not yield an object the string
// itself becomes the detail. Anything else (HTML, plain text, empty) becomes
// {"detail": <text or generic message>}.
func normalizeErrorBody(raw []byte) map[string]any {
	trimmed := bytes.TrimSpace(raw)

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj != nil {
		return obj
	}

	text := string(trimmed)
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		text = s
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
			return obj
		}
	}

	if text == "" {
		text = genericErrorDetail
	}
	return map[string]any{"detail": text}
}
