package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUnsupportedFileType = errors.New("only PDF and DOCX files are supported")
	ErrFileTooLarge        = errors.New("file size exceeds 5MB limit")
	ErrContentMismatch     = errors.New("file content does not match its extension")
	ErrNoExpiry            = errors.New("token has no expiry claim")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Fields holds per-field validation messages from signup.
	Fields map[string][]string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error (status %d)", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "; %s: %s", name, strings.Join(e.Fields[name], " "))
		}
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// decodeError understands the three error shapes the backend produces:
// {"success":false,"error":{"code","message"}}, {"detail","code"} and
// field error maps.
func decodeError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(statusCode)
		}
		return apiErr
	}

	switch {
	case envelope.Error != nil:
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	case envelope.Detail != "":
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Detail
	default:
		var fields map[string][]string
		if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
			apiErr.Fields = fields
			apiErr.Message = "validation failed"
		} else {
			apiErr.Message = http.StatusText(statusCode)
		}
	}
	return apiErr
}
