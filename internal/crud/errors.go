package crud

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrGroupedUnsupported marks a response that does not honor the grouped
// pagination contract.
var ErrGroupedUnsupported = errors.New("grouped pagination not supported")

// ErrMalformedResponse marks a 2xx body that could not be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// errorMessage picks the most useful message for a failed response: the
// structured error envelope, then the raw body, then "<fallback>: <status>".
func errorMessage(body []byte, fallback string, status int) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("%s: %d", fallback, status)
	}

	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if len(env.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
				Text    string `json:"text"`
			}
			if json.Unmarshal(env.Error, &nested) == nil {
				if nested.Message != "" {
					return nested.Message
				}
				if nested.Text != "" {
					return nested.Text
				}
			}
			var plain string
			if json.Unmarshal(env.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
		if env.Message != "" {
			return env.Message
		}
		if env.Detail != "" {
			return env.Detail
		}
	}
	return text
}
