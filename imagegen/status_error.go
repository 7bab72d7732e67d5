package imagegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int {
	return e.Code
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// maxErrorBodyRunes bounds how much of an unstructured error body is kept.
const maxErrorBodyRunes = 500

// errorBodyMessage extracts a message from a provider error body. Bodies that
// jsonBodyMessage does not understand are returned as trimmed text.
func errorBodyMessage(body []byte) string {
	if msg, ok := jsonBodyMessage(body); ok {
		return msg
	}
	return truncateMessage(strings.TrimSpace(string(body)), maxErrorBodyRunes)
}

// jsonBodyMessage understands {"error": "..."}, {"error": {"message": "..."}}
// and {"message": "..."}.
func jsonBodyMessage(body []byte) (string, bool) {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	if len(payload.Error) > 0 {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return truncateMessage(s, maxErrorBodyRunes), true
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &obj) == nil && obj.Message != "" {
			return truncateMessage(obj.Message, maxErrorBodyRunes), true
		}
	}
	if payload.Message != "" {
		return truncateMessage(payload.Message, maxErrorBodyRunes), true
	}
	return "", false
}

// truncateMessage cuts s to at most n runes, marking the cut with "...".
func truncateMessage(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
