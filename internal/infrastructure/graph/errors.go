package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is the "error" object the Graph API embeds in failed responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Type       string `json:"type,omitempty"`
	Code       int    `json:"code,omitempty"`
	Subcode    int    `json:"error_subcode,omitempty"`
	UserTitle  string `json:"error_user_title,omitempty"`
	FBTraceID  string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("graph API request failed with status %d", e.StatusCode)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// ParseError extracts the provider error from a response body. It returns nil
// when the body carries no error object.
func ParseError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	env.Error.StatusCode = status
	return env.Error
}

// ProviderMessage returns the message the provider put in the error envelope.
// ok is false when err carries no APIError or the envelope had no message.
func ProviderMessage(err error) (msg string, ok bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}
