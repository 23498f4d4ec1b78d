package api

import "encoding/json"

// APIError is the normalized form of any non-2xx response. Message is the
// body's "message" field when present, otherwise the HTTP status text.
// Details carries the body's "errors" field for field-level validation
// feedback, or nil.
type APIError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody is the shape the API uses for failures
type errorBody struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}
