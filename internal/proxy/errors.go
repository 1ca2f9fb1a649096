package proxy

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON body the router answers with when it does not proxy.
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}

	return e.Message
}

// NewError creates an Error with the standard status text as message.
func NewError(code int) *Error {
	msg := http.StatusText(code)
	if msg == "" {
		msg = "Error"
	}

	return &Error{Code: code, Message: msg}
}

// WithDetails returns a copy of e with details set.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details

	return &c
}

// WithRequestID returns a copy of e with the request ID set.
func (e *Error) WithRequestID(id string) *Error {
	c := *e
	c.RequestID = id

	return &c
}

// WriteJSON writes the error as JSON to the response.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Code)

	//nolint:errchkjson // the client is gone if this fails
	_ = json.NewEncoder(w).Encode(e)
}
