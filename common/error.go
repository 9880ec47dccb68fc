package common

import "fmt"

// APIError is the error shape returned to HTTP clients. Status picks the
// response code and is never serialized; Fields carries structured
// detail, such as the allowed job types on a rejected submission.
type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

// Errf builds an APIError with a formatted message.
func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// WithFields attaches structured detail to the error.
func (e APIError) WithFields(fields map[string]any) APIError {
	e.Fields = fields
	return e
}
