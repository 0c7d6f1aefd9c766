package hh

import (
	"errors"
	"fmt"
)

// ErrAuthRequired means no usable token is on record; the shell surfaces it
// as HTTP 401.
var ErrAuthRequired = errors.New("no valid hh.ru token available, re-authenticate via /auth/login")

// APIError is a classified failure from the board's API.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hh api error %d: %s", e.StatusCode, e.Message)
}

// AsAPIError unwraps err into an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
