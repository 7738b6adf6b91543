package authapi

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response from the auth server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth api: status %d", e.Status)
	}
	return fmt.Sprintf("auth api: %s (status %d)", e.Message, e.Status)
}

// IsStatus reports whether err carries an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
