package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRejected is wrapped when the backend answers with success=false.
var ErrRejected = errors.New("backend rejected request")

// FetchError is returned by every Client operation that fails. It is
// transient from the caller's point of view; the next poll retries.
type FetchError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Unauthorized reports whether the backend refused the station credentials.
func (e *FetchError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// NotFound reports whether the backend does not know the requested resource.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err carries a 401 FetchError.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Unauthorized()
}

// IsNotFound reports whether err carries a 404 FetchError.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.NotFound()
}
