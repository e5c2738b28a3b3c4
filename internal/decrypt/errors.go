package decrypt

import (
	"fmt"
	"net/http"
)

// HTTPError is an error that maps directly onto an HTTP response. Handlers
// raise it and the dispatch boundary converts it into the outgoing response,
// short-circuiting the normal success flow.
type HTTPError struct {
	Message    string
	HTTPStatus int
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.HTTPStatus, http.StatusText(e.HTTPStatus), e.Message)
}

// Write writes the error as a plain-text HTTP response.
func (e *HTTPError) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(e.HTTPStatus)
	fmt.Fprintln(w, e.Message)
}

// Predefined errors raised by the reconciler.
var (
	// ErrInvalidKey is raised when the two independently encrypted ETag
	// copies decrypt to different plaintexts. Always fatal.
	ErrInvalidKey = &HTTPError{
		Message:    "Invalid key",
		HTTPStatus: http.StatusForbidden,
	}

	// ErrHeaderDecryption is raised when a required header cannot be
	// decrypted; the response cannot be safely returned.
	ErrHeaderDecryption = &HTTPError{
		Message:    "Error decrypting header",
		HTTPStatus: http.StatusInternalServerError,
	}
)
