package processor

import "fmt"

// Kind classifies a failed processor call.
type Kind string

const (
	KindTimeout  Kind = "timeout"
	KindNetwork  Kind = "network_error"
	KindNotFound Kind = "not_found"
	KindAuth     Kind = "auth_error"
	KindAPI      Kind = "api_error"
)

// Error is returned for transport faults and non-success HTTP statuses.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("processor %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("processor %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
