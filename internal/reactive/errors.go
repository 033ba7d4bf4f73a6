package reactive

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyMounted = errors.New("collection already mounted")
	ErrTornDown       = errors.New("collection torn down")
)

// LoadError is a failed snapshot load. The collection keeps its previous
// items and records the message in its error flag.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Resource, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

// MutationError is a create, update or delete the remote store rejected.
type MutationError struct {
	Op       string
	Resource string
	Err      error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// StreamError is a failure to open the change channel.
type StreamError struct {
	Resource string
	Channel  string
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("subscribe %s on %s: %v", e.Resource, e.Channel, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
