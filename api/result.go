// File: api/result.go
// Author: momentics <momentics@gmail.com>
//
// Cancellation contract of nonblocking operations.

package api

// Cancelable is any operation that may be canceled.
type Cancelable interface {
	// Cancel attempts to abort the operation.
	Cancel() error
	// Done is closed on completion or cancellation.
	Done() <-chan struct{}
	// Err returns the terminal error, nil on success.
	Err() error
}
