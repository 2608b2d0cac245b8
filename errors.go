package lnurlbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by the payment executor when no more
	// withdrawals can be accepted.
	ErrQueueFull = errors.New("withdrawal queue is full")

	// ErrExecutorStopped is returned when a job is submitted after the
	// executor has shut down.
	ErrExecutorStopped = errors.New("payment executor stopped")

	// ErrExecutorRunning is returned by a second Run of the same executor.
	ErrExecutorRunning = errors.New("payment executor already running")

	// ErrInvoiceNotFound is returned when waiting on a label the node
	// adapter never created.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvoiceCanceled is returned when an awaited invoice is canceled
	// before it was paid.
	ErrInvoiceCanceled = errors.New("invoice canceled")

	// ErrRemoteStatus is matched by every RemoteStatusError.
	ErrRemoteStatus = errors.New("remote returned error status")

	errTokenCollision = errors.New("unable to generate unique token")
)

// RemoteStatusError is the client side view of a `{"status":"ERROR"}` response.
type RemoteStatusError struct {
	Endpoint string
	Code     int
	Reason   string
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.Code, e.Reason)
}

func (e *RemoteStatusError) Is(target error) bool {
	return target == ErrRemoteStatus
}
