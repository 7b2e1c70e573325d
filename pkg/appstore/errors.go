package appstore

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyReceipt           = errors.New("appstore: receipt data is required")
	ErrTransient              = errors.New("appstore: verification service temporarily unavailable")
	ErrRejected               = errors.New("appstore: receipt rejected")
	ErrNoActiveSubscription   = errors.New("appstore: receipt has no subscription transactions")
	ErrUnparsablePayload      = errors.New("appstore: unparsable notification payload")
	ErrUnverifiedPayload      = errors.New("appstore: notification signature verification failed")
	ErrInvalidCertificate     = errors.New("appstore: invalid certificate chain")
	ErrMissingRootCertificate = errors.New("appstore: root certificate is required")
)

// RejectedError carries the status code of a receipt Apple refused.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("appstore: receipt rejected with status %d", e.Status)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}
