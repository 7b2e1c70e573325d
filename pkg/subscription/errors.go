package subscription

import "errors"

var (
	ErrRecordNotFound      = errors.New("entitlement record not found")
	ErrMappingNotFound     = errors.New("transaction mapping not found")
	ErrTransactionConflict = errors.New("transaction already belongs to another user")
	ErrEmptyUserID         = errors.New("user id is required")
	ErrEmptyTransactionID  = errors.New("original transaction id is required")
	ErrInvalidSource       = errors.New("invalid entitlement source")
	ErrStoreFailure        = errors.New("entitlement store failure")
)
