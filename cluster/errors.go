package cluster

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidQuote      = errors.New("invalid quote")
	ErrQuoteExpired      = errors.New("quote expired")
	ErrOperationMismatch = errors.New("receipt does not cover this operation")
	ErrPaymentInvalid    = errors.New("payment invalid")
	ErrReceiptReused     = errors.New("receipt already used")
)
