package models

import "errors"

var (
	// Input errors
	ErrValidation   = errors.New("validation failed")
	ErrMissingInput = errors.New("missing input")

	// Configuration errors
	ErrUnconfigured        = errors.New("subsystem not configured")
	ErrProviderUnavailable = errors.New("otp provider not configured")

	// OTP errors
	ErrDeliveryFailed = errors.New("otp delivery failed")

	// Funding errors
	ErrInsufficientFunderBalance = errors.New("insufficient funder balance")
	ErrBroadcastRejected         = errors.New("transaction broadcast rejected")
	ErrConfirmationTimeout       = errors.New("transaction not confirmed in time")
	ErrTransactionReverted       = errors.New("transaction reverted")

	// Identity store errors
	ErrStoreFailure = errors.New("identity store failure")
	ErrNotFound     = errors.New("voter not found")
	ErrConflict     = errors.New("voter already exists")
)
