package domain

import "errors"

// Typed failures crossing the engine boundary. Callers branch with errors.Is;
// display text is the transport's concern.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("seat already claimed")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrEmptySelection       = errors.New("no seats selected")
	ErrDuplicateThreshold   = errors.New("policy threshold already registered")
	ErrDuplicateCode        = errors.New("promotional code already registered")
	ErrInvalidPromo         = errors.New("promotional code not usable")
	ErrRefundExceedsPayment = errors.New("refund exceeds payment amount")
	ErrNoPolicy             = errors.New("no cancellation policy applies")
	ErrPersistence          = errors.New("persistence failure")
)
