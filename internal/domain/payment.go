package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Payment tracks the money flow of one booking:
//
//	Pending -> Processing -> Completed -> Refunded
//	Pending/Processing -> Failed
//
// Transitions are guarded by a per-instance lock so concurrent gateway
// callbacks cannot interleave.
type Payment struct {
	mu            sync.Mutex
	id            uuid.UUID
	bookingID     uuid.UUID
	amountCents   int64
	method        string
	status        PaymentStatus
	confirmedAt   *time.Time
	refundedCents int64
}

func NewPayment(bookingID uuid.UUID, amountCents int64, method string) *Payment {
	return &Payment{
		id:          uuid.New(),
		bookingID:   bookingID,
		amountCents: amountCents,
		method:      method,
		status:      PaymentPending,
	}
}

// Initiate moves the payment from Pending to Processing.
func (p *Payment) Initiate() error {
	const op = "domain.Payment.Initiate"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != PaymentPending {
		return fmt.Errorf("%s: %s: %w", op, p.status, ErrInvalidTransition)
	}

	p.status = PaymentProcessing
	return nil
}

// Confirm moves the payment from Processing to Completed and stamps the
// confirmation time. Any other source state is rejected.
func (p *Payment) Confirm(now time.Time) error {
	const op = "domain.Payment.Confirm"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != PaymentProcessing {
		return fmt.Errorf("%s: %s: %w", op, p.status, ErrInvalidTransition)
	}

	p.status = PaymentCompleted
	p.confirmedAt = &now
	return nil
}

// Fail aborts a payment that has not completed yet.
func (p *Payment) Fail() error {
	const op = "domain.Payment.Fail"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != PaymentPending && p.status != PaymentProcessing {
		return fmt.Errorf("%s: %s: %w", op, p.status, ErrInvalidTransition)
	}

	p.status = PaymentFailed
	return nil
}

// Refund marks a Completed payment as Refunded. The refund may be partial
// (down to zero, when no cancellation policy applies) but never more than
// the original amount.
func (p *Payment) Refund(amountCents int64) error {
	const op = "domain.Payment.Refund"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != PaymentCompleted {
		return fmt.Errorf("%s: %s: %w", op, p.status, ErrInvalidTransition)
	}

	if amountCents > p.amountCents {
		return fmt.Errorf("%s: %d > %d: %w", op, amountCents, p.amountCents, ErrRefundExceedsPayment)
	}

	p.status = PaymentRefunded
	p.refundedCents = amountCents
	return nil
}

func (p *Payment) ID() uuid.UUID        { return p.id }
func (p *Payment) BookingID() uuid.UUID { return p.bookingID }
func (p *Payment) AmountCents() int64   { return p.amountCents }
func (p *Payment) Method() string       { return p.method }

func (p *Payment) Status() PaymentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Payment) ConfirmedAt() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmedAt
}

func (p *Payment) RefundedCents() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refundedCents
}

// Record snapshots the payment for persistence and notification.
func (p *Payment) Record() PaymentRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PaymentRecord{
		ID:            p.id,
		BookingID:     p.bookingID,
		AmountCents:   p.amountCents,
		Method:        p.method,
		Status:        p.status,
		ConfirmedAt:   p.confirmedAt,
		RefundedCents: p.refundedCents,
	}
}
