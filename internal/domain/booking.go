package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Booking aggregates one reservation and tracks its lifecycle:
//
//	Confirmed(unpaid) -> Confirmed(paid) -> Completed
//	Confirmed(unpaid|paid) -> Cancelled
//
// The total is computed once at creation and only changes through an explicit
// promo adjustment before payment; it is never recomputed from current seat
// or class data. Bookings are kept for history and never deleted.
type Booking struct {
	mu         sync.Mutex
	id         uuid.UUID
	customerID string
	res        *Reservation
	createdAt  time.Time
	status     BookingStatus
	paid       bool
	payment    *Payment
	totalCents int64
	promoCode  string
}

func NewBooking(customerID string, res *Reservation, totalCents int64, promoCode string, now time.Time) *Booking {
	return &Booking{
		id:         uuid.New(),
		customerID: customerID,
		res:        res,
		createdAt:  now,
		status:     BookingConfirmed,
		totalCents: totalCents,
		promoCode:  promoCode,
	}
}

// AttachPayment binds a payment to an unpaid confirmed booking. Re-attaching
// the same instance is a no-op; a Failed payment may be replaced, any other
// live payment blocks the attach.
func (b *Booking) AttachPayment(p *Payment) error {
	const op = "domain.Booking.AttachPayment"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != BookingConfirmed || b.paid {
		return fmt.Errorf("%s: %s: %w", op, b.status, ErrInvalidTransition)
	}

	if b.payment != nil {
		if b.payment == p {
			return nil
		}
		if b.payment.Status() != PaymentFailed {
			return fmt.Errorf("%s: payment already attached: %w", op, ErrInvalidTransition)
		}
	}

	b.payment = p
	return nil
}

// DetachPayment undoes an attach that could not be persisted. It only removes
// the given instance and only while the booking is still unpaid.
func (b *Booking) DetachPayment(p *Payment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.payment == p && !b.paid {
		b.payment = nil
	}
}

// MarkPaid flags the booking as paid once its payment has completed.
func (b *Booking) MarkPaid() error {
	const op = "domain.Booking.MarkPaid"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != BookingConfirmed || b.paid {
		return fmt.Errorf("%s: %s: %w", op, b.status, ErrInvalidTransition)
	}

	if b.payment == nil || b.payment.Status() != PaymentCompleted {
		return fmt.Errorf("%s: payment not completed: %w", op, ErrInvalidTransition)
	}

	b.paid = true
	return nil
}

// Complete closes out a paid booking after the trip.
func (b *Booking) Complete() error {
	const op = "domain.Booking.Complete"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != BookingConfirmed || !b.paid {
		return fmt.Errorf("%s: %s: %w", op, b.status, ErrInvalidTransition)
	}

	b.status = BookingCompleted
	return nil
}

// Cancel moves a confirmed booking to Cancelled. Seat release and refund are
// the booking service's responsibility and must already be arranged when this
// is called.
func (b *Booking) Cancel() error {
	const op = "domain.Booking.Cancel"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != BookingConfirmed {
		return fmt.Errorf("%s: %s: %w", op, b.status, ErrInvalidTransition)
	}

	b.status = BookingCancelled
	return nil
}

// AdjustTotal replaces the cached total with a promo-discounted amount.
// Allowed only before any payment exists.
func (b *Booking) AdjustTotal(totalCents int64, promoCode string) error {
	const op = "domain.Booking.AdjustTotal"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != BookingConfirmed || b.paid || b.payment != nil {
		return fmt.Errorf("%s: %s: %w", op, b.status, ErrInvalidTransition)
	}

	b.totalCents = totalCents
	b.promoCode = promoCode
	return nil
}

func (b *Booking) ID() uuid.UUID             { return b.id }
func (b *Booking) CustomerID() string        { return b.customerID }
func (b *Booking) Reservation() *Reservation { return b.res }
func (b *Booking) CreatedAt() time.Time      { return b.createdAt }

func (b *Booking) Status() BookingStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Booking) Paid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paid
}

func (b *Booking) TotalCents() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalCents
}

func (b *Booking) Payment() *Payment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payment
}

// Record snapshots the booking for persistence and notification.
func (b *Booking) Record() BookingRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := BookingRecord{
		ID:            b.id,
		ReservationID: b.res.ID(),
		CustomerID:    b.customerID,
		ScheduleID:    b.res.ScheduleID(),
		RouteID:       b.res.RouteID(),
		SeatClass:     b.res.SeatClass(),
		SeatIDs:       b.res.SeatIDs(),
		Status:        b.status,
		Paid:          b.paid,
		TotalCents:    b.totalCents,
		PromoCode:     b.promoCode,
		CreatedAt:     b.createdAt,
	}

	if b.payment != nil {
		id := b.payment.ID()
		rec.PaymentID = &id
	}

	return rec
}
