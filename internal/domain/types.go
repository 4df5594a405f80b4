package domain

import (
	"time"

	"github.com/google/uuid"
)

type SeatClass string

const (
	ClassEconomy  SeatClass = "economy"
	ClassBusiness SeatClass = "business"
	ClassFirst    SeatClass = "first"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type Route struct {
	ID             string
	Source         string
	Destination    string
	BasePriceCents int64
}

// Seat belongs to exactly one schedule. The identifier is the row+number
// label shown to customers ("A1", "12C").
type Seat struct {
	ID              string
	Class           SeatClass
	AdjustmentCents int64
	Available       bool
}

// Schedule is one departure on a route. Arrival must be strictly after
// departure. Route is a back-reference, not ownership.
type Schedule struct {
	ID        string
	RouteID   string
	Date      time.Time
	Departure time.Time
	Arrival   time.Time
	SeatClass SeatClass
	ClassPct  int
	Seats     []Seat
	Route     *Route
}

// CancellationPolicy maps a minimum lead time (hours before departure) to a
// refund percentage. At most one policy per distinct threshold.
type CancellationPolicy struct {
	ID          string
	RefundPct   int
	HoursBefore int
	Description string
}

// PromotionalCode is keyed case-insensitively by Code. A code is usable when
// it is active and today is not past the expiry date.
type PromotionalCode struct {
	Code        string
	ExpiresAt   time.Time
	DiscountPct int
	Active      bool
}

type SeatCounts struct {
	Available int `json:"available"`
	Taken     int `json:"taken"`
	Total     int `json:"total"`
}

// BookingRecord is the flat snapshot of a booking handed to persistence and
// notification collaborators.
type BookingRecord struct {
	ID            uuid.UUID     `json:"id"`
	ReservationID uuid.UUID     `json:"reservation_id"`
	CustomerID    string        `json:"customer_id"`
	ScheduleID    string        `json:"schedule_id"`
	RouteID       string        `json:"route_id"`
	SeatClass     SeatClass     `json:"seat_class"`
	SeatIDs       []string      `json:"seat_ids"`
	Status        BookingStatus `json:"status"`
	Paid          bool          `json:"paid"`
	TotalCents    int64         `json:"total_cents"`
	PromoCode     string        `json:"promo_code,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	PaymentID     *uuid.UUID    `json:"payment_id,omitempty"`
}

// PaymentRecord is the flat snapshot of a payment.
type PaymentRecord struct {
	ID            uuid.UUID     `json:"id"`
	BookingID     uuid.UUID     `json:"booking_id"`
	AmountCents   int64         `json:"amount_cents"`
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	RefundedCents int64         `json:"refunded_cents"`
}
