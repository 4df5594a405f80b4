package httpgin

import "time"

type CreateBookingRequest struct {
	CustomerID string   `json:"customer_id" binding:"required"`
	ScheduleID string   `json:"schedule_id" binding:"required"`
	SeatIDs    []string `json:"seat_ids" binding:"required,min=1,dive,required"`
	PromoCode  string   `json:"promo_code"`
}

type ApplyPromoRequest struct {
	Code string `json:"code" binding:"required"`
}

type PayRequest struct {
	Method string `json:"method" binding:"required"`
}

type CancelResponse struct {
	BookingID   string `json:"booking_id"`
	RefundCents int64  `json:"refund_cents"`
}

type CreateRouteRequest struct {
	ID             string `json:"id" binding:"required"`
	Source         string `json:"source" binding:"required"`
	Destination    string `json:"destination" binding:"required"`
	BasePriceCents int64  `json:"base_price_cents" binding:"required,gt=0"`
}

type CreateScheduleRequest struct {
	ID        string      `json:"id" binding:"required"`
	RouteID   string      `json:"route_id" binding:"required"`
	Date      string      `json:"date" binding:"required"`
	Departure string      `json:"departure" binding:"required"`
	Arrival   string      `json:"arrival" binding:"required"`
	SeatClass string      `json:"seat_class" binding:"required"`
	Seats     []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

type SeatInput struct {
	ID              string `json:"id" binding:"required"`
	Class           string `json:"class"`
	AdjustmentCents int64  `json:"adjustment_cents"`
}

type AddPolicyRequest struct {
	ID          string `json:"id"`
	RefundPct   int    `json:"refund_pct" binding:"min=0,max=100"`
	HoursBefore int    `json:"hours_before" binding:"min=0"`
	Description string `json:"description"`
}

type AddPromoRequest struct {
	Code        string `json:"code" binding:"required"`
	ExpiresAt   string `json:"expires_at" binding:"required"`
	DiscountPct int    `json:"discount_pct" binding:"required,gt=0,max=100"`
	Active      bool   `json:"active"`
}

type SetSeatAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
