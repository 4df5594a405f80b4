package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/repository"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
	"github.com/transitfare/fare-go/internal/service"
	"github.com/transitfare/fare-go/internal/service/admin"
	"github.com/transitfare/fare-go/internal/service/booking"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/schedules/:id", handleGetSchedule(svcs))
	r.GET("/schedules/:id/availability", handleGetAvailability(svcs))
	r.GET("/schedules/:id/seats", handleListSeats(svcs))

	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.GET("/bookings", handleListCustomerBookings(svcs))
	r.POST("/bookings/:id/promo", handleApplyPromo(svcs))
	r.POST("/bookings/:id/payments", handlePay(svcs))
	r.POST("/bookings/:id/payments/confirm", handleConfirmPayment(svcs))
	r.POST("/bookings/:id/payments/fail", handleFailPayment(svcs))
	r.POST("/bookings/:id/complete", handleComplete(svcs))
	r.POST("/bookings/:id/cancel", handleCancel(svcs))

	// Staff API
	// TODO: add staff auth middleware once the gateway contract is settled
	staff := r.Group("/admin")
	{
		staff.POST("/routes", handleCreateRoute(svcs))
		staff.POST("/schedules", handleCreateSchedule(svcs))
		staff.POST("/policies", handleAddPolicy(svcs))
		staff.POST("/promos", handleAddPromo(svcs))
		staff.PATCH("/schedules/:id/seats/:seat", handleSetSeatAvailability(svcs))
	}

	return r
}

// --- Read side ---

func handleGetSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svcs.Query.GetSchedule(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, sum, "public, max-age=30", true)
	}
}

func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		cnt, err := svcs.Query.Counts(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cnt, "public, max-age=5", true)
	}
}

func handleListSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		onlyAvailable := c.Query("only") == "available" || c.Query("only_available") == "true"
		page := parseIntDefault(c.Query("page"), 1)
		perPage := parseIntDefault(c.Query("per_page"), 0)

		seats, err := svcs.Query.ListSeats(
			c.Request.Context(),
			c.Param("id"),
			onlyAvailable,
			page,
			perPage,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, seats, "public, max-age=5", true)
	}
}

// --- Booking flow ---

func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.ScheduleID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Booking.BookSeats(c.Request.Context(), booking.BookSeatsInput{
			CustomerID:  req.CustomerID,
			ScheduleID:  req.ScheduleID,
			SeatIDs:     req.SeatIDs,
			PromoCode:   req.PromoCode,
			ThrottleKey: "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := b.Record()

		if idemStorageKey != "" && idem != nil {
			payload, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.GetBooking(id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b.Record())
	}
}

func handleListCustomerBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID := c.Query("customer_id")
		if customerID == "" {
			badRequest(c, "missing customer_id")
			return
		}

		bs := svcs.Booking.CustomerBookings(customerID)
		out := make([]domain.BookingRecord, 0, len(bs))
		for _, b := range bs {
			out = append(out, b.Record())
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleApplyPromo(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req ApplyPromoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Booking.ApplyPromo(c.Request.Context(), id, req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b.Record())
	}
}

func handlePay(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req PayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svcs.Booking.Pay(c.Request.Context(), id, req.Method)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, p.Record())
	}
}

func handleConfirmPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Booking.ConfirmPayment(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		b, err := svcs.Booking.GetBooking(id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b.Record())
	}
}

func handleFailPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Booking.FailPayment(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleComplete(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Booking.Complete(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		b, err := svcs.Booking.GetBooking(id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b.Record())
	}
}

func handleCancel(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		refund, err := svcs.Booking.Cancel(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CancelResponse{
			BookingID:   id.String(),
			RefundCents: refund,
		})
	}
}

// --- Staff ---

func handleCreateRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rt := domain.Route{
			ID:             req.ID,
			Source:         req.Source,
			Destination:    req.Destination,
			BasePriceCents: req.BasePriceCents,
		}
		if err := svcs.Admin.CreateRoute(c.Request.Context(), rt); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"route_id": rt.ID})
	}
}

func handleCreateSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseRFC3339(req.Date)
		if err != nil {
			badRequest(c, "invalid date (RFC3339)")
			return
		}
		departure, err := parseRFC3339(req.Departure)
		if err != nil {
			badRequest(c, "invalid departure (RFC3339)")
			return
		}
		arrival, err := parseRFC3339(req.Arrival)
		if err != nil {
			badRequest(c, "invalid arrival (RFC3339)")
			return
		}

		sched := domain.Schedule{
			ID:        req.ID,
			RouteID:   req.RouteID,
			Date:      date,
			Departure: departure,
			Arrival:   arrival,
			SeatClass: domain.SeatClass(req.SeatClass),
		}
		for _, s := range req.Seats {
			sched.Seats = append(sched.Seats, domain.Seat{
				ID:              s.ID,
				Class:           domain.SeatClass(s.Class),
				AdjustmentCents: s.AdjustmentCents,
			})
		}

		if err := svcs.Admin.CreateSchedule(c.Request.Context(), sched); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"schedule_id": sched.ID, "seats": len(sched.Seats)})
	}
}

func handleAddPolicy(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddPolicyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p := domain.CancellationPolicy{
			ID:          req.ID,
			RefundPct:   req.RefundPct,
			HoursBefore: req.HoursBefore,
			Description: req.Description,
		}
		if err := svcs.Admin.AddPolicy(c.Request.Context(), p); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

func handleAddPromo(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddPromoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		expires, err := parseRFC3339(req.ExpiresAt)
		if err != nil {
			badRequest(c, "invalid expires_at (RFC3339)")
			return
		}
		code := domain.PromotionalCode{
			Code:        req.Code,
			ExpiresAt:   expires,
			DiscountPct: req.DiscountPct,
			Active:      req.Active,
		}
		if err := svcs.Admin.AddPromo(c.Request.Context(), code); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

func handleSetSeatAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetSeatAvailabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		err := svcs.Admin.SetSeatAvailability(
			c.Request.Context(),
			c.Param("id"),
			c.Param("seat"),
			*req.Available,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid state transition"})
	case errors.Is(err, domain.ErrDuplicateThreshold),
		errors.Is(err, domain.ErrDuplicateCode):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "duplicate catalog entry"})
	case errors.Is(err, domain.ErrInvalidPromo):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid promo code"})
	case errors.Is(err, domain.ErrEmptySelection):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty seat selection"})
	case errors.Is(err, domain.ErrRefundExceedsPayment):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "refund exceeds payment"})
	case errors.Is(err, admin.ErrBadRouteEndpoints),
		errors.Is(err, admin.ErrBadScheduleWindow),
		errors.Is(err, admin.ErrEmptySeatLayout),
		errors.Is(err, admin.ErrNonPositivePrice),
		errors.Is(err, admin.ErrPercentOutOfRange),
		errors.Is(err, admin.ErrNegativeLeadTime),
		errors.Is(err, admin.ErrEmptyPromotionCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
