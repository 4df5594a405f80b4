// Package query serves the read side: schedule summaries, seat counts and
// paginated seat maps. Responses are cached in redis with short TTLs and
// invalidated by the write side on every booking mutation.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/inventory"
	"github.com/transitfare/fare-go/internal/pricing"
	redisx "github.com/transitfare/fare-go/internal/redis"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
)

const (
	defaultSummaryTTL = 30 * time.Second
	defaultSeatsTTL   = 5 * time.Second

	defaultPageSize = 50
	maxPageSize     = 200
)

type ScheduleSource interface {
	LoadSchedule(ctx context.Context, id string) (*domain.Schedule, error)
}

// ScheduleSummary is the customer-facing view of one departure.
type ScheduleSummary struct {
	ID              string            `json:"id"`
	RouteID         string            `json:"route_id"`
	Source          string            `json:"source"`
	Destination     string            `json:"destination"`
	Date            time.Time         `json:"date"`
	Departure       time.Time         `json:"departure"`
	Arrival         time.Time         `json:"arrival"`
	SeatClass       domain.SeatClass  `json:"seat_class"`
	ClassPriceCents int64             `json:"class_price_cents"`
	Counts          domain.SeatCounts `json:"counts"`
}

// SeatPage is one page of a schedule's seat map.
type SeatPage struct {
	Seats   Seats `json:"seats"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int   `json:"total"`
}

type Seats []SeatView

type SeatView struct {
	ID              string           `json:"id"`
	Class           domain.SeatClass `json:"class"`
	AdjustmentCents int64            `json:"adjustment_cents"`
	Available       bool             `json:"available"`
}

type Service struct {
	log    *slog.Logger
	source ScheduleSource
	inv    *inventory.Inventory
	cache  *redisrepo.Cache

	summaryTTL time.Duration
	seatsTTL   time.Duration
}

func New(log *slog.Logger, source ScheduleSource, inv *inventory.Inventory, cache *redisrepo.Cache) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		log:        log,
		source:     source,
		inv:        inv,
		cache:      cache,
		summaryTTL: defaultSummaryTTL,
		seatsTTL:   defaultSeatsTTL,
	}
}

// GetSchedule returns the summary view, served from cache when warm.
func (s *Service) GetSchedule(ctx context.Context, scheduleID string) (ScheduleSummary, error) {
	const op = "query.Service.GetSchedule"

	load := func(ctx context.Context) (ScheduleSummary, error) {
		return s.buildSummary(ctx, scheduleID)
	}

	if s.cache == nil {
		sum, err := load(ctx)
		if err != nil {
			return ScheduleSummary{}, fmt.Errorf("%s: %w", op, err)
		}
		return sum, nil
	}

	sum, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyScheduleSummary(scheduleID), s.summaryTTL, load)
	if err != nil {
		return ScheduleSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	return sum, nil
}

// Counts returns availability totals for a schedule. Resident inventory is
// authoritative; otherwise the counts come from the schedule source.
func (s *Service) Counts(ctx context.Context, scheduleID string) (domain.SeatCounts, error) {
	const op = "query.Service.Counts"

	load := func(ctx context.Context) (domain.SeatCounts, error) {
		seats, err := s.seats(ctx, scheduleID)
		if err != nil {
			return domain.SeatCounts{}, err
		}
		return countSeats(seats), nil
	}

	if s.cache == nil {
		c, err := load(ctx)
		if err != nil {
			return domain.SeatCounts{}, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	}

	c, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyScheduleAvailability(scheduleID), s.seatsTTL, load)
	if err != nil {
		return domain.SeatCounts{}, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

// ListSeats returns one page of the seat map, optionally filtered to
// available seats. Page numbering starts at 1; a page past the end is empty,
// not an error.
func (s *Service) ListSeats(ctx context.Context, scheduleID string, onlyAvailable bool, page, perPage int) (SeatPage, error) {
	const op = "query.Service.ListSeats"

	seats, err := s.allSeats(ctx, scheduleID)
	if err != nil {
		return SeatPage{}, fmt.Errorf("%s: %w", op, err)
	}

	if onlyAvailable {
		filtered := make([]domain.Seat, 0, len(seats))
		for _, seat := range seats {
			if seat.Available {
				filtered = append(filtered, seat)
			}
		}
		seats = filtered
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	total := len(seats)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	views := make(Seats, 0, end-start)
	for _, seat := range seats[start:end] {
		views = append(views, SeatView{
			ID:              seat.ID,
			Class:           seat.Class,
			AdjustmentCents: seat.AdjustmentCents,
			Available:       seat.Available,
		})
	}

	return SeatPage{Seats: views, Page: page, PerPage: perPage, Total: total}, nil
}

func (s *Service) buildSummary(ctx context.Context, scheduleID string) (ScheduleSummary, error) {
	sched, err := s.source.LoadSchedule(ctx, scheduleID)
	if err != nil {
		return ScheduleSummary{}, err
	}

	seats := sched.Seats
	if s.inv.Loaded(scheduleID) {
		if live, err := s.inv.Snapshot(scheduleID); err == nil {
			seats = live
		}
	}

	sum := ScheduleSummary{
		ID:        sched.ID,
		RouteID:   sched.RouteID,
		Date:      sched.Date,
		Departure: sched.Departure,
		Arrival:   sched.Arrival,
		SeatClass: sched.SeatClass,
		Counts:    countSeats(seats),
	}
	if sched.Route != nil {
		sum.Source = sched.Route.Source
		sum.Destination = sched.Route.Destination
		sum.ClassPriceCents = pricing.Price(sched.Route.BasePriceCents, sched.SeatClass)
	}

	return sum, nil
}

func (s *Service) allSeats(ctx context.Context, scheduleID string) ([]domain.Seat, error) {
	if s.cache == nil {
		return s.seats(ctx, scheduleID)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyScheduleSeatMap(scheduleID), s.seatsTTL,
		func(ctx context.Context) ([]domain.Seat, error) {
			return s.seats(ctx, scheduleID)
		})
}

func (s *Service) seats(ctx context.Context, scheduleID string) ([]domain.Seat, error) {
	if s.inv.Loaded(scheduleID) {
		return s.inv.Snapshot(scheduleID)
	}

	sched, err := s.source.LoadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	return sched.Seats, nil
}

func countSeats(seats []domain.Seat) domain.SeatCounts {
	c := domain.SeatCounts{Total: len(seats)}
	for _, seat := range seats {
		if seat.Available {
			c.Available++
		} else {
			c.Taken++
		}
	}

	return c
}
