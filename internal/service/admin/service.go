// Package admin exposes the staff-facing catalog operations: routes,
// schedules with their seat layouts, cancellation policies, promo codes and
// seat maintenance. Writes go to storage first, then to the in-memory engine
// state shared with the booking service.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/inventory"
	"github.com/transitfare/fare-go/internal/policy"
	"github.com/transitfare/fare-go/internal/pricing"
	"github.com/transitfare/fare-go/internal/promo"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
)

// CatalogStore persists catalog entities and seat maintenance flips.
type CatalogStore interface {
	CreateRoute(ctx context.Context, rt domain.Route) error
	CreateSchedule(ctx context.Context, sched domain.Schedule) error
	AddPolicy(ctx context.Context, p domain.CancellationPolicy) error
	AddPromo(ctx context.Context, c domain.PromotionalCode) error
	UpdateSeatAvailability(ctx context.Context, scheduleID string, seatIDs []string, available bool) error
}

type Service struct {
	log      *slog.Logger
	store    CatalogStore
	inv      *inventory.Inventory
	policies *policy.Table
	promos   *promo.Registry
	cache    *redisrepo.Cache
}

func New(
	log *slog.Logger,
	store CatalogStore,
	inv *inventory.Inventory,
	policies *policy.Table,
	promos *promo.Registry,
	cache *redisrepo.Cache,
) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		log:      log,
		store:    store,
		inv:      inv,
		policies: policies,
		promos:   promos,
		cache:    cache,
	}
}

// CreateRoute registers a route between two distinct stops.
func (s *Service) CreateRoute(ctx context.Context, rt domain.Route) error {
	const op = "admin.Service.CreateRoute"

	src := strings.TrimSpace(rt.Source)
	dst := strings.TrimSpace(rt.Destination)
	if src == "" || dst == "" || strings.EqualFold(src, dst) {
		return fmt.Errorf("%s: %q -> %q: %w", op, rt.Source, rt.Destination, ErrBadRouteEndpoints)
	}

	if rt.BasePriceCents <= 0 {
		return fmt.Errorf("%s: %d: %w", op, rt.BasePriceCents, ErrNonPositivePrice)
	}

	rt.Source = src
	rt.Destination = dst

	if err := s.store.CreateRoute(ctx, rt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("route created", "route_id", rt.ID, "source", src, "destination", dst)

	return nil
}

// CreateSchedule registers a departure with its seat layout. Seats start
// available; the class multiplier is stamped onto the schedule so reads do
// not depend on pricing table lookups.
func (s *Service) CreateSchedule(ctx context.Context, sched domain.Schedule) error {
	const op = "admin.Service.CreateSchedule"

	if !sched.Arrival.After(sched.Departure) {
		return fmt.Errorf("%s: %s >= %s: %w", op, sched.Departure, sched.Arrival, ErrBadScheduleWindow)
	}

	if len(sched.Seats) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptySeatLayout)
	}

	sched.ClassPct = pricing.MultiplierPct(sched.SeatClass)
	for i := range sched.Seats {
		sched.Seats[i].Available = true
		if sched.Seats[i].Class == "" {
			sched.Seats[i].Class = sched.SeatClass
		}
	}

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.inv.Load(&sched)

	s.log.Info("schedule created",
		"schedule_id", sched.ID,
		"route_id", sched.RouteID,
		"seats", len(sched.Seats),
	)

	return nil
}

// AddPolicy persists a cancellation rule and installs it in the live table.
func (s *Service) AddPolicy(ctx context.Context, p domain.CancellationPolicy) error {
	const op = "admin.Service.AddPolicy"

	if p.RefundPct < 0 || p.RefundPct > 100 {
		return fmt.Errorf("%s: refund %d%%: %w", op, p.RefundPct, ErrPercentOutOfRange)
	}

	if p.HoursBefore < 0 {
		return fmt.Errorf("%s: %dh: %w", op, p.HoursBefore, ErrNegativeLeadTime)
	}

	// Validate against the live table first so a duplicate threshold never
	// reaches storage.
	if err := s.policies.Add(p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.AddPolicy(ctx, p); err != nil {
		// Roll the live table back to match storage.
		rules := s.policies.Rules()
		kept := rules[:0]
		for _, r := range rules {
			if r.HoursBefore != p.HoursBefore {
				kept = append(kept, r)
			}
		}
		_ = s.policies.Replace(kept)

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddPromo persists a promo code and installs it in the live registry.
func (s *Service) AddPromo(ctx context.Context, c domain.PromotionalCode) error {
	const op = "admin.Service.AddPromo"

	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyPromotionCode)
	}

	if c.DiscountPct <= 0 || c.DiscountPct > 100 {
		return fmt.Errorf("%s: discount %d%%: %w", op, c.DiscountPct, ErrPercentOutOfRange)
	}

	if err := s.promos.Add(c); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.AddPromo(ctx, c); err != nil {
		// Roll the live registry back to match storage.
		s.promos.Remove(c.Code)

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SetSeatAvailability force-sets one seat, for maintenance blocks or manual
// releases. Storage is updated first; the in-memory seat follows only when
// the schedule is resident.
func (s *Service) SetSeatAvailability(ctx context.Context, scheduleID, seatID string, available bool) error {
	const op = "admin.Service.SetSeatAvailability"

	if err := s.store.UpdateSeatAvailability(ctx, scheduleID, []string{seatID}, available); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.inv.Loaded(scheduleID) {
		if err := s.inv.SetAvailability(ctx, scheduleID, seatID, available); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSchedule(context.WithoutCancel(ctx), scheduleID); err != nil {
			s.log.Warn("cache invalidation failed", "schedule_id", scheduleID, "error", err)
		}
	}

	s.log.Info("seat availability set",
		"schedule_id", scheduleID,
		"seat_id", seatID,
		"available", available,
	)

	return nil
}
