// Package inventory tracks per-schedule seat availability and serializes
// claims so two customers racing for the same seat never both win. Claims are
// atomic across the requested set: either every seat flips to unavailable or
// none does.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/transitfare/fare-go/internal/domain"
)

type Inventory struct {
	mu        sync.RWMutex
	schedules map[string]*scheduleSeats
}

type scheduleSeats struct {
	// gate bounds waiting for the claim critical section so a caller's
	// deadline is honored instead of queueing indefinitely on a mutex.
	gate  chan struct{}
	mu    sync.RWMutex
	seats map[string]*domain.Seat
	order []string
}

func New() *Inventory {
	return &Inventory{schedules: make(map[string]*scheduleSeats)}
}

// Load provisions (or re-provisions) the seat set for a schedule from the
// schedule source. Seat values are copied; callers keep ownership of the
// input.
func (inv *Inventory) Load(s *domain.Schedule) {
	ss := &scheduleSeats{
		gate:  make(chan struct{}, 1),
		seats: make(map[string]*domain.Seat, len(s.Seats)),
		order: make([]string, 0, len(s.Seats)),
	}

	for i := range s.Seats {
		seat := s.Seats[i]
		ss.seats[seat.ID] = &seat
		ss.order = append(ss.order, seat.ID)
	}

	inv.mu.Lock()
	inv.schedules[s.ID] = ss
	inv.mu.Unlock()
}

// Loaded reports whether the schedule's seats are provisioned.
func (inv *Inventory) Loaded(scheduleID string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	_, ok := inv.schedules[scheduleID]
	return ok
}

// Claim atomically flips every requested seat from available to unavailable.
// Unknown seats yield ErrNotFound; an already-claimed seat, or the same seat
// listed twice in one request, yields ErrConflict. In every failure case no
// seat is touched. Contention is bounded by the caller's context deadline.
func (inv *Inventory) Claim(ctx context.Context, scheduleID string, seatIDs []string) error {
	const op = "inventory.Inventory.Claim"

	if len(seatIDs) == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptySelection)
	}

	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: seat %s requested twice: %w", op, id, domain.ErrConflict)
		}
		seen[id] = struct{}{}
	}

	ss, err := inv.lookup(scheduleID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := ss.acquire(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer ss.release()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	for _, id := range seatIDs {
		seat, ok := ss.seats[id]
		if !ok {
			return fmt.Errorf("%s: seat %s: %w", op, id, domain.ErrNotFound)
		}
		if !seat.Available {
			return fmt.Errorf("%s: seat %s: %w", op, id, domain.ErrConflict)
		}
	}

	for _, id := range seatIDs {
		ss.seats[id].Available = false
	}

	return nil
}

// Release marks the seats available again. Releasing a seat that is already
// available is a no-op, so cancellation paths can retry safely without
// double-releasing.
func (inv *Inventory) Release(ctx context.Context, scheduleID string, seatIDs []string) error {
	const op = "inventory.Inventory.Release"

	ss, err := inv.lookup(scheduleID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := ss.acquire(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer ss.release()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	for _, id := range seatIDs {
		if _, ok := ss.seats[id]; !ok {
			return fmt.Errorf("%s: seat %s: %w", op, id, domain.ErrNotFound)
		}
	}

	for _, id := range seatIDs {
		ss.seats[id].Available = true
	}

	return nil
}

// SetAvailability force-sets one seat's state, for staff maintenance.
func (inv *Inventory) SetAvailability(ctx context.Context, scheduleID, seatID string, available bool) error {
	const op = "inventory.Inventory.SetAvailability"

	ss, err := inv.lookup(scheduleID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := ss.acquire(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer ss.release()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	seat, ok := ss.seats[seatID]
	if !ok {
		return fmt.Errorf("%s: seat %s: %w", op, seatID, domain.ErrNotFound)
	}

	seat.Available = available
	return nil
}

// Snapshot returns the schedule's seats in provisioning order.
func (inv *Inventory) Snapshot(scheduleID string) ([]domain.Seat, error) {
	const op = "inventory.Inventory.Snapshot"

	ss, err := inv.lookup(scheduleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ss.mu.RLock()
	defer ss.mu.RUnlock()

	out := make([]domain.Seat, 0, len(ss.order))
	for _, id := range ss.order {
		out = append(out, *ss.seats[id])
	}

	return out, nil
}

// Counts summarizes availability for a schedule.
func (inv *Inventory) Counts(scheduleID string) (domain.SeatCounts, error) {
	const op = "inventory.Inventory.Counts"

	seats, err := inv.Snapshot(scheduleID)
	if err != nil {
		return domain.SeatCounts{}, fmt.Errorf("%s: %w", op, err)
	}

	var c domain.SeatCounts
	c.Total = len(seats)
	for _, s := range seats {
		if s.Available {
			c.Available++
		} else {
			c.Taken++
		}
	}

	return c, nil
}

func (inv *Inventory) lookup(scheduleID string) (*scheduleSeats, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	ss, ok := inv.schedules[scheduleID]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, domain.ErrNotFound)
	}

	return ss, nil
}

func (ss *scheduleSeats) acquire(ctx context.Context) error {
	select {
	case ss.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ss *scheduleSeats) release() {
	<-ss.gate
}
