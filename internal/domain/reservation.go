package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Reservation binds a schedule, its route, a seat class and the claimed seat
// identifiers. It is constructed only after a successful seat claim and is
// immutable from then on; all state lives behind accessors.
type Reservation struct {
	id         uuid.UUID
	scheduleID string
	routeID    string
	seatClass  SeatClass
	seatIDs    []string
}

// NewReservation builds a reservation over already-claimed seats.
func NewReservation(scheduleID, routeID string, class SeatClass, seatIDs []string) (*Reservation, error) {
	const op = "domain.NewReservation"

	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySelection)
	}

	ids := make([]string, len(seatIDs))
	copy(ids, seatIDs)

	return &Reservation{
		id:         uuid.New(),
		scheduleID: scheduleID,
		routeID:    routeID,
		seatClass:  class,
		seatIDs:    ids,
	}, nil
}

func (r *Reservation) ID() uuid.UUID        { return r.id }
func (r *Reservation) ScheduleID() string   { return r.scheduleID }
func (r *Reservation) RouteID() string      { return r.routeID }
func (r *Reservation) SeatClass() SeatClass { return r.seatClass }

// SeatIDs returns a copy so callers cannot mutate the claimed set.
func (r *Reservation) SeatIDs() []string {
	ids := make([]string, len(r.seatIDs))
	copy(ids, r.seatIDs)
	return ids
}
