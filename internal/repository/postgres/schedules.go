package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitfare/fare-go/internal/domain"
)

type ScheduleRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ScheduleRepo) With(db DB) *ScheduleRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ScheduleRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// LoadSchedule returns the schedule with its route and full seat set, which
// is what the engine needs before any booking operation.
//
// Returns repository.ErrNotFound when the schedule does not exist.
func (r *ScheduleRepo) LoadSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.LoadSchedule"

	db := r.handle()

	s := &domain.Schedule{ID: id, Route: &domain.Route{}}

	if err := db.QueryRow(ctx,
		`SELECT s.route_id, s.date, s.departure, s.arrival, s.seat_class, s.class_pct,
		        r.source, r.destination, r.base_price_cents
		 FROM schedules s
		 JOIN routes r ON r.id = s.route_id
		 WHERE s.id = $1`,
		id,
	).Scan(
		&s.RouteID, &s.Date, &s.Departure, &s.Arrival, &s.SeatClass, &s.ClassPct,
		&s.Route.Source, &s.Route.Destination, &s.Route.BasePriceCents,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	s.Route.ID = s.RouteID

	rows, err := db.Query(ctx,
		`SELECT id, class, adjustment_cents, available
		 FROM seats
		 WHERE schedule_id = $1
		 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.ID, &seat.Class, &seat.AdjustmentCents, &seat.Available); err != nil {
			return nil, wrapDBErr(op, err)
		}
		s.Seats = append(s.Seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// LoadRoute returns a single route.
func (r *ScheduleRepo) LoadRoute(ctx context.Context, id string) (*domain.Route, error) {
	const op = "postgresrepo.ScheduleRepo.LoadRoute"

	db := r.handle()

	rt := &domain.Route{ID: id}
	if err := db.QueryRow(ctx,
		`SELECT source, destination, base_price_cents FROM routes WHERE id = $1`,
		id,
	).Scan(&rt.Source, &rt.Destination, &rt.BasePriceCents); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return rt, nil
}
