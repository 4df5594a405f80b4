package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitfare/fare-go/internal/domain"
)

type CatalogRepo struct {
	pool  *pgxpool.Pool
	store *Store
	db    DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) CreateRoute(ctx context.Context, rt domain.Route) error {
	const op = "postgresrepo.CatalogRepo.CreateRoute"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO routes(id, source, destination, base_price_cents)
		 VALUES ($1, $2, $3, $4)`,
		rt.ID, rt.Source, rt.Destination, rt.BasePriceCents,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// CreateSchedule inserts the schedule and provisions its seat rows in one
// transaction.
func (r *CatalogRepo) CreateSchedule(ctx context.Context, s domain.Schedule) error {
	const op = "postgresrepo.CatalogRepo.CreateSchedule"

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO schedules(id, route_id, date, departure, arrival, seat_class, class_pct)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, s.RouteID, s.Date, s.Departure, s.Arrival, s.SeatClass, s.ClassPct,
		); err != nil {
			return wrapDBErr(op, err)
		}

		batch := &pgx.Batch{}
		for _, seat := range s.Seats {
			batch.Queue(
				`INSERT INTO seats(schedule_id, id, class, adjustment_cents, available)
				 VALUES ($1, $2, $3, $4, $5)`,
				s.ID, seat.ID, seat.Class, seat.AdjustmentCents, seat.Available,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrapDBErr(op, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddPolicy inserts a cancellation policy. The unique index on hours_before
// turns threshold collisions into repository.ErrConflict.
func (r *CatalogRepo) AddPolicy(ctx context.Context, p domain.CancellationPolicy) error {
	const op = "postgresrepo.CatalogRepo.AddPolicy"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO cancellation_policies(id, refund_pct, hours_before, description)
		 VALUES ($1, $2, $3, $4)`,
		p.ID, p.RefundPct, p.HoursBefore, p.Description,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// AddPromo inserts a promotional code. Codes are stored uppercased so the
// unique index enforces case-insensitive uniqueness.
func (r *CatalogRepo) AddPromo(ctx context.Context, c domain.PromotionalCode) error {
	const op = "postgresrepo.CatalogRepo.AddPromo"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO promo_codes(code, expires_at, discount_pct, active)
		 VALUES (UPPER($1), $2, $3, $4)`,
		c.Code, c.ExpiresAt, c.DiscountPct, c.Active,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CatalogRepo) LoadCancellationPolicies(ctx context.Context) ([]domain.CancellationPolicy, error) {
	const op = "postgresrepo.CatalogRepo.LoadCancellationPolicies"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, refund_pct, hours_before, description
		 FROM cancellation_policies
		 ORDER BY hours_before DESC`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.CancellationPolicy
	for rows.Next() {
		var p domain.CancellationPolicy
		if err := rows.Scan(&p.ID, &p.RefundPct, &p.HoursBefore, &p.Description); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CatalogRepo) LoadPromotionalCodes(ctx context.Context) ([]domain.PromotionalCode, error) {
	const op = "postgresrepo.CatalogRepo.LoadPromotionalCodes"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT code, expires_at, discount_pct, active FROM promo_codes`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PromotionalCode
	for rows.Next() {
		var c domain.PromotionalCode
		if err := rows.Scan(&c.Code, &c.ExpiresAt, &c.DiscountPct, &c.Active); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
