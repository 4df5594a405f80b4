package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/repository"
)

type BookingRepo struct {
	pool  *pgxpool.Pool
	store *Store
	db    DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CreateBooking inserts the booking and flips its seats to unavailable in one
// transaction. If any seat row is missing or already taken the whole insert
// rolls back with repository.ErrConflict, mirroring the in-memory claim.
func (r *BookingRepo) CreateBooking(ctx context.Context, rec domain.BookingRecord) error {
	const op = "postgresrepo.BookingRepo.CreateBooking"

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bookings(
			     id, reservation_id, customer_id, schedule_id, route_id,
			     seat_class, seat_ids, status, paid, total_cents, promo_code, created_at
			 )
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.ReservationID, rec.CustomerID, rec.ScheduleID, rec.RouteID,
			rec.SeatClass, rec.SeatIDs, rec.Status, rec.Paid, rec.TotalCents, rec.PromoCode, rec.CreatedAt,
		); err != nil {
			return wrapDBErr(op, err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE seats
			 SET available = FALSE
			 WHERE schedule_id = $1 AND id = ANY($2) AND available`,
			rec.ScheduleID, rec.SeatIDs,
		)
		if err != nil {
			return wrapDBErr(op, err)
		}

		if int(tag.RowsAffected()) != len(rec.SeatIDs) {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// UpdateBooking persists a status, paid-flag or total change.
func (r *BookingRepo) UpdateBooking(ctx context.Context, rec domain.BookingRecord) error {
	const op = "postgresrepo.BookingRepo.UpdateBooking"

	return r.updateBookingCore(ctx, r.handle(), op, rec)
}

// SavePayment upserts the payment row and the owning booking's paid state in
// one transaction, so a confirmed payment and its booking never diverge.
func (r *BookingRepo) SavePayment(
	ctx context.Context,
	pay domain.PaymentRecord,
	rec domain.BookingRecord,
) error {
	const op = "postgresrepo.BookingRepo.SavePayment"

	return r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := r.upsertPaymentCore(ctx, tx, op, pay); err != nil {
			return err
		}

		return r.updateBookingCore(ctx, tx, op, rec)
	})
}

// SaveCancellation writes the cancelled booking, releases its seat rows and,
// when a payment snapshot is supplied, records the refund or abort — all in
// one transaction.
func (r *BookingRepo) SaveCancellation(
	ctx context.Context,
	rec domain.BookingRecord,
	payment *domain.PaymentRecord,
) error {
	const op = "postgresrepo.BookingRepo.SaveCancellation"

	return r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := r.updateBookingCore(ctx, tx, op, rec); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE seats SET available = TRUE
			 WHERE schedule_id = $1 AND id = ANY($2)`,
			rec.ScheduleID, rec.SeatIDs,
		); err != nil {
			return wrapDBErr(op, err)
		}

		if payment != nil {
			if err := r.upsertPaymentCore(ctx, tx, op, *payment); err != nil {
				return err
			}
		}

		return nil
	})
}

// UpdateSeatAvailability flips the given seat rows, for staff seat
// maintenance.
func (r *BookingRepo) UpdateSeatAvailability(
	ctx context.Context,
	scheduleID string,
	seatIDs []string,
	available bool,
) error {
	const op = "postgresrepo.BookingRepo.UpdateSeatAvailability"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE seats
		 SET available = $3
		 WHERE schedule_id = $1 AND id = ANY($2)`,
		scheduleID, seatIDs, available,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if int(tag.RowsAffected()) != len(seatIDs) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) updateBookingCore(ctx context.Context, db DB, op string, rec domain.BookingRecord) error {
	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET status = $2, paid = $3, total_cents = $4, promo_code = $5
		 WHERE id = $1`,
		rec.ID, rec.Status, rec.Paid, rec.TotalCents, rec.PromoCode,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) upsertPaymentCore(ctx context.Context, db DB, op string, pay domain.PaymentRecord) error {
	if _, err := db.Exec(ctx,
		`INSERT INTO payments(id, booking_id, amount_cents, method, status, confirmed_at, refunded_cents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status,
		     confirmed_at = EXCLUDED.confirmed_at,
		     refunded_cents = EXCLUDED.refunded_cents`,
		pay.ID, pay.BookingID, pay.AmountCents, pay.Method, pay.Status, pay.ConfirmedAt, pay.RefundedCents,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
