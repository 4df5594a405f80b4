package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/inventory"
)

type fakeSource struct {
	schedules map[string]*domain.Schedule
}

func (f *fakeSource) LoadSchedule(_ context.Context, id string) (*domain.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func testSchedule(seatCount int) *domain.Schedule {
	departure := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		ID:        "sch-1",
		RouteID:   "rt-1",
		Date:      departure.Truncate(24 * time.Hour),
		Departure: departure,
		Arrival:   departure.Add(5 * time.Hour),
		SeatClass: domain.ClassBusiness,
		ClassPct:  150,
		Route: &domain.Route{
			ID:             "rt-1",
			Source:         "Dhaka",
			Destination:    "Chittagong",
			BasePriceCents: 1000,
		},
	}
	for i := 1; i <= seatCount; i++ {
		sched.Seats = append(sched.Seats, domain.Seat{
			ID:        fmt.Sprintf("A%d", i),
			Class:     domain.ClassBusiness,
			Available: i%2 == 1, // odd seats free
		})
	}
	return sched
}

func newService(seatCount int) (*Service, *inventory.Inventory) {
	inv := inventory.New()
	source := &fakeSource{schedules: map[string]*domain.Schedule{
		"sch-1": testSchedule(seatCount),
	}}
	return New(nil, source, inv, nil), inv
}

func TestGetSchedule(t *testing.T) {
	svc, _ := newService(4)

	sum, err := svc.GetSchedule(context.Background(), "sch-1")
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}

	if sum.Source != "Dhaka" || sum.Destination != "Chittagong" {
		t.Fatalf("route endpoints = %s -> %s", sum.Source, sum.Destination)
	}
	if sum.ClassPriceCents != 1500 {
		t.Fatalf("class price = %d, want 1500", sum.ClassPriceCents)
	}
	if sum.Counts.Total != 4 || sum.Counts.Available != 2 {
		t.Fatalf("counts = %+v, want 2/4 available", sum.Counts)
	}
}

func TestGetScheduleNotFound(t *testing.T) {
	svc, _ := newService(1)

	if _, err := svc.GetSchedule(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCountsPrefersResidentInventory(t *testing.T) {
	svc, inv := newService(4)

	// Provision the inventory with everything free, diverging from the
	// source's 2-of-4 snapshot.
	sched := testSchedule(4)
	for i := range sched.Seats {
		sched.Seats[i].Available = true
	}
	inv.Load(sched)

	counts, err := svc.Counts(context.Background(), "sch-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Available != 4 {
		t.Fatalf("available = %d, want inventory's 4", counts.Available)
	}
}

func TestListSeatsPagination(t *testing.T) {
	svc, _ := newService(5)

	page, err := svc.ListSeats(context.Background(), "sch-1", false, 2, 2)
	if err != nil {
		t.Fatalf("ListSeats: %v", err)
	}

	if page.Total != 5 {
		t.Fatalf("total = %d, want 5", page.Total)
	}
	if len(page.Seats) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Seats))
	}
	if page.Seats[0].ID != "A3" || page.Seats[1].ID != "A4" {
		t.Fatalf("page 2 = %s,%s, want A3,A4", page.Seats[0].ID, page.Seats[1].ID)
	}
}

func TestListSeatsPastEndIsEmpty(t *testing.T) {
	svc, _ := newService(3)

	page, err := svc.ListSeats(context.Background(), "sch-1", false, 9, 10)
	if err != nil {
		t.Fatalf("ListSeats: %v", err)
	}
	if len(page.Seats) != 0 {
		t.Fatalf("page size = %d, want 0", len(page.Seats))
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
}

func TestListSeatsOnlyAvailable(t *testing.T) {
	svc, _ := newService(4)

	page, err := svc.ListSeats(context.Background(), "sch-1", true, 1, 10)
	if err != nil {
		t.Fatalf("ListSeats: %v", err)
	}

	if page.Total != 2 {
		t.Fatalf("total = %d, want 2 available", page.Total)
	}
	for _, s := range page.Seats {
		if !s.Available {
			t.Fatalf("seat %s in available-only listing is taken", s.ID)
		}
	}
}

func TestListSeatsClampsPageSize(t *testing.T) {
	svc, _ := newService(2)

	page, err := svc.ListSeats(context.Background(), "sch-1", false, 0, -5)
	if err != nil {
		t.Fatalf("ListSeats: %v", err)
	}
	if page.Page != 1 || page.PerPage != defaultPageSize {
		t.Fatalf("page = %d size = %d, want 1/%d", page.Page, page.PerPage, defaultPageSize)
	}
}
