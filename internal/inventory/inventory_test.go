package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/transitfare/fare-go/internal/domain"
)

func loadedInventory(t *testing.T, scheduleID string, seatCount int) *Inventory {
	t.Helper()

	sched := &domain.Schedule{ID: scheduleID}
	for i := 1; i <= seatCount; i++ {
		sched.Seats = append(sched.Seats, domain.Seat{
			ID:        fmt.Sprintf("A%d", i),
			Class:     domain.ClassEconomy,
			Available: true,
		})
	}

	inv := New()
	inv.Load(sched)
	return inv
}

func TestClaimFlipsAllSeats(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 4)

	if err := inv.Claim(context.Background(), "sch-1", []string{"A1", "A2"}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	counts, err := inv.Counts("sch-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Taken != 2 || counts.Available != 2 || counts.Total != 4 {
		t.Fatalf("counts = %+v, want 2 taken / 2 available / 4 total", counts)
	}
}

func TestClaimIsAllOrNothing(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 3)

	if err := inv.Claim(context.Background(), "sch-1", []string{"A1"}); err != nil {
		t.Fatalf("Claim A1: %v", err)
	}

	err := inv.Claim(context.Background(), "sch-1", []string{"A2", "A1"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("overlapping claim err = %v, want ErrConflict", err)
	}

	// A2 must be untouched by the failed claim.
	if err := inv.Claim(context.Background(), "sch-1", []string{"A2"}); err != nil {
		t.Fatalf("Claim A2 after failed overlap: %v", err)
	}
}

func TestClaimUnknownSeat(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 2)

	err := inv.Claim(context.Background(), "sch-1", []string{"A1", "Z9"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	counts, _ := inv.Counts("sch-1")
	if counts.Taken != 0 {
		t.Fatalf("taken = %d after failed claim, want 0", counts.Taken)
	}
}

func TestClaimRejectsRepeatedSeat(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 2)

	err := inv.Claim(context.Background(), "sch-1", []string{"A1", "A1"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	counts, _ := inv.Counts("sch-1")
	if counts.Taken != 0 {
		t.Fatalf("taken = %d after rejected claim, want 0", counts.Taken)
	}

	// The seat stays claimable once requested exactly once.
	if err := inv.Claim(context.Background(), "sch-1", []string{"A1"}); err != nil {
		t.Fatalf("Claim A1: %v", err)
	}
}

func TestClaimEmptySelection(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 2)

	err := inv.Claim(context.Background(), "sch-1", nil)
	if !errors.Is(err, domain.ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
}

func TestClaimUnknownSchedule(t *testing.T) {
	inv := New()

	err := inv.Claim(context.Background(), "nope", []string{"A1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentClaimsSameSeatOneWinner(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 1)

	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = inv.Claim(context.Background(), "sch-1", []string{"A1"})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestConcurrentDisjointClaimsAllSucceed(t *testing.T) {
	const workers = 8

	inv := loadedInventory(t, "sch-1", workers)

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = inv.Claim(context.Background(), "sch-1", []string{fmt.Sprintf("A%d", i+1)})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	counts, _ := inv.Counts("sch-1")
	if counts.Available != 0 {
		t.Fatalf("available = %d, want 0", counts.Available)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 2)

	if err := inv.Claim(context.Background(), "sch-1", []string{"A1", "A2"}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := inv.Release(context.Background(), "sch-1", []string{"A1", "A2"}); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}

	counts, _ := inv.Counts("sch-1")
	if counts.Available != 2 {
		t.Fatalf("available = %d, want 2", counts.Available)
	}
}

func TestReleaseUnknownSeat(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 1)

	err := inv.Release(context.Background(), "sch-1", []string{"Z9"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClaimHonorsContextDeadline(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 1)

	// Occupy the claim gate so the next claim has to wait.
	ss, err := inv.lookup("sch-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := ss.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer ss.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := inv.Claim(ctx, "sch-1", []string{"A1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestSetAvailability(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 2)

	if err := inv.SetAvailability(context.Background(), "sch-1", "A1", false); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}

	err := inv.Claim(context.Background(), "sch-1", []string{"A1"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("claim blocked seat err = %v, want ErrConflict", err)
	}

	if err := inv.SetAvailability(context.Background(), "sch-1", "A1", true); err != nil {
		t.Fatalf("SetAvailability back: %v", err)
	}
	if err := inv.Claim(context.Background(), "sch-1", []string{"A1"}); err != nil {
		t.Fatalf("claim after unblock: %v", err)
	}
}

func TestSnapshotKeepsOrderAndIsolation(t *testing.T) {
	inv := loadedInventory(t, "sch-1", 3)

	snap, err := inv.Snapshot("sch-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	for i, seat := range snap {
		want := fmt.Sprintf("A%d", i+1)
		if seat.ID != want {
			t.Fatalf("snap[%d].ID = %s, want %s", i, seat.ID, want)
		}
	}

	// Mutating the snapshot must not leak back.
	snap[0].Available = false
	fresh, _ := inv.Snapshot("sch-1")
	if !fresh[0].Available {
		t.Fatal("snapshot mutation leaked into inventory")
	}
}
