package pricing

import (
	"testing"

	"github.com/transitfare/fare-go/internal/domain"
)

func TestPriceByClass(t *testing.T) {
	cases := []struct {
		name  string
		base  int64
		class domain.SeatClass
		want  int64
	}{
		{"economy keeps base", 100000, domain.ClassEconomy, 100000},
		{"business is 150 percent", 100000, domain.ClassBusiness, 150000},
		{"first is double", 100000, domain.ClassFirst, 200000},
		{"unknown class falls back to economy", 100000, domain.SeatClass("sleeper"), 100000},
		{"business rounds half up", 333, domain.ClassBusiness, 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Price(tc.base, tc.class); got != tc.want {
				t.Fatalf("Price(%d, %s) = %d, want %d", tc.base, tc.class, got, tc.want)
			}
		})
	}
}

func TestDiscount(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		pct    int
		want   int64
	}{
		{"ten percent off business fare", 150000, 10, 135000},
		{"zero percent is identity", 150000, 0, 150000},
		{"full discount", 150000, 100, 0},
		{"final amount rounds half up", 105, 10, 95},
		{"no rounding needed", 333, 10, 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Discount(tc.amount, tc.pct); got != tc.want {
				t.Fatalf("Discount(%d, %d) = %d, want %d", tc.amount, tc.pct, got, tc.want)
			}
		})
	}
}

func TestPercentageRoundsHalfUp(t *testing.T) {
	// 75% of 999 = 749.25 -> 749; 50% of 999 = 499.5 -> 500.
	if got := Percentage(999, 75); got != 749 {
		t.Fatalf("Percentage(999, 75) = %d, want 749", got)
	}
	if got := Percentage(999, 50); got != 500 {
		t.Fatalf("Percentage(999, 50) = %d, want 500", got)
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0.4, 0},
		{0.5, 1},
		{1.5, 2},
		{2.49, 2},
	}

	for _, tc := range cases {
		if got := RoundHalfUp(tc.in); got != tc.want {
			t.Fatalf("RoundHalfUp(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
