// Package promo keeps the promotional-code registry. Codes are matched
// case-insensitively and are never auto-deleted on expiry so reporting keeps
// their history.
package promo

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/pricing"
)

type Registry struct {
	mu    sync.RWMutex
	codes map[string]domain.PromotionalCode
	now   func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		codes: make(map[string]domain.PromotionalCode),
		now:   now,
	}
}

// Add registers a code, rejecting case-insensitive duplicates.
func (r *Registry) Add(code domain.PromotionalCode) error {
	const op = "promo.Registry.Add"

	if code.DiscountPct <= 0 || code.DiscountPct > 100 {
		return fmt.Errorf("%s: discount pct %d out of range", op, code.DiscountPct)
	}

	key := normalize(code.Code)
	if key == "" {
		return fmt.Errorf("%s: empty code", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[key]; ok {
		return fmt.Errorf("%s: %s: %w", op, key, domain.ErrDuplicateCode)
	}

	r.codes[key] = code
	return nil
}

// Validate reports whether the code exists, is active and has not expired.
func (r *Registry) Validate(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codes[normalize(code)]
	return ok && r.usable(c)
}

// Redeem applies the code's discount to the amount. An unusable code returns
// the amount unchanged together with ErrInvalidPromo so the caller decides
// whether to proceed at full price or abort.
func (r *Registry) Redeem(code string, amountCents int64) (int64, error) {
	const op = "promo.Registry.Redeem"

	r.mu.RLock()
	c, ok := r.codes[normalize(code)]
	r.mu.RUnlock()

	if !ok || !r.usable(c) {
		return amountCents, fmt.Errorf("%s: %s: %w", op, code, domain.ErrInvalidPromo)
	}

	return pricing.Discount(amountCents, c.DiscountPct), nil
}

// Remove drops a code from the registry. Removing an unknown code is a no-op.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	delete(r.codes, normalize(code))
	r.mu.Unlock()
}

// Get returns the stored code regardless of usability, for reporting.
func (r *Registry) Get(code string) (domain.PromotionalCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codes[normalize(code)]
	return c, ok
}

// Replace swaps the registry contents, used by the catalog refresh job.
func (r *Registry) Replace(codes []domain.PromotionalCode) error {
	const op = "promo.Registry.Replace"

	next := NewRegistry(r.now)
	for _, c := range codes {
		if err := next.Add(c); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	r.mu.Lock()
	r.codes = next.codes
	r.mu.Unlock()

	return nil
}

// usable means active and today not past the expiry date. Expiry is compared
// at calendar-day granularity, each timestamp on its own wall clock: a code
// expiring today still works all day.
func (r *Registry) usable(c domain.PromotionalCode) bool {
	if !c.Active {
		return false
	}

	ny, nm, nd := r.now().Date()
	ey, em, ed := c.ExpiresAt.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return !today.After(expiry)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
