// Package policy holds the ordered cancellation-policy table. Policies are
// matched by lead time: the most generous rule whose threshold the remaining
// hours still satisfy wins.
package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/transitfare/fare-go/internal/domain"
)

type Table struct {
	mu    sync.RWMutex
	rules []domain.CancellationPolicy // sorted by HoursBefore descending
}

func NewTable(rules ...domain.CancellationPolicy) (*Table, error) {
	t := &Table{}
	for _, r := range rules {
		if err := t.Add(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add registers a policy. A second policy on the same lead-time threshold is
// rejected so the table stays unambiguous.
func (t *Table) Add(rule domain.CancellationPolicy) error {
	const op = "policy.Table.Add"

	if rule.RefundPct < 0 || rule.RefundPct > 100 {
		return fmt.Errorf("%s: refund pct %d out of range", op, rule.RefundPct)
	}

	if rule.HoursBefore < 0 {
		return fmt.Errorf("%s: negative lead-time threshold %d", op, rule.HoursBefore)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.rules {
		if r.HoursBefore == rule.HoursBefore {
			return fmt.Errorf("%s: %dh: %w", op, rule.HoursBefore, domain.ErrDuplicateThreshold)
		}
	}

	t.rules = append(t.rules, rule)
	sort.Slice(t.rules, func(i, j int) bool {
		return t.rules[i].HoursBefore > t.rules[j].HoursBefore
	})

	return nil
}

// Applicable returns the first policy, scanning from the highest threshold
// down, whose threshold is within the given lead time. A negative or too
// small lead time yields ErrNoPolicy; the zero-refund fallback is the
// caller's decision.
func (t *Table) Applicable(hoursBeforeDeparture float64) (domain.CancellationPolicy, error) {
	const op = "policy.Table.Applicable"

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.rules {
		if float64(r.HoursBefore) <= hoursBeforeDeparture {
			return r, nil
		}
	}

	return domain.CancellationPolicy{}, fmt.Errorf("%s: %.1fh: %w", op, hoursBeforeDeparture, domain.ErrNoPolicy)
}

// Replace swaps the whole table, used by the catalog refresh job. Duplicate
// thresholds in the incoming set are rejected and leave the table untouched.
func (t *Table) Replace(rules []domain.CancellationPolicy) error {
	const op = "policy.Table.Replace"

	next, err := NewTable(rules...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t.mu.Lock()
	t.rules = next.rules
	t.mu.Unlock()

	return nil
}

// Rules returns a copy of the table ordered by descending threshold.
func (t *Table) Rules() []domain.CancellationPolicy {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.CancellationPolicy, len(t.rules))
	copy(out, t.rules)
	return out
}
