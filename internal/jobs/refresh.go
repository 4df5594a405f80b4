// Package jobs runs the background catalog refresh that keeps the live
// policy table and promo registry in step with storage.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/transitfare/fare-go/internal/service/booking"
)

const refreshTimeout = 30 * time.Second

type Scheduler struct {
	log  *slog.Logger
	cron *cron.Cron
}

// NewScheduler registers the catalog refresh on the given cron spec
// ("@every 5m" style specs are accepted).
func NewScheduler(log *slog.Logger, svc *booking.Service, spec string) (*Scheduler, error) {
	const op = "jobs.NewScheduler"

	if log == nil {
		log = slog.Default()
	}

	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := svc.RefreshCatalog(ctx); err != nil {
			log.Error("catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, spec, err)
	}

	return &Scheduler{log: log, cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("catalog refresh scheduler started")
}

// Stop halts scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("catalog refresh scheduler stopped")
}
