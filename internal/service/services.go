package service

import (
	"log/slog"
	"time"

	"github.com/transitfare/fare-go/internal/inventory"
	"github.com/transitfare/fare-go/internal/policy"
	"github.com/transitfare/fare-go/internal/promo"
	postgresrepo "github.com/transitfare/fare-go/internal/repository/postgres"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
	"github.com/transitfare/fare-go/internal/service/admin"
	"github.com/transitfare/fare-go/internal/service/booking"
	"github.com/transitfare/fare-go/internal/service/query"
)

type Services struct {
	Booking *booking.Service
	Query   *query.Service
	Admin   *admin.Service
}

type Config struct {
	ClaimTimeout time.Duration

	// Now overrides the engine clock, for tests.
	Now func() time.Time
}

// NewServices wires the service layer over one shared inventory, policy table
// and promo registry so the booking and admin sides always see the same
// engine state.
func NewServices(
	logger *slog.Logger,
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	limiter booking.RateLimiter,
	notifier booking.Notifier,
	cfg Config,
) (*Services, error) {
	inv := inventory.New()

	policies, err := policy.NewTable()
	if err != nil {
		return nil, err
	}

	promos := promo.NewRegistry(cfg.Now)

	bookingSvc := booking.New(booking.Config{
		Logger:       logger,
		Source:       store,
		Store:        store,
		Catalog:      store,
		Notifier:     notifier,
		Inventory:    inv,
		Policies:     policies,
		Promos:       promos,
		Cache:        cache,
		Limiter:      limiter,
		ClaimTimeout: cfg.ClaimTimeout,
		Now:          cfg.Now,
	})

	return &Services{
		Booking: bookingSvc,
		Query:   query.New(logger, store, inv, cache),
		Admin:   admin.New(logger, store, inv, policies, promos, cache),
	}, nil
}
