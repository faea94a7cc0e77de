package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/services/jobs"
	"github.com/jobtrackhq/jobtrack/internal/app/services/users"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/internal/app/storage/memory"
	"github.com/jobtrackhq/jobtrack/internal/app/system"
	"github.com/jobtrackhq/jobtrack/internal/auth"
	"github.com/jobtrackhq/jobtrack/internal/realtime"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users storage.UserStore
	Jobs  storage.JobStore
}

// Config carries the application-level knobs; transport concerns live in
// httpapi.Options.
type Config struct {
	TokenSecret string
	TokenTTL    time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users *users.Service
	Jobs  *jobs.Service

	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	Registry *realtime.Registry
	Notifier *realtime.Notifier
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Jobs == nil {
		stores.Jobs = mem
	}

	manager := system.NewManager()

	issuer := auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)
	verifier := auth.NewVerifier(cfg.TokenSecret, stores.Users)

	registry := realtime.NewRegistry(verifier, log)
	notifier := realtime.NewNotifier(registry, log)

	userService := users.New(stores.Users, issuer, log)
	jobService := jobs.New(stores.Jobs, notifier, log)

	for _, name := range []string{"users", "jobs", "realtime"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Users:    userService,
		Jobs:     jobService,
		Issuer:   issuer,
		Verifier: verifier,
		Registry: registry,
		Notifier: notifier,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
