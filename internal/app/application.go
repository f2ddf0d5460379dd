// Package app wires Kassandra's stores and services together and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/kassandra-hq/kassandra/internal/app/services/accounts"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/services/features"
	"github.com/kassandra-hq/kassandra/internal/app/services/groups"
	"github.com/kassandra-hq/kassandra/internal/app/services/products"
	"github.com/kassandra-hq/kassandra/internal/app/services/sprints"
	"github.com/kassandra-hq/kassandra/internal/app/services/tasks"
	"github.com/kassandra-hq/kassandra/internal/app/services/versions"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
	"github.com/kassandra-hq/kassandra/internal/app/system"
	"github.com/kassandra-hq/kassandra/internal/assistant"
	"github.com/kassandra-hq/kassandra/internal/auth"
	"github.com/kassandra-hq/kassandra/internal/config"
	"github.com/kassandra-hq/kassandra/internal/jobs"
	"github.com/kassandra-hq/kassandra/internal/metrics"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation, which keeps tests and local development free of
// a database.
type Stores struct {
	Users    storage.UserStore
	Sessions storage.SessionStore
	Groups   storage.GroupStore
	Products storage.ProductStore
	ACL      storage.ACLStore
	Versions storage.VersionStore
	Features storage.FeatureStore
	Sprints  storage.SprintStore
	Tasks    storage.TaskStore
	Activity storage.ActivityStore
}

func (s *Stores) applyDefaults() {
	mem := memory.New()
	if s.Users == nil {
		s.Users = mem
	}
	if s.Sessions == nil {
		s.Sessions = mem
	}
	if s.Groups == nil {
		s.Groups = mem
	}
	if s.Products == nil {
		s.Products = mem
	}
	if s.ACL == nil {
		s.ACL = mem
	}
	if s.Versions == nil {
		s.Versions = mem
	}
	if s.Features == nil {
		s.Features = mem
	}
	if s.Sprints == nil {
		s.Sprints = mem
	}
	if s.Tasks == nil {
		s.Tasks = mem
	}
	if s.Activity == nil {
		s.Activity = mem
	}
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Metrics  *metrics.Metrics
	Tokens   *auth.Manager
	Sessions *auth.SessionCache

	Authz     *authz.Service
	Accounts  *accounts.Service
	Groups    *groups.Service
	Products  *products.Service
	Versions  *versions.Service
	Features  *features.Service
	Sprints   *sprints.Service
	Tasks     *tasks.Service
	Activity  *activitylog.Service
	Assistant *assistant.Service
}

// New builds a fully initialised application. redisClient may be nil; the
// session cache then reads straight from the store.
func New(cfg *config.Config, stores Stores, redisClient *redis.Client, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(cfg.Logging, "app")
	}
	stores.applyDefaults()

	m := metrics.New()
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	sessions := auth.NewSessionCache(stores.Sessions, redisClient, log.WithField("component", "sessions"))

	authzSvc := authz.New(
		stores.Users, stores.Groups, stores.Products, stores.ACL,
		stores.Versions, stores.Features, stores.Sprints, stores.Tasks,
		m, log.WithField("component", "authz"),
	)
	activitySvc := activitylog.New(stores.Activity, authzSvc, log.WithField("component", "activity"))

	app := &Application{
		manager:  system.NewManager(),
		log:      log,
		Metrics:  m,
		Tokens:   tokens,
		Sessions: sessions,
		Authz:    authzSvc,
		Accounts: accounts.New(stores.Users, sessions, tokens, authzSvc, log.WithField("component", "accounts")),
		Groups:   groups.New(stores.Groups, stores.Users, authzSvc, log.WithField("component", "groups")),
		Products: products.New(stores.Products, stores.ACL, authzSvc, activitySvc, log.WithField("component", "products")),
		Versions: versions.New(stores.Versions, authzSvc, activitySvc, log.WithField("component", "versions")),
		Features: features.New(stores.Features, authzSvc, activitySvc, log.WithField("component", "features")),
		Sprints:  sprints.New(stores.Sprints, authzSvc, activitySvc, log.WithField("component", "sprints")),
		Tasks:    tasks.New(stores.Tasks, stores.Users, authzSvc, activitySvc, log.WithField("component", "tasks")),
		Activity: activitySvc,
	}

	if cfg.Assistant.Enabled {
		registry := assistant.DefaultRegistry(assistant.Services{
			Products: app.Products,
			Versions: app.Versions,
			Features: app.Features,
			Sprints:  app.Sprints,
			Tasks:    app.Tasks,
			Activity: app.Activity,
		})
		app.Assistant = assistant.New(assistant.Config{
			APIKey:        cfg.Assistant.APIKey,
			BaseURL:       cfg.Assistant.BaseURL,
			Model:         cfg.Assistant.Model,
			MaxToolRounds: cfg.Assistant.MaxToolRounds,
		}, registry, m, log.WithField("component", "assistant"))
	} else {
		log.Info("assistant disabled")
	}

	scheduler, err := jobs.New(stores.Sessions, app.Sprints, log.WithField("component", "jobs"))
	if err != nil {
		return nil, fmt.Errorf("build job scheduler: %w", err)
	}
	if err := app.manager.Register(scheduler); err != nil {
		return nil, err
	}

	return app, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
