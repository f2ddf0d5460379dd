// Package main runs the Kassandra API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	app "github.com/kassandra-hq/kassandra/internal/app"
	"github.com/kassandra-hq/kassandra/internal/app/httpapi"
	"github.com/kassandra-hq/kassandra/internal/app/storage/postgres"
	"github.com/kassandra-hq/kassandra/internal/config"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides KASSANDRA_CONFIG)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "kassandra: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging, "kassandra")

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			time.Duration(cfg.Database.ConnMaxLifetime)*time.Second,
		)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := postgres.Migrate(db); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			log.Info("database migrations applied")
		}

		store := postgres.New(db)
		stores = app.Stores{
			Users:    store,
			Sessions: store,
			Groups:   store,
			Products: store,
			ACL:      store,
			Versions: store,
			Features: store,
			Sprints:  store,
			Tasks:    store,
			Activity: store,
		}
		log.Info("using postgres store")
	} else {
		log.Warn("no database configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.WithField("addr", cfg.Redis.Addr).Info("redis session cache enabled")
	}

	application, err := app.New(cfg, stores, redisClient, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.NewRouter(application, cfg, log.WithField("component", "http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application shutdown")
	}
	log.Info("kassandra stopped")
	return nil
}
