// Package bootstrap provides dependency initialization for the portal listings API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/maauso/portal-listings/internal/config"
	"github.com/maauso/portal-listings/internal/listing"
	"github.com/maauso/portal-listings/internal/portal"
	"github.com/maauso/portal-listings/internal/viewstate"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Listings *listing.Service
	Store    viewstate.Store

	closers []io.Closer
}

// Close releases resources held by the state backend.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &Dependencies{}

	// Initialize view state store
	store, err := initStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	if c, ok := store.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}

	// Initialize portal backend client
	backend, err := portal.NewClient(cfg.PortalBaseURL,
		portal.WithTimeout(cfg.FetchTimeout),
		portal.WithMaxRetries(cfg.PortalMaxRetries),
		portal.WithRateLimit(cfg.PortalRateLimit, cfg.PortalRateBurst),
	)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("create portal client: %w", err)
	}

	deps.Listings = listing.NewService(backend, store, logger,
		listing.WithFetchTimeout(cfg.FetchTimeout),
		listing.WithConfirmDelay(cfg.ConfirmDelay),
	)
	return deps, nil
}

// initStore creates the view state backend selected by STATE_BACKEND.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (viewstate.Store, error) {
	switch cfg.StateBackend {
	case config.StateBackendFile:
		store, err := viewstate.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("create file state store: %w", err)
		}
		logger.Info("file state store configured",
			slog.String("dir", store.Dir()),
		)
		return store, nil

	case config.StateBackendSQLite:
		store, err := viewstate.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("create sqlite state store: %w", err)
		}
		logger.Info("sqlite state store configured",
			slog.String("path", cfg.SQLitePath),
		)
		return store, nil

	case config.StateBackendRedis:
		rdb, err := viewstate.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("create redis state store: %w", err)
		}
		logger.Info("redis state store configured")
		return viewstate.NewRedisStore(rdb), nil

	case config.StateBackendS3:
		store, err := viewstate.NewS3Store(ctx, viewstate.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          "viewstate/",
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 state store: %w", err)
		}
		logger.Info("S3 state store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return store, nil

	default:
		logger.Info("memory state store configured")
		return viewstate.NewMemoryStore(), nil
	}
}
