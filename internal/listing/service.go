package listing

import (
	"context"
	"log/slog"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/portal"
	"github.com/maauso/portal-listings/internal/session"
	"github.com/maauso/portal-listings/internal/viewstate"
)

// Service mounts listing controllers against a shared backend and state
// store.
type Service struct {
	backend portal.Client
	store   viewstate.Store
	logger  *slog.Logger
	opts    []Option
}

// NewService creates a new Service. opts are applied to every controller it
// opens.
func NewService(backend portal.Client, store viewstate.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		store:   store,
		logger:  logger,
		opts:    opts,
	}
}

// Open mounts a controller: it restores the persisted view state and fetches
// the collection. Only construction errors are returned; a failed fetch is
// reported through the snapshot. The caller must Close the controller.
func (s *Service) Open(ctx context.Context, sess session.Session, kind entity.Type, view View) (*Controller, error) {
	c, err := NewController(kind, view, sess, s.backend, s.store, s.logger, s.opts...)
	if err != nil {
		return nil, err
	}
	_ = c.Load(ctx)
	return c, nil
}

// Mount creates a controller and restores its view state without fetching.
// Used by state-only mutations that do not render items.
func (s *Service) Mount(ctx context.Context, sess session.Session, kind entity.Type, view View) (*Controller, error) {
	c, err := NewController(kind, view, sess, s.backend, s.store, s.logger, s.opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Restore(ctx); err != nil {
		s.logger.Warn("view state restore failed, using defaults",
			slog.String("kind", string(kind)),
			slog.String("view", string(view)),
			slog.String("error", err.Error()),
		)
	}
	return c, nil
}
