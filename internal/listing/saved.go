package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/maauso/portal-listings/internal/entity"
)

var (
	// ErrNoUser is returned when an operation needs a user id the session
	// does not carry.
	ErrNoUser = errors.New("listing: no user in session")
	// ErrToggleInFlight is returned when a save toggle for the same entity
	// has not finished yet.
	ErrToggleInFlight = errors.New("listing: save toggle already in flight")
)

// SavedSet is the set of entity ids the user has saved.
type SavedSet map[string]struct{}

// NewSavedSet builds a set from ids.
func NewSavedSet(ids ...string) SavedSet {
	s := make(SavedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s SavedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in sorted order.
func (s SavedSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Notice is the transient confirmation shown after a save toggle.
type Notice struct {
	EntityID string    `json:"entity_id"`
	Saved    bool      `json:"saved"`
	Message  string    `json:"message"`
	ShownAt  time.Time `json:"shown_at"`
}

// NoticeMessage returns the confirmation text for a save toggle.
func NoticeMessage(t entity.Type, saved bool) string {
	if saved {
		return t.Title() + " saved successfully"
	}
	return t.Title() + " removed from saved"
}

// ToggleSave flips the saved membership of id against the backend. The
// local set changes only after the backend accepts the request; a failure
// leaves it untouched. It returns the new membership.
func (c *Controller) ToggleSave(ctx context.Context, id string) (bool, error) {
	if !c.sess.HasUser() {
		c.logger.Info("save toggle ignored: no user in session",
			slog.String("kind", string(c.kind)),
			slog.String("entity_id", id),
		)
		return false, ErrNoUser
	}

	c.mu.Lock()
	if _, busy := c.inFlight[id]; busy {
		saved := c.saved.Has(id)
		c.mu.Unlock()
		return saved, ErrToggleInFlight
	}
	c.inFlight[id] = struct{}{}
	wasSaved := c.saved.Has(id)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}()

	submit := func(ctx context.Context) error {
		ctx = c.backendContext(ctx)
		if wasSaved {
			return c.backend.Unsave(ctx, c.kind, id)
		}
		return c.backend.Save(ctx, c.kind, id)
	}

	var notice *Notice
	confirm := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if wasSaved {
			delete(c.saved, id)
			if c.view == ViewSaved {
				c.raw = slices.DeleteFunc(c.raw, func(e entity.Entity) bool { return e.ID == id })
				c.recompute()
			}
		} else {
			c.saved[id] = struct{}{}
		}
		notice = &Notice{
			EntityID: id,
			Saved:    !wasSaved,
			Message:  NoticeMessage(c.kind, !wasSaved),
			ShownAt:  c.now(),
		}
		c.notice = notice
	}
	finish := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.notice == notice {
			c.notice = nil
		}
	}

	seq := sequence{delay: c.confirmDelay, observe: c.observePhase}
	terminal, err := seq.run(ctx, c.lifetime, submit, confirm, finish)
	if err != nil {
		c.logger.Error("save toggle failed",
			slog.String("kind", string(c.kind)),
			slog.String("entity_id", id),
			slog.Bool("was_saved", wasSaved),
			slog.String("error", err.Error()),
		)
		return wasSaved, fmt.Errorf("listing: toggle %s %s: %w", c.kind, id, err)
	}

	c.mu.Lock()
	c.lastConfirm = terminal
	c.mu.Unlock()

	c.logger.Info("save toggled",
		slog.String("kind", string(c.kind)),
		slog.String("entity_id", id),
		slog.Bool("saved", !wasSaved),
	)
	return !wasSaved, nil
}

// RefreshSaved replaces the local saved set with the backend's.
func (c *Controller) RefreshSaved(ctx context.Context) error {
	if !c.sess.HasUser() {
		return ErrNoUser
	}
	ids, err := c.backend.SavedIDs(c.backendContext(ctx), c.kind, c.sess.UserID)
	if err != nil {
		return fmt.Errorf("listing: refresh saved %s: %w", c.kind.Plural(), err)
	}
	c.mu.Lock()
	c.saved = NewSavedSet(ids...)
	c.mu.Unlock()
	return nil
}
