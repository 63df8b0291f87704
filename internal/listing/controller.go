package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/portal"
	"github.com/maauso/portal-listings/internal/session"
	"github.com/maauso/portal-listings/internal/viewstate"
)

// Static errors for controller operations.
var (
	// ErrNotPermitted is returned when the session role cannot open a view.
	ErrNotPermitted = errors.New("listing: view not permitted for role")
	// ErrEntityNotFound is returned when an id is not in the working set.
	ErrEntityNotFound = errors.New("listing: entity not found")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("listing: controller closed")
	// ErrStaleResult is returned when a fetch finished after a newer fetch
	// started or after Close; its result was discarded.
	ErrStaleResult = errors.New("listing: stale fetch result discarded")
)

// Snapshot is the read-only render model of a controller.
type Snapshot struct {
	Kind       entity.Type     `json:"kind"`
	View       View            `json:"view"`
	State      ViewState       `json:"state"`
	Items      []entity.Entity `json:"items"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	PageSize   int             `json:"page_size"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	SavedIDs   []string        `json:"saved_ids"`
	Notice     *Notice         `json:"notice,omitempty"`
}

// Controller owns the view state, working set and saved-id set of one
// listing. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	kind    entity.Type
	view    View
	sess    session.Session
	backend portal.Client
	persist *Persistence
	logger  *slog.Logger

	now          func() time.Time
	pageSize     int
	fetchTimeout time.Duration
	confirmDelay time.Duration
	observePhase func(Phase)

	lifetime context.Context
	cancel   context.CancelFunc

	state       ViewState
	raw         []entity.Entity
	filtered    []entity.Entity
	saved       SavedSet
	inFlight    map[string]struct{}
	loading     bool
	errMsg      string
	notice      *Notice
	lastConfirm <-chan Phase
	generation  uint64
	closed      bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides time.Now for the recency window.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithPageSize overrides the view's page size.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithFetchTimeout bounds each backend fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.fetchTimeout = d
	}
}

// WithConfirmDelay sets how long a save confirmation stays visible.
func WithConfirmDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.confirmDelay = d
	}
}

// WithPhaseObserver receives every confirmation sequence phase.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(c *Controller) {
		c.observePhase = fn
	}
}

// NewController creates a controller for one entity type and view. The
// session must already be resolved: role decides the endpoint.
func NewController(
	kind entity.Type,
	view View,
	sess session.Session,
	backend portal.Client,
	store viewstate.Store,
	logger *slog.Logger,
	opts ...Option,
) (*Controller, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownType, kind)
	}
	switch view {
	case ViewSaved:
		if !sess.HasUser() {
			return nil, ErrNoUser
		}
	case ViewProfile:
		if !sess.Role.CanManage() {
			return nil, fmt.Errorf("%w: %s cannot open %s", ErrNotPermitted, sess.Role, view)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Controller{
		kind:         kind,
		view:         view,
		sess:         sess,
		backend:      backend,
		persist:      NewPersistence(store, sess.Scope(), kind, view),
		logger:       logger.With(slog.String("kind", string(kind)), slog.String("view", string(view))),
		now:          time.Now,
		pageSize:     view.PageSize(),
		confirmDelay: DefaultConfirmDelay,
		lifetime:     lifetime,
		cancel:       cancel,
		state:        DefaultViewState(),
		raw:          []entity.Entity{},
		filtered:     []entity.Entity{},
		saved:        SavedSet{},
		inFlight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Load restores persisted view state and then fetches the collection, the
// order a freshly mounted listing follows. Restore problems fall back to
// defaults; the returned error is the fetch error, if any.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.Restore(ctx); err != nil {
		c.logger.Warn("view state restore failed, using defaults",
			slog.String("error", err.Error()),
		)
	}
	return c.Fetch(ctx)
}

// Restore reads persisted state once. On a corrupt entry the readable parts
// are still applied.
func (c *Controller) Restore(ctx context.Context) error {
	state, found, err := c.persist.Load(ctx)
	if err != nil && !errors.Is(err, ErrCorruptState) {
		return err
	}
	if vErr := state.Filters.Validate(c.kind); vErr != nil {
		state.Filters = Filters{}
		err = errors.Join(err, fmt.Errorf("%w: %v", ErrCorruptState, vErr))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if found {
		c.state = state
		c.recompute()
	}
	return err
}

// Fetch replaces the working set from the backend. The endpoint follows the
// view and the session role. On failure the working set is emptied and the
// snapshot carries "Failed to load <kind>"; nothing is retried.
func (c *Controller) Fetch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.generation++
	gen := c.generation
	c.loading = true
	c.mu.Unlock()

	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	ctx = c.backendContext(ctx)

	var (
		raw      []entity.Entity
		savedIDs []string
		savedOK  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = c.fetchCollection(gctx)
		return err
	})
	if c.sess.HasUser() && c.view != ViewSaved {
		g.Go(func() error {
			ids, err := c.backend.SavedIDs(gctx, c.kind, c.sess.UserID)
			if err != nil {
				// Saved markers are decoration; the listing still renders.
				c.logger.Warn("saved ids fetch failed",
					slog.String("error", err.Error()),
				)
				return nil
			}
			savedIDs, savedOK = ids, true
			return nil
		})
	}
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		c.logger.Debug("discarding stale fetch result", slog.Uint64("generation", gen))
		return ErrStaleResult
	}
	c.loading = false

	if err != nil {
		c.raw = []entity.Entity{}
		c.errMsg = c.failureMessage()
		c.recompute()
		c.logger.Error("listing fetch failed",
			slog.String("role", string(c.sess.Role)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("listing: fetch %s: %w", c.kind.Plural(), err)
	}

	c.errMsg = ""
	c.raw = entity.Dedup(raw)
	switch {
	case c.view == ViewSaved:
		ids := make([]string, 0, len(c.raw))
		for _, e := range c.raw {
			ids = append(ids, e.ID)
		}
		c.saved = NewSavedSet(ids...)
	case savedOK:
		c.saved = NewSavedSet(savedIDs...)
	}
	c.recompute()

	c.logger.Debug("listing fetched",
		slog.Int("raw", len(c.raw)),
		slog.Int("filtered", len(c.filtered)),
	)
	return nil
}

func (c *Controller) fetchCollection(ctx context.Context) ([]entity.Entity, error) {
	switch c.view {
	case ViewSaved:
		return c.backend.Saved(ctx, c.kind, c.sess.UserID)
	case ViewProfile:
		return c.backend.List(ctx, c.kind, portal.ScopeManaged)
	default:
		scope := portal.ScopePublished
		if c.sess.Role.CanManage() {
			scope = portal.ScopeManaged
		}
		return c.backend.List(ctx, c.kind, scope)
	}
}

func (c *Controller) failureMessage() string {
	if c.view == ViewSaved {
		return "Failed to load saved " + c.kind.Plural()
	}
	return "Failed to load " + c.kind.Plural()
}

// backendContext attaches the session token for outbound calls.
func (c *Controller) backendContext(ctx context.Context) context.Context {
	if c.sess.Token == "" {
		return ctx
	}
	return portal.ContextWithToken(ctx, c.sess.Token)
}

// recompute refreshes the derived view. Callers hold c.mu.
func (c *Controller) recompute() {
	c.filtered = Apply(c.raw, c.state, c.now())
}

// Mutation carries optional changes to search phrase, sort mode and filters.
// Nil fields are left as they are.
type Mutation struct {
	SearchPhrase *string
	SortMode     *SortMode
	Filters      Filters
	// ReplaceFilters replaces the whole filter map instead of merging.
	ReplaceFilters bool
}

// Update applies m, resets the page to 1 and writes the state through.
func (c *Controller) Update(ctx context.Context, m Mutation) error {
	if m.Filters != nil {
		if err := m.Filters.Validate(c.kind); err != nil {
			return err
		}
	}
	if m.SortMode != nil {
		mode, err := ParseSortMode(string(*m.SortMode))
		if err != nil {
			return err
		}
		m.SortMode = &mode
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	next := c.state.Clone()
	if m.SearchPhrase != nil {
		next.SearchPhrase = *m.SearchPhrase
	}
	if m.SortMode != nil {
		next.SortMode = *m.SortMode
	}
	if m.ReplaceFilters {
		next.Filters = Filters{}
	}
	for k, v := range m.Filters {
		next.Filters[k] = v
	}
	next.Filters = next.Filters.compact()
	next.CurrentPage = 1
	c.state = next
	c.recompute()
	c.mu.Unlock()

	if err := c.persist.SaveFilters(ctx, next); err != nil {
		return err
	}
	return c.persist.SavePage(ctx, next.CurrentPage)
}

// SetSearch changes the search phrase.
func (c *Controller) SetSearch(ctx context.Context, phrase string) error {
	return c.Update(ctx, Mutation{SearchPhrase: &phrase})
}

// SetSort changes the sort mode. The mode is stored in canonical form.
func (c *Controller) SetSort(ctx context.Context, mode SortMode) error {
	parsed, err := ParseSortMode(string(mode))
	if err != nil {
		return err
	}
	return c.Update(ctx, Mutation{SortMode: &parsed})
}

// SetFilter sets one structured filter; an empty value removes it.
func (c *Controller) SetFilter(ctx context.Context, key, value string) error {
	return c.Update(ctx, Mutation{Filters: Filters{key: value}})
}

// SetPage moves to page. It does not refetch and does not clamp to the
// number of pages.
func (c *Controller) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.CurrentPage = page
	c.mu.Unlock()

	return c.persist.SavePage(ctx, page)
}

// ClearFilters resets the view state to defaults and deletes the persisted
// entries.
func (c *Controller) ClearFilters(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = DefaultViewState()
	c.recompute()
	c.mu.Unlock()

	return c.persist.Clear(ctx)
}

// State returns a copy of the current view state.
func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Filtered returns a copy of the full filtered sequence.
func (c *Controller) Filtered() []entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Entity, len(c.filtered))
	copy(out, c.filtered)
	return out
}

// IsSaved reports whether id is in the saved set.
func (c *Controller) IsSaved(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved.Has(id)
}

// Snapshot returns the render model for the current page.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var notice *Notice
	if c.notice != nil {
		n := *c.notice
		notice = &n
	}
	return Snapshot{
		Kind:       c.kind,
		View:       c.view,
		State:      c.state.Clone(),
		Items:      PageWindow(c.filtered, c.state.CurrentPage, c.pageSize),
		Total:      len(c.filtered),
		TotalPages: TotalPages(len(c.filtered), c.pageSize),
		PageSize:   c.pageSize,
		Loading:    c.loading,
		Error:      c.errMsg,
		SavedIDs:   c.saved.IDs(),
		Notice:     notice,
	}
}

// Open returns the entity for a detail preview and records a view. The
// view counter is best effort: a failed increment is logged and the entity
// is still returned.
func (c *Controller) Open(ctx context.Context, id string) (entity.Entity, error) {
	c.mu.Lock()
	e, ok := entity.Find(c.raw, id)
	c.mu.Unlock()
	if !ok {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	if err := c.backend.IncrementViewCount(c.backendContext(ctx), id); err != nil {
		c.logger.Warn("view count increment failed",
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		return e, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.raw {
		if c.raw[i].ID == id {
			c.raw[i].Views++
			e = c.raw[i]
			break
		}
	}
	c.recompute()
	return e, nil
}

// Close discards in-flight fetch results and cancels pending confirmation
// delays. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}
