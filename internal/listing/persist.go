package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/viewstate"
)

// ErrCorruptState is returned when persisted view state cannot be decoded.
var ErrCorruptState = errors.New("listing: corrupt persisted state")

// View selects which collection a controller browses.
type View string

const (
	// ViewDashboard is the main listing for the caller's role.
	ViewDashboard View = "dashboard"
	// ViewSaved lists the caller's saved entities.
	ViewSaved View = "saved"
	// ViewProfile is the management table shown on admin profiles.
	ViewProfile View = "profile"
)

// ParseView defaults to the dashboard.
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewDashboard:
		return ViewDashboard, nil
	case ViewSaved:
		return ViewSaved, nil
	case ViewProfile:
		return ViewProfile, nil
	default:
		return "", fmt.Errorf("listing: unknown view %q", s)
	}
}

// PageSize returns the fixed page size of the view.
func (v View) PageSize() int {
	if v == ViewProfile {
		return ProfilePageSize
	}
	return DashboardPageSize
}

// persistedFilters is the JSON stored under "<entity>Filters".
type persistedFilters struct {
	SearchQuery    string            `json:"searchQuery"`
	SelectedFilter string            `json:"selectedFilter"`
	Filters        map[string]string `json:"filters,omitempty"`
}

// Persistence reads and writes one listing's view state. Filters and the
// current page live under separate keys, namespaced by user scope. With an
// empty scope it is disabled: loads return defaults and writes are dropped.
type Persistence struct {
	store      viewstate.Store
	filtersKey string
	pageKey    string
}

// NewPersistence builds the keys for scope, type and view, e.g.
// "u42:jobFilters", "u42:savedInternshipCurrentPage".
func NewPersistence(store viewstate.Store, scope string, t entity.Type, view View) *Persistence {
	if scope == "" {
		return &Persistence{}
	}
	base := string(t)
	switch view {
	case ViewSaved:
		base = "saved" + t.Title()
	case ViewProfile:
		base = "profile" + t.Title()
	}
	return &Persistence{
		store:      store,
		filtersKey: scope + ":" + base + "Filters",
		pageKey:    scope + ":" + base + "CurrentPage",
	}
}

// Enabled reports whether state is read from and written to a store.
func (p *Persistence) Enabled() bool {
	return p.store != nil
}

// Keys returns the filters and page keys.
func (p *Persistence) Keys() (filters, page string) {
	return p.filtersKey, p.pageKey
}

// Load returns the persisted state merged over defaults. found is false when
// neither key exists. A corrupt value yields defaults for that part and an
// error wrapping ErrCorruptState.
func (p *Persistence) Load(ctx context.Context) (state ViewState, found bool, err error) {
	state = DefaultViewState()
	if !p.Enabled() {
		return state, false, nil
	}
	var corrupt []string

	raw, err := p.store.Get(ctx, p.filtersKey)
	switch {
	case errors.Is(err, viewstate.ErrNotFound):
	case err != nil:
		return state, false, fmt.Errorf("listing: load %s: %w", p.filtersKey, err)
	default:
		found = true
		var pf persistedFilters
		if jerr := json.Unmarshal([]byte(raw), &pf); jerr != nil {
			corrupt = append(corrupt, p.filtersKey)
			break
		}
		mode, merr := ParseSortMode(pf.SelectedFilter)
		if merr != nil {
			corrupt = append(corrupt, p.filtersKey)
			break
		}
		state.SearchPhrase = pf.SearchQuery
		state.SortMode = mode
		if pf.Filters != nil {
			state.Filters = Filters(pf.Filters)
		}
	}

	raw, err = p.store.Get(ctx, p.pageKey)
	switch {
	case errors.Is(err, viewstate.ErrNotFound):
	case err != nil:
		return state, found, fmt.Errorf("listing: load %s: %w", p.pageKey, err)
	default:
		found = true
		page, perr := strconv.Atoi(strings.TrimSpace(raw))
		if perr != nil || page < 1 {
			corrupt = append(corrupt, p.pageKey)
			break
		}
		state.CurrentPage = page
	}

	if len(corrupt) > 0 {
		return state, found, fmt.Errorf("%w: %s", ErrCorruptState, strings.Join(corrupt, ", "))
	}
	return state, found, nil
}

// SaveFilters writes search phrase, sort mode and structured filters.
func (p *Persistence) SaveFilters(ctx context.Context, state ViewState) error {
	if !p.Enabled() {
		return nil
	}
	data, err := json.Marshal(persistedFilters{
		SearchQuery:    state.SearchPhrase,
		SelectedFilter: string(state.SortMode),
		Filters:        state.Filters.compact(),
	})
	if err != nil {
		return fmt.Errorf("listing: marshal filters: %w", err)
	}
	if err := p.store.Set(ctx, p.filtersKey, string(data)); err != nil {
		return fmt.Errorf("listing: save %s: %w", p.filtersKey, err)
	}
	return nil
}

// SavePage writes the current page as a decimal string.
func (p *Persistence) SavePage(ctx context.Context, page int) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.store.Set(ctx, p.pageKey, strconv.Itoa(page)); err != nil {
		return fmt.Errorf("listing: save %s: %w", p.pageKey, err)
	}
	return nil
}

// Clear deletes both keys.
func (p *Persistence) Clear(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.store.Delete(ctx, p.filtersKey); err != nil {
		return fmt.Errorf("listing: clear %s: %w", p.filtersKey, err)
	}
	if err := p.store.Delete(ctx, p.pageKey); err != nil {
		return fmt.Errorf("listing: clear %s: %w", p.pageKey, err)
	}
	return nil
}
