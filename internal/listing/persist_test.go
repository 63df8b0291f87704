package listing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/viewstate"
)

func TestNewPersistence_Keys(t *testing.T) {
	store := viewstate.NewMemoryStore()
	tests := []struct {
		view        View
		kind        entity.Type
		filters     string
		currentPage string
	}{
		{ViewDashboard, entity.TypeJob, "u1:jobFilters", "u1:jobCurrentPage"},
		{ViewDashboard, entity.TypeInternship, "u1:internshipFilters", "u1:internshipCurrentPage"},
		{ViewSaved, entity.TypeExam, "u1:savedExamFilters", "u1:savedExamCurrentPage"},
		{ViewProfile, entity.TypeJob, "u1:profileJobFilters", "u1:profileJobCurrentPage"},
	}
	for _, tt := range tests {
		f, p := NewPersistence(store, "u1", tt.kind, tt.view).Keys()
		assert.Equal(t, tt.filters, f)
		assert.Equal(t, tt.currentPage, p)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := viewstate.NewMemoryStore()
	p := NewPersistence(store, "u1", entity.TypeJob, ViewDashboard)

	state := DefaultViewState()
	state.SearchPhrase = "intern"
	state.SortMode = SortNewest
	state.CurrentPage = 3
	state.Filters = Filters{FilterLocation: "Pune", FilterStatus: ""}

	require.NoError(t, p.SaveFilters(ctx, state))
	require.NoError(t, p.SavePage(ctx, state.CurrentPage))

	raw, err := store.Get(ctx, "u1:jobFilters")
	require.NoError(t, err)
	assert.JSONEq(t, `{"searchQuery":"intern","selectedFilter":"Newest","filters":{"location":"Pune"}}`, raw)

	got, found, err := p.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "intern", got.SearchPhrase)
	assert.Equal(t, SortNewest, got.SortMode)
	assert.Equal(t, 3, got.CurrentPage)
	assert.Equal(t, Filters{FilterLocation: "Pune"}, got.Filters)
}

func TestPersistence_LoadMissing(t *testing.T) {
	p := NewPersistence(viewstate.NewMemoryStore(), "client-b1", entity.TypeExam, ViewDashboard)

	got, found, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, got.Equal(DefaultViewState()))
}

func TestPersistence_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := viewstate.NewMemoryStore()
	p := NewPersistence(store, "u1", entity.TypeJob, ViewDashboard)

	require.NoError(t, store.Set(ctx, "u1:jobFilters", "{not json"))
	require.NoError(t, store.Set(ctx, "u1:jobCurrentPage", "2"))

	got, found, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.True(t, found)
	assert.Equal(t, SortRelevance, got.SortMode)
	assert.Equal(t, 2, got.CurrentPage)

	require.NoError(t, store.Set(ctx, "u1:jobFilters", `{"searchQuery":"x","selectedFilter":"Trending"}`))
	require.NoError(t, store.Set(ctx, "u1:jobCurrentPage", "-4"))

	got, _, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.Equal(t, "", got.SearchPhrase)
	assert.Equal(t, 1, got.CurrentPage)
}

func TestPersistence_Clear(t *testing.T) {
	ctx := context.Background()
	store := viewstate.NewMemoryStore()
	p := NewPersistence(store, "u1", entity.TypeInternship, ViewSaved)

	require.NoError(t, p.SaveFilters(ctx, DefaultViewState()))
	require.NoError(t, p.SavePage(ctx, 2))
	require.Equal(t, 2, store.Len())

	require.NoError(t, p.Clear(ctx))
	assert.Equal(t, 0, store.Len())

	// Clearing twice is not an error.
	require.NoError(t, p.Clear(ctx))
}

func TestPersistence_EmptyScopeIsDisabled(t *testing.T) {
	ctx := context.Background()
	store := viewstate.NewMemoryStore()
	p := NewPersistence(store, "", entity.TypeJob, ViewDashboard)
	assert.False(t, p.Enabled())

	state := DefaultViewState()
	state.SearchPhrase = "rust"
	require.NoError(t, p.SaveFilters(ctx, state))
	require.NoError(t, p.SavePage(ctx, 4))
	require.NoError(t, p.Clear(ctx))
	assert.Equal(t, 0, store.Len())

	got, found, err := p.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, got.Equal(DefaultViewState()))
}

func TestParseView(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	assert.Equal(t, ViewDashboard, v)

	v, err = ParseView("Saved")
	require.NoError(t, err)
	assert.Equal(t, ViewSaved, v)
	assert.Equal(t, ProfilePageSize, ViewProfile.PageSize())

	_, err = ParseView("archive")
	assert.Error(t, err)
}
