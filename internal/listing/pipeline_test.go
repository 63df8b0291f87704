package listing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/portal-listings/internal/entity"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func sampleJobs() []entity.Entity {
	return []entity.Entity{
		{
			ID: "1", Type: entity.TypeJob, Title: "Backend Engineer", Organization: "Acme",
			Location: "Bengaluru", Skills: []string{"Go", "SQL"}, Classifier: "Full-time",
			Pay: ptr(1200000), ExperienceYears: ptr(3), UpdatedAt: testNow.Add(-2 * time.Hour),
			Status: entity.StatusActive,
		},
		{
			ID: "2", Type: entity.TypeJob, Title: "Frontend Developer", Organization: "Globex",
			Location: "Remote", Skills: []string{"React"}, Classifier: "Contract",
			Pay: ptr(800000), ExperienceYears: ptr(1), UpdatedAt: testNow.Add(-48 * time.Hour),
			Status: entity.StatusActive,
		},
		{
			ID: "3", Type: entity.TypeJob, Title: "Data Analyst", Organization: "Initech",
			Location: "Pune", Description: "Works with the backend team", Classifier: "Full-time",
			UpdatedAt: testNow.Add(-30 * time.Hour), Status: entity.StatusClosed,
		},
	}
}

func ids(in []entity.Entity) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, e.ID)
	}
	return out
}

func TestApply_EmptyInput(t *testing.T) {
	got := Apply(nil, DefaultViewState(), testNow)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApply_DefaultStateIsIdentity(t *testing.T) {
	jobs := sampleJobs()
	got := Apply(jobs, DefaultViewState(), testNow)
	assert.Equal(t, ids(jobs), ids(got))
}

func TestApply_SearchIsCaseInsensitiveSubstring(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
		want   []string
	}{
		{"title and description", "backend", []string{"1", "3"}},
		{"upper case", "BACKEND ENGINEER", []string{"1"}},
		{"organization", "globex", []string{"2"}},
		{"skill", "sql", []string{"1"}},
		{"classifier", "contract", []string{"2"}},
		{"no match", "kubernetes", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultViewState()
			state.SearchPhrase = tt.phrase
			assert.Equal(t, tt.want, ids(Apply(sampleJobs(), state, testNow)))
		})
	}
}

func TestApply_ResultIsOrderedSubset(t *testing.T) {
	jobs := sampleJobs()
	state := DefaultViewState()
	state.SearchPhrase = "e"
	state.Filters = Filters{FilterClassifier: "full"}

	got := Apply(jobs, state, testNow)
	require.NotEmpty(t, got)

	pos := -1
	for _, e := range got {
		idx := -1
		for i, j := range jobs {
			if j.ID == e.ID {
				idx = i
			}
		}
		require.GreaterOrEqual(t, idx, 0, "result %s not in input", e.ID)
		assert.Greater(t, idx, pos, "order not preserved")
		pos = idx
	}
}

func TestApply_RecencyPartition(t *testing.T) {
	jobs := sampleJobs()
	jobs = append(jobs, entity.Entity{ID: "edge", UpdatedAt: testNow.Add(-RecencyWindow)})

	newest := DefaultViewState()
	newest.SortMode = SortNewest
	oldest := DefaultViewState()
	oldest.SortMode = SortOldest

	n := ids(Apply(jobs, newest, testNow))
	o := ids(Apply(jobs, oldest, testNow))

	assert.Equal(t, []string{"1", "edge"}, n)
	assert.Equal(t, []string{"2", "3"}, o)
	assert.Len(t, append(n, o...), len(jobs))
	for _, id := range n {
		assert.NotContains(t, o, id)
	}
}

func TestApply_StructuredFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"location substring", Filters{FilterLocation: "bengal"}, []string{"1"}},
		{"status", Filters{FilterStatus: "closed"}, []string{"3"}},
		{"min pay inclusive", Filters{FilterMinPay: "800000"}, []string{"1", "2"}},
		{"max pay excludes missing", Filters{FilterMaxPay: "900000"}, []string{"2"}},
		{"experience range", Filters{FilterMinExperience: "2", FilterMaxExperience: "5"}, []string{"1"}},
		{"empty value ignored", Filters{FilterLocation: "  "}, []string{"1", "2", "3"}},
		{"combined", Filters{FilterClassifier: "full-time", FilterStatus: "active"}, []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultViewState()
			state.Filters = tt.filters
			assert.Equal(t, tt.want, ids(Apply(sampleJobs(), state, testNow)))
		})
	}
}

func TestFilters_Validate(t *testing.T) {
	assert.NoError(t, Filters{FilterDuration: "6 months"}.Validate(entity.TypeInternship))
	assert.ErrorIs(t, Filters{FilterDuration: "6 months"}.Validate(entity.TypeJob), ErrUnknownFilter)
	assert.ErrorIs(t, Filters{FilterMinPay: "lots"}.Validate(entity.TypeJob), ErrInvalidFilterValue)
	assert.NoError(t, Filters{FilterMinPay: ""}.Validate(entity.TypeJob))
	assert.ErrorIs(t, Filters{FilterMinPay: "1"}.Validate(entity.TypeExam), ErrUnknownFilter)
}

func TestParseSortMode(t *testing.T) {
	for in, want := range map[string]SortMode{
		"":          SortRelevance,
		"Relevance": SortRelevance,
		"newest":    SortNewest,
		" OLDEST ":  SortOldest,
	} {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			got, err := ParseSortMode(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := ParseSortMode("popular")
	assert.ErrorIs(t, err, ErrInvalidSortMode)
}

func TestViewState_CloneIsDeep(t *testing.T) {
	s := DefaultViewState()
	s.Filters[FilterLocation] = "Pune"

	c := s.Clone()
	c.Filters[FilterLocation] = "Remote"

	assert.Equal(t, "Pune", s.Filters[FilterLocation])
	assert.False(t, s.Equal(c))
}
