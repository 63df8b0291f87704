// Package listing implements the browsable collection view shared by the job,
// internship and exam dashboards: search, structured filters, the 24-hour
// recency window, pagination, write-through persistence of the user's view
// state and the saved-items toggle.
package listing

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/maauso/portal-listings/internal/entity"
)

// Static errors for view state validation.
var (
	// ErrInvalidSortMode is returned for unknown sort options.
	ErrInvalidSortMode = errors.New("listing: invalid sort mode")
	// ErrUnknownFilter is returned when a filter key does not apply to the type.
	ErrUnknownFilter = errors.New("listing: unknown filter")
	// ErrInvalidFilterValue is returned when a numeric filter is not a number.
	ErrInvalidFilterValue = errors.New("listing: invalid filter value")
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("listing: page must be >= 1")
)

// SortMode is the user's sort selection. Newest and Oldest partition the
// collection at the recency boundary rather than ordering it.
type SortMode string

const (
	// SortRelevance keeps backend order.
	SortRelevance SortMode = "Relevance"
	// SortNewest keeps entities updated within the recency window.
	SortNewest SortMode = "Newest"
	// SortOldest keeps entities updated before the recency window.
	SortOldest SortMode = "Oldest"
)

// ParseSortMode is case-insensitive; an empty string is Relevance.
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relevance":
		return SortRelevance, nil
	case "newest":
		return SortNewest, nil
	case "oldest":
		return SortOldest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortMode, s)
	}
}

// Structured filter keys.
const (
	FilterLocation      = "location"
	FilterClassifier    = "classifier"
	FilterDuration      = "duration"
	FilterStatus        = "status"
	FilterMinPay        = "min_pay"
	FilterMaxPay        = "max_pay"
	FilterMinExperience = "min_experience"
	FilterMaxExperience = "max_experience"
)

var numericFilters = map[string]bool{
	FilterMinPay:        true,
	FilterMaxPay:        true,
	FilterMinExperience: true,
	FilterMaxExperience: true,
}

var allowedFilters = map[entity.Type][]string{
	entity.TypeJob: {
		FilterLocation, FilterClassifier, FilterStatus,
		FilterMinPay, FilterMaxPay, FilterMinExperience, FilterMaxExperience,
	},
	entity.TypeInternship: {
		FilterLocation, FilterClassifier, FilterStatus, FilterDuration,
		FilterMinPay, FilterMaxPay,
	},
	entity.TypeExam: {
		FilterLocation, FilterClassifier, FilterStatus,
	},
}

// AllowedFilters returns the structured filter keys that apply to t.
func AllowedFilters(t entity.Type) []string {
	return slices.Clone(allowedFilters[t])
}

// Filters maps structured filter keys to raw user input. Empty values impose
// no constraint.
type Filters map[string]string

// Validate checks keys against the type and parses numeric values.
func (f Filters) Validate(t entity.Type) error {
	allowed := allowedFilters[t]
	for key, value := range f {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("%w: %q for %s", ErrUnknownFilter, key, t)
		}
		if numericFilters[key] && strings.TrimSpace(value) != "" {
			if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, key, value)
			}
		}
	}
	return nil
}

// compact drops empty values so that persisted state stays minimal.
func (f Filters) compact() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// ViewState is the user's search, filter, sort and page selection for one
// listing.
type ViewState struct {
	SearchPhrase string   `json:"search_phrase"`
	Filters      Filters  `json:"filters"`
	SortMode     SortMode `json:"sort_mode"`
	CurrentPage  int      `json:"current_page"`
}

// DefaultViewState returns the state used when nothing was persisted.
func DefaultViewState() ViewState {
	return ViewState{
		SearchPhrase: "",
		Filters:      Filters{},
		SortMode:     SortRelevance,
		CurrentPage:  1,
	}
}

// Clone returns a deep copy.
func (v ViewState) Clone() ViewState {
	out := v
	out.Filters = maps.Clone(v.Filters)
	if out.Filters == nil {
		out.Filters = Filters{}
	}
	return out
}

// Equal reports whether two states select the same view.
func (v ViewState) Equal(o ViewState) bool {
	return v.SearchPhrase == o.SearchPhrase &&
		v.SortMode == o.SortMode &&
		v.CurrentPage == o.CurrentPage &&
		maps.Equal(v.Filters.compact(), o.Filters.compact())
}
