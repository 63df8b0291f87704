package listing

import (
	"strconv"
	"strings"
	"time"

	"github.com/maauso/portal-listings/internal/entity"
)

// RecencyWindow is the fixed boundary between Newest and Oldest.
const RecencyWindow = 24 * time.Hour

// Apply runs the filter pipeline: search phrase, recency window, then
// structured filters. The result keeps the input order and is always a subset
// of entities.
func Apply(entities []entity.Entity, state ViewState, now time.Time) []entity.Entity {
	if len(entities) == 0 {
		return []entity.Entity{}
	}

	phrase := strings.ToLower(state.SearchPhrase)
	preds := compileFilters(state.Filters)

	out := make([]entity.Entity, 0, len(entities))
	for _, e := range entities {
		if !matchesLowerPhrase(e, phrase) {
			continue
		}
		if !InRecencyWindow(e, state.SortMode, now) {
			continue
		}
		if !matchesAll(e, preds) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// MatchesPhrase reports whether phrase occurs, case-insensitively, in the
// title, organization, description, any skill or the classifier. An empty
// phrase matches everything.
func MatchesPhrase(e entity.Entity, phrase string) bool {
	return matchesLowerPhrase(e, strings.ToLower(phrase))
}

func matchesLowerPhrase(e entity.Entity, phrase string) bool {
	if phrase == "" {
		return true
	}
	contains := func(s string) bool {
		return s != "" && strings.Contains(strings.ToLower(s), phrase)
	}
	if contains(e.Title) || contains(e.Organization) || contains(e.Description) || contains(e.Classifier) {
		return true
	}
	for _, skill := range e.Skills {
		if contains(skill) {
			return true
		}
	}
	return false
}

// InRecencyWindow applies the Newest/Oldest partition. The boundary instant
// belongs to Newest. Relevance keeps everything.
func InRecencyWindow(e entity.Entity, mode SortMode, now time.Time) bool {
	oneDayAgo := now.Add(-RecencyWindow)
	switch mode {
	case SortNewest:
		return !e.UpdatedAt.Before(oneDayAgo)
	case SortOldest:
		return e.UpdatedAt.Before(oneDayAgo)
	default:
		return true
	}
}

type predicate func(entity.Entity) bool

// compileFilters turns the non-empty filters into predicates. Numeric values
// that do not parse impose no constraint; Filters.Validate rejects them
// earlier on the mutation path.
func compileFilters(f Filters) []predicate {
	var preds []predicate
	for key, raw := range f {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		switch key {
		case FilterLocation:
			preds = append(preds, substring(func(e entity.Entity) string { return e.Location }, value))
		case FilterClassifier:
			preds = append(preds, substring(func(e entity.Entity) string { return e.Classifier }, value))
		case FilterDuration:
			preds = append(preds, substring(func(e entity.Entity) string { return e.Duration }, value))
		case FilterStatus:
			preds = append(preds, func(e entity.Entity) bool {
				return strings.EqualFold(string(e.Status), value)
			})
		case FilterMinPay, FilterMaxPay, FilterMinExperience, FilterMaxExperience:
			bound, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			preds = append(preds, numericBound(key, bound))
		}
	}
	return preds
}

func substring(field func(entity.Entity) string, value string) predicate {
	needle := strings.ToLower(value)
	return func(e entity.Entity) bool {
		return strings.Contains(strings.ToLower(field(e)), needle)
	}
}

// numericBound is inclusive; entities without the value never match.
func numericBound(key string, bound float64) predicate {
	return func(e entity.Entity) bool {
		var v *float64
		switch key {
		case FilterMinPay, FilterMaxPay:
			v = e.Pay
		default:
			v = e.ExperienceYears
		}
		if v == nil {
			return false
		}
		if key == FilterMinPay || key == FilterMinExperience {
			return *v >= bound
		}
		return *v <= bound
	}
}

func matchesAll(e entity.Entity, preds []predicate) bool {
	for _, p := range preds {
		if !p(e) {
			return false
		}
	}
	return true
}
