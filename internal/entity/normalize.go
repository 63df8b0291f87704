package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Static errors for payload normalization.
var (
	// ErrUnknownType is returned when an entity type cannot be parsed.
	ErrUnknownType = errors.New("entity: unknown type")
	// ErrUnexpectedShape is returned when a list payload matches none of the
	// known envelope variants.
	ErrUnexpectedShape = errors.New("entity: unexpected payload shape")
	// ErrMalformedRecord is returned when a record inside a list cannot be
	// mapped onto Entity.
	ErrMalformedRecord = errors.New("entity: malformed record")
)

// fieldSpec lists, per canonical field, the backend keys tried in order.
type fieldSpec struct {
	title        []string
	organization []string
	location     []string
	description  []string
	skills       []string
	classifier   []string
	duration     []string
	pay          []string
	experience   []string
}

var fieldSpecs = map[Type]fieldSpec{
	TypeJob: {
		title:        []string{"job_title", "title"},
		organization: []string{"company_name", "company"},
		location:     []string{"job_location", "location"},
		description:  []string{"job_description", "description"},
		skills:       []string{"required_skills", "skills"},
		classifier:   []string{"work_type", "job_type", "employment_type"},
		pay:          []string{"salary", "salary_max", "salary_min"},
		experience:   []string{"experience", "experience_years", "required_experience"},
	},
	TypeInternship: {
		title:        []string{"internship_title", "title", "job_title"},
		organization: []string{"company_name", "company"},
		location:     []string{"location", "internship_location"},
		description:  []string{"description", "job_description", "internship_description"},
		skills:       []string{"required_skills", "skills"},
		classifier:   []string{"internship_type", "work_type"},
		duration:     []string{"duration", "internship_duration"},
		pay:          []string{"stipend", "stipend_amount"},
	},
	TypeExam: {
		title:        []string{"exam_name", "exam_title", "title"},
		organization: []string{"organization", "conducted_by", "organizer"},
		location:     []string{"location", "exam_centers"},
		description:  []string{"description", "about_exam", "about"},
		skills:       []string{"tags", "subjects", "syllabus"},
		classifier:   []string{"exam_mode", "exam_type", "mode"},
	},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodeList maps a list endpoint payload onto entities of type t and
// deduplicates them by ID. The payload must be a bare array or an object
// holding the array under a known envelope key.
func DecodeList(t Type, body []byte) ([]Entity, error) {
	items, err := unwrapList(t, body)
	if err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(items))
	for i, raw := range items {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrMalformedRecord, i)
		}
		e, err := normalize(t, obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, e)
	}
	return Dedup(out), nil
}

// DecodeIDs extracts entity IDs from a saved-list payload. Items may be plain
// ID strings or records carrying an id field.
func DecodeIDs(t Type, body []byte) ([]string, error) {
	items, err := unwrapList(t, body)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, raw := range items {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedRecord, i, err)
		}
		var id string
		switch x := v.(type) {
		case string:
			id = x
		case float64:
			id = strconv.FormatFloat(x, 'f', -1, 64)
		case map[string]any:
			id = recordID(t, x)
			if id == "" {
				if nested, ok := x[string(t)].(map[string]any); ok {
					id = recordID(t, nested)
				}
			}
		}
		if id == "" {
			return nil, fmt.Errorf("%w: item %d has no id", ErrMalformedRecord, i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// unwrapList returns the raw array items for the known envelope variants.
func unwrapList(t Type, body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedShape)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		return items, nil
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		for _, key := range envelopeKeys(t) {
			raw, ok := env[key]
			if !ok {
				continue
			}
			if string(raw) == "null" {
				return nil, nil
			}
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("%w: %q is not an array", ErrUnexpectedShape, key)
			}
			return items, nil
		}
		return nil, fmt.Errorf("%w: no list under any of %v", ErrUnexpectedShape, envelopeKeys(t))
	default:
		return nil, fmt.Errorf("%w: neither array nor object", ErrUnexpectedShape)
	}
}

func envelopeKeys(t Type) []string {
	return []string{
		t.Plural(),
		"saved_" + t.Plural(),
		string(t),
		"data",
		"results",
		"saved",
	}
}

func normalize(t Type, obj map[string]any) (Entity, error) {
	id := recordID(t, obj)
	if id == "" {
		return Entity{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}

	data, _ := obj[string(t)+"_data"].(map[string]any)
	lookup := func(keys []string) any {
		for _, k := range keys {
			if data != nil {
				if v, ok := data[k]; ok && v != nil && v != "" {
					return v
				}
			}
			if v, ok := obj[k]; ok && v != nil && v != "" {
				return v
			}
		}
		return nil
	}
	spec := fieldSpecs[t]

	e := Entity{
		ID:           id,
		Type:         t,
		Title:        asString(lookup(spec.title)),
		Organization: asString(lookup(spec.organization)),
		Location:     asString(lookup(spec.location)),
		Description:  asString(lookup(spec.description)),
		Skills:       asStrings(lookup(spec.skills)),
		Classifier:   asString(lookup(spec.classifier)),
		Duration:     asString(lookup(spec.duration)),
		Pay:          asNumber(lookup(spec.pay)),
		Status:       parseStatus(asString(lookup([]string{"status"}))),
		Views:        int(derefOr(asNumber(lookup([]string{"views", "view_count"})), 0)),
		Data:         data,
	}
	if len(spec.experience) > 0 {
		e.ExperienceYears = asNumber(lookup(spec.experience))
	}

	if ts := asString(lookup([]string{"updated_at", "updatedAt", "created_at", "createdAt"})); ts != "" {
		parsed, err := parseTime(ts)
		if err != nil {
			return Entity{}, fmt.Errorf("%w: id %s: %v", ErrMalformedRecord, id, err)
		}
		e.UpdatedAt = parsed
	}

	return e, nil
}

func recordID(t Type, obj map[string]any) string {
	for _, k := range []string{"id", "_id", string(t) + "_id"} {
		if s := asString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		// Mongo-style {"$oid": "..."} identifiers.
		if oid, ok := x["$oid"].(string); ok {
			return oid
		}
	}
	return ""
}

// asStrings accepts a JSON array or a comma separated string.
func asStrings(v any) []string {
	var out []string
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(x, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// asNumber parses numbers and numeric strings such as "25,000" or "3+".
func asNumber(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			if r == ',' || r == '+' || r == ' ' {
				return -1
			}
			return r
		}, strings.TrimSpace(x))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
