// Package entity defines the canonical listing record shared by jobs,
// internships and exams, together with the normalization boundary that maps
// portal backend payloads into it.
package entity

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of listing an Entity represents.
type Type string

const (
	// TypeJob is a job posting.
	TypeJob Type = "job"
	// TypeInternship is an internship posting.
	TypeInternship Type = "internship"
	// TypeExam is an exam announcement.
	TypeExam Type = "exam"
)

// Types lists every supported entity type in display order.
var Types = []Type{TypeJob, TypeInternship, TypeExam}

// IsValid returns true if the type is one of the supported kinds.
func (t Type) IsValid() bool {
	return t == TypeJob || t == TypeInternship || t == TypeExam
}

// Plural returns the plural form used in backend paths and user messages.
func (t Type) Plural() string {
	return string(t) + "s"
}

// Title returns the capitalized name, e.g. "Internship".
func (t Type) Title() string {
	if t == "" {
		return ""
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseType accepts singular or plural forms ("job", "jobs").
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Status is the publication state of a listing.
type Status string

const (
	// StatusActive marks a listing that is open.
	StatusActive Status = "Active"
	// StatusClosed marks a listing that no longer accepts applicants.
	StatusClosed Status = "Closed"
)

// parseStatus maps backend spellings onto Status. Missing values are Active.
func parseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed", "inactive", "expired":
		return StatusClosed
	default:
		return StatusActive
	}
}

// Entity is a normalized job, internship or exam record.
type Entity struct {
	// ID uniquely identifies the record within its type.
	ID string `json:"id"`
	// Type is the listing kind.
	Type Type `json:"type"`
	// Title is the job title, internship title or exam name.
	Title string `json:"title"`
	// Organization is the company or conducting body.
	Organization string `json:"company_or_org"`
	// Location is free text as entered by the publisher.
	Location string `json:"location"`
	// Description is the long-form body.
	Description string `json:"description"`
	// Skills holds the skills or tags list.
	Skills []string `json:"skills,omitempty"`
	// Classifier is the work type, internship type or exam mode.
	Classifier string `json:"classifier,omitempty"`
	// Duration is set for internships.
	Duration string `json:"duration,omitempty"`
	// Pay is the salary or stipend when the backend provides a number.
	Pay *float64 `json:"pay,omitempty"`
	// ExperienceYears is the required experience for jobs.
	ExperienceYears *float64 `json:"experience_years,omitempty"`
	// UpdatedAt is the last modification time reported by the backend.
	UpdatedAt time.Time `json:"updated_at"`
	// Status is Active or Closed.
	Status Status `json:"status"`
	// Views is the view counter.
	Views int `json:"views"`
	// Data keeps the type-specific sub-object as received.
	Data map[string]any `json:"data,omitempty"`
}

// Dedup returns the entities with duplicate IDs removed, keeping the first
// occurrence and preserving order.
func Dedup(in []Entity) []Entity {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Entity, 0, len(in))
	for _, e := range in {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Find returns the entity with the given ID.
func Find(in []Entity, id string) (Entity, bool) {
	for _, e := range in {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}
