// Package server provides the HTTP server for the portal listings API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/listing"
)

// UpdateStateRequest is the HTTP request body for changing search, sort or
// filters. Omitted fields keep their current value.
type UpdateStateRequest struct {
	// Search replaces the search phrase.
	Search *string `json:"search" validate:"omitempty,max=200"`
	// Sort is Relevance, Newest or Oldest.
	Sort *string `json:"sort" validate:"omitempty,oneof=Relevance Newest Oldest relevance newest oldest"`
	// Filters are merged into the current filters; empty values remove a key.
	Filters map[string]string `json:"filters" validate:"omitempty,dive,keys,required,max=32,endkeys,max=200"`
	// ReplaceFilters drops current filters before applying Filters.
	ReplaceFilters bool `json:"replace_filters"`
}

// SetPageRequest is the HTTP request body for moving to a page.
type SetPageRequest struct {
	// Page is 1-based.
	Page int `json:"page" validate:"required,min=1"`
}

// EntityResponse is one listing record.
type EntityResponse struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Title           string         `json:"title"`
	Organization    string         `json:"company_or_org"`
	Location        string         `json:"location,omitempty"`
	Description     string         `json:"description,omitempty"`
	Skills          []string       `json:"skills,omitempty"`
	Classifier      string         `json:"classifier,omitempty"`
	Duration        string         `json:"duration,omitempty"`
	Pay             *float64       `json:"pay,omitempty"`
	ExperienceYears *float64       `json:"experience_years,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Status          string         `json:"status"`
	Views           int            `json:"views"`
	Saved           bool           `json:"saved"`
	Data            map[string]any `json:"data,omitempty"`
}

// NoticeResponse is the transient save confirmation.
type NoticeResponse struct {
	EntityID string `json:"entity_id"`
	Saved    bool   `json:"saved"`
	Message  string `json:"message"`
}

// ListingResponse is the HTTP response for a rendered listing page.
type ListingResponse struct {
	// Kind is the plural entity kind, e.g. "jobs".
	Kind string `json:"kind"`
	// View is dashboard, saved or profile.
	View string `json:"view"`
	// Items is the current page.
	Items []EntityResponse `json:"items"`
	// Page is the current 1-based page.
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	// Search, Sort and Filters echo the persisted view state.
	Search  string            `json:"search"`
	Sort    string            `json:"sort"`
	Filters map[string]string `json:"filters"`
	// SavedIDs are the ids the caller has saved.
	SavedIDs []string `json:"saved_ids"`
	// Error is set when the backend fetch failed.
	Error  string          `json:"error,omitempty"`
	Notice *NoticeResponse `json:"notice,omitempty"`
}

// ToggleSaveResponse is the HTTP response after a save toggle.
type ToggleSaveResponse struct {
	// ID is the toggled entity.
	ID string `json:"id"`
	// Saved is the new membership.
	Saved bool `json:"saved"`
	// Message is the confirmation text.
	Message string `json:"message"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func toEntityResponse(e entity.Entity, saved bool) EntityResponse {
	return EntityResponse{
		ID:              e.ID,
		Type:            string(e.Type),
		Title:           e.Title,
		Organization:    e.Organization,
		Location:        e.Location,
		Description:     e.Description,
		Skills:          e.Skills,
		Classifier:      e.Classifier,
		Duration:        e.Duration,
		Pay:             e.Pay,
		ExperienceYears: e.ExperienceYears,
		UpdatedAt:       e.UpdatedAt,
		Status:          string(e.Status),
		Views:           e.Views,
		Saved:           saved,
		Data:            e.Data,
	}
}

func toListingResponse(s listing.Snapshot) ListingResponse {
	saved := listing.NewSavedSet(s.SavedIDs...)
	items := make([]EntityResponse, 0, len(s.Items))
	for _, e := range s.Items {
		items = append(items, toEntityResponse(e, saved.Has(e.ID)))
	}

	resp := ListingResponse{
		Kind:       s.Kind.Plural(),
		View:       string(s.View),
		Items:      items,
		Page:       s.State.CurrentPage,
		PageSize:   s.PageSize,
		Total:      s.Total,
		TotalPages: s.TotalPages,
		Search:     s.State.SearchPhrase,
		Sort:       string(s.State.SortMode),
		Filters:    s.State.Filters,
		SavedIDs:   s.SavedIDs,
		Error:      s.Error,
	}
	if s.Notice != nil {
		resp.Notice = &NoticeResponse{
			EntityID: s.Notice.EntityID,
			Saved:    s.Notice.Saved,
			Message:  s.Notice.Message,
		}
	}
	return resp
}
