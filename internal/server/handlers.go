package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/portal-listings/internal/entity"
	"github.com/maauso/portal-listings/internal/listing"
	"github.com/maauso/portal-listings/internal/portal"
	"github.com/maauso/portal-listings/internal/session"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	listings  *listing.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(listings *listing.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		listings:  listings,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// List handles GET /api/v1/{kind} requests.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r, true)
	if !ok {
		return
	}
	defer c.Close()

	writeJSON(w, http.StatusOK, toListingResponse(c.Snapshot()))
}

// UpdateState handles PATCH /api/v1/{kind}/state requests.
func (h *Handlers) UpdateState(w http.ResponseWriter, r *http.Request) {
	var req UpdateStateRequest
	if !h.decode(w, r, &req) {
		return
	}

	m := listing.Mutation{
		SearchPhrase:   req.Search,
		Filters:        listing.Filters(req.Filters),
		ReplaceFilters: req.ReplaceFilters,
	}
	if req.Sort != nil {
		mode, err := listing.ParseSortMode(*req.Sort)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SORT")
			return
		}
		m.SortMode = &mode
	}

	c, ok := h.open(w, r, true)
	if !ok {
		return
	}
	defer c.Close()

	if err := c.Update(r.Context(), m); err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(c.Snapshot()))
}

// SetPage handles PUT /api/v1/{kind}/page requests.
func (h *Handlers) SetPage(w http.ResponseWriter, r *http.Request) {
	var req SetPageRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, ok := h.open(w, r, true)
	if !ok {
		return
	}
	defer c.Close()

	if err := c.SetPage(r.Context(), req.Page); err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(c.Snapshot()))
}

// ClearState handles DELETE /api/v1/{kind}/state requests.
func (h *Handlers) ClearState(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r, true)
	if !ok {
		return
	}
	defer c.Close()

	if err := c.ClearFilters(r.Context()); err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(c.Snapshot()))
}

// ToggleSave handles POST /api/v1/{kind}/{id}/save requests.
func (h *Handlers) ToggleSave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "entity ID is required", "MISSING_ID")
		return
	}

	c, ok := h.open(w, r, false)
	if !ok {
		return
	}
	defer c.Close()

	// Membership is decided against the backend's current saved list.
	if err := c.RefreshSaved(r.Context()); err != nil && !errors.Is(err, listing.ErrNoUser) {
		h.log(r).Error("failed to load saved ids",
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to load saved items", "BACKEND_UNAVAILABLE")
		return
	}

	saved, err := c.ToggleSave(r.Context(), id)
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ToggleSaveResponse{
		ID:      id,
		Saved:   saved,
		Message: listing.NoticeMessage(c.Snapshot().Kind, saved),
	})
}

// GetEntity handles GET /api/v1/{kind}/{id} requests.
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "entity ID is required", "MISSING_ID")
		return
	}

	c, ok := h.open(w, r, true)
	if !ok {
		return
	}
	defer c.Close()

	if msg := c.Snapshot().Error; msg != "" {
		writeError(w, http.StatusBadGateway, msg, "FETCH_FAILED")
		return
	}

	e, err := c.Open(r.Context(), id)
	if err != nil {
		h.writeListingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(e, c.IsSaved(id)))
}

// log returns the handler logger tagged with the request id.
func (h *Handlers) log(r *http.Request) *slog.Logger {
	return requestLogger(r.Context(), h.logger)
}

// open resolves kind, view and session from the request and mounts a
// controller. When fetch is false only the persisted view state is restored.
// Anonymous callers keep view state only when they send X-Client-ID.
// It writes the error response itself and reports whether to continue.
func (h *Handlers) open(w http.ResponseWriter, r *http.Request, fetch bool) (*listing.Controller, bool) {
	kind, err := entity.ParseType(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "UNKNOWN_KIND")
		return nil, false
	}
	view, err := listing.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_VIEW")
		return nil, false
	}
	annotate(r, func(info *requestInfo) {
		info.kind, info.view = kind, view
	})

	sess, err := session.FromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		h.log(r).Warn("rejecting malformed token",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnauthorized, "malformed bearer token", "INVALID_TOKEN")
		return nil, false
	}
	if clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader)); clientID != "" && !sess.HasUser() {
		if err := h.validator.Var(clientID, "max=64,alphanum|uuid"); err != nil {
			writeError(w, http.StatusBadRequest, "client id must be alphanumeric or a UUID", "INVALID_CLIENT_ID")
			return nil, false
		}
		sess = sess.WithClientID(clientID)
	}
	annotate(r, func(info *requestInfo) {
		info.role, info.client = sess.Role, sess.ClientID != ""
	})

	var c *listing.Controller
	if fetch {
		c, err = h.listings.Open(r.Context(), sess, kind, view)
	} else {
		c, err = h.listings.Mount(r.Context(), sess, kind, view)
	}
	if err != nil {
		h.writeListingError(w, r, err)
		return nil, false
	}
	return c, true
}

// decode reads and validates a JSON body.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log(r).Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.log(r).Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeListingError maps listing and backend errors to HTTP responses.
func (h *Handlers) writeListingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, listing.ErrNoUser):
		writeError(w, http.StatusUnauthorized, "login required", "LOGIN_REQUIRED")
	case errors.Is(err, listing.ErrNotPermitted):
		writeError(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, listing.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, listing.ErrToggleInFlight):
		writeError(w, http.StatusConflict, err.Error(), "TOGGLE_IN_FLIGHT")
	case errors.Is(err, listing.ErrUnknownFilter),
		errors.Is(err, listing.ErrInvalidFilterValue),
		errors.Is(err, listing.ErrInvalidSortMode),
		errors.Is(err, listing.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_STATE")
	case errors.Is(err, portal.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "portal rejected credentials", "UNAUTHORIZED")
	case errors.Is(err, portal.ErrServerError),
		errors.Is(err, portal.ErrRateLimited),
		errors.Is(err, portal.ErrRequestFailed):
		writeError(w, http.StatusBadGateway, "portal request failed", "BACKEND_ERROR")
	default:
		h.log(r).Error("request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
