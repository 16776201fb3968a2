package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *service.Service
	panes  PaneRegistry
	events chan<- models.Event
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service, panes PaneRegistry, events chan<- models.Event) *Handler {
	return &Handler{svc: svc, panes: panes, events: events}
}

// vaultPath extracts the vault path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. images%2Fphoto.png).
func vaultPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op, path string, err error) {
	var verr validation.Errors
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
	case errors.Is(err, apperr.ErrNotAsset):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("path is a note, not an asset"))
	case errors.Is(err, apperr.ErrNoSidecarPath):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("asset has no extension, its sidecar would be an ordinary note"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("settings changed, reload and retry"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(verr.Error()))
	default:
		slog.Error("api: "+op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return req.Path, true
}

// CreateSidecar handles POST /api/sidecars.
//
//	@Summary		Create the sidecar of one asset
//	@Tags			sidecars
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Asset path"
//	@Success		201		{object}	CreateResult
//	@Success		200		{object}	CreateResult	"Sidecar already existed"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sidecars [post]
func (h *Handler) CreateSidecar(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	res, err := h.svc.CreateForPath(r.Context(), path)
	if err != nil {
		writeError(w, "create sidecar", path, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// BulkCreate handles POST /api/sidecars/bulk.
//
//	@Summary		Create every missing sidecar in scope
//	@Tags			sidecars
//	@Produce		json
//	@Success		200	{object}	BulkResponse
//	@Failure		500	{object}	BulkResponse
//	@Security		BearerAuth
//	@Router			/sidecars/bulk [post]
func (h *Handler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.BulkCreate(r.Context())
	if err != nil {
		slog.Error("api: bulk create failed", slog.Int("created", n), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, BulkResponse{Created: n, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, BulkResponse{Created: n})
}

// Lookup handles GET /api/sidecars/*.
//
//	@Summary		Classify a path and resolve its counterpart
//	@Tags			sidecars
//	@Produce		json
//	@Param			path	path		string	true	"Vault path"
//	@Success		200		{object}	LookupResult
//	@Security		BearerAuth
//	@Router			/sidecars/{path} [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	path := vaultPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Lookup(r.Context(), path)
	if err != nil {
		writeError(w, "lookup", path, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Open handles POST /api/open. The UI reports that a file was opened; the
// event is queued for the router.
//
//	@Summary		Report an opened file
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Opened file"
//	@Success		202		{object}	OpenResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	f := models.FileFromPath(path)
	if f.Path == ".." || strings.HasPrefix(f.Path, "../") || strings.HasPrefix(f.Path, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		return
	}
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("event router not running"))
		return
	}
	select {
	case h.events <- models.Event{Kind: models.EventOpened, Path: f.Path}:
		writeJSON(w, http.StatusAccepted, OpenResponse{Queued: true, Path: f.Path})
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorBody("event queue full"))
	}
}

// ListPanes handles GET /api/panes.
func (h *Handler) ListPanes(w http.ResponseWriter, _ *http.Request) {
	if h.panes == nil {
		writeJSON(w, http.StatusOK, PanesResponse{Panes: []models.Pane{}})
		return
	}
	writeJSON(w, http.StatusOK, PanesResponse{Panes: h.panes.Panes(), Focused: h.panes.Focused()})
}

// ClosePane handles DELETE /api/panes/{id}.
func (h *Handler) ClosePane(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.panes == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if err := h.panes.Close(id); err != nil {
		writeError(w, "close pane", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings. The ETag header carries the
// settings version for optimistic updates.
//
//	@Summary		Get the sidecar settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	sidecar.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("ETag", `"`+h.svc.SettingsVersion()+`"`)
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

// UpdateSettings handles PUT /api/settings. Fields missing from the body
// keep their current values.
//
//	@Summary		Save the sidecar settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string	false	"Settings version from ETag"
//	@Success		200		{object}	sidecar.Settings
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Settings()
	if !decodeJSON(w, r, &cfg) {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	saved, err := h.svc.UpdateSettings(r.Context(), cfg, ifMatch)
	if err != nil {
		writeError(w, "update settings", "", err)
		return
	}
	w.Header().Set("ETag", `"`+h.svc.SettingsVersion()+`"`)
	writeJSON(w, http.StatusOK, saved)
}

// Activity handles GET /api/activity.
//
//	@Summary		Recent sidecar mutations
//	@Tags			activity
//	@Produce		json
//	@Param			limit	query		int	false	"Max rows"
//	@Success		200		{object}	ActivityResponse
//	@Security		BearerAuth
//	@Router			/activity [get]
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.svc.Activity(r.Context(), limit)
	if err != nil {
		writeError(w, "activity", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityResponse{Activity: rows})
}
