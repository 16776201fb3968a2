package api

import (
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/service"
)

// PathRequest is the request body for endpoints that act on one vault path.
type PathRequest struct {
	Path string `json:"path" example:"images/photo.png" validate:"required"`
}

// CreateResult is the outcome of a manual sidecar creation (aliased from the domain layer).
type CreateResult = service.CreateResult

// LookupResult describes a path and its counterpart (aliased from the domain layer).
type LookupResult = service.LookupResult

// BulkResponse reports a bulk sweep.
type BulkResponse struct {
	Created int    `json:"created" example:"12" validate:"required"`
	Error   string `json:"error,omitempty"`
}

// OpenResponse acknowledges a queued open event.
type OpenResponse struct {
	Queued bool   `json:"queued" validate:"required"`
	Path   string `json:"path" example:"images/photo.png" validate:"required"`
}

// PanesResponse lists open secondary panes.
type PanesResponse struct {
	Panes   []models.Pane `json:"panes" validate:"required"`
	Focused string        `json:"focused,omitempty"`
}

// ActivityResponse wraps recent sidecar mutations.
type ActivityResponse struct {
	Activity []models.Activity `json:"activity" validate:"required"`
}
