package models

import "time"

// EventKind names a file lifecycle notification.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
	EventRenamed EventKind = "renamed"
	EventOpened  EventKind = "opened"
)

// Event is a single lifecycle notification for one vault path.
// OldPath is only set for EventRenamed.
type Event struct {
	Kind    EventKind `json:"kind"`
	Path    string    `json:"path"`
	OldPath string    `json:"old_path,omitempty"`
}

// Notice kinds published to the UI layer.
const (
	NoticeCreated     = "sidecar.created"
	NoticeDeleted     = "sidecar.deleted"
	NoticeRenamed     = "sidecar.renamed"
	NoticeError       = "sidecar.error"
	NoticePaneOpened  = "pane.opened"
	NoticePaneFocused = "pane.focused"
	NoticePaneClosed  = "pane.closed"
	NoticePaneMoved   = "pane.moved"
)

// Notice is a user-visible notification.
type Notice struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Message string `json:"message,omitempty"`
}

// Pane is a secondary view showing one vault file.
type Pane struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	OpenedAt time.Time `json:"opened_at"`
}

// Activity ops recorded in the journal.
const (
	OpCreated = "created"
	OpDeleted = "deleted"
	OpRenamed = "renamed"
)

// Activity is one recorded sidecar mutation.
type Activity struct {
	ID             int64     `json:"id"`
	Op             string    `json:"op"`
	AssetPath      string    `json:"asset_path"`
	SidecarPath    string    `json:"sidecar_path"`
	OldSidecarPath string    `json:"old_sidecar_path,omitempty"`
	Checksum       string    `json:"checksum,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
