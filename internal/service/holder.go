package service

import (
	"sync/atomic"

	"github.com/starford/sidecar/internal/sidecar"
)

// StaticSettings is a SettingsHolder for commands that run without the
// event router.
type StaticSettings struct {
	v atomic.Pointer[sidecar.Settings]
}

// NewStaticSettings returns a holder seeded with cfg.
func NewStaticSettings(cfg sidecar.Settings) *StaticSettings {
	h := &StaticSettings{}
	h.v.Store(&cfg)
	return h
}

// Settings returns the current snapshot.
func (h *StaticSettings) Settings() sidecar.Settings {
	return *h.v.Load()
}

// UpdateSettings replaces the snapshot.
func (h *StaticSettings) UpdateSettings(cfg sidecar.Settings) {
	h.v.Store(&cfg)
}
