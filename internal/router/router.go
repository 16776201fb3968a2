// Package router turns vault lifecycle events into sidecar operations under
// the active settings.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/pathderive"
	"github.com/starford/sidecar/internal/sidecar"
)

// Sidecars is the subset of sidecar.Store the router drives.
type Sidecars interface {
	Create(ctx context.Context, cfg sidecar.Settings, f models.File) (*models.File, error)
	Delete(ctx context.Context, cfg sidecar.Settings, assetPath string) (bool, error)
	Rename(ctx context.Context, cfg sidecar.Settings, f models.File, oldPath string) (bool, error)
	Find(ctx context.Context, cfg sidecar.Settings, assetPath string) (string, bool, error)
}

// Panes is the view manager used to show a sidecar next to its asset.
type Panes interface {
	Panes() []models.Pane
	Focus(id string) error
	OpenSplit(path string) (models.Pane, error)
	Repoint(oldPath, newPath string) int
}

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(n models.Notice)
}

// Router dispatches lifecycle events. It keeps no per-asset state.
type Router struct {
	sidecars Sidecars
	panes    Panes
	notify   Notifier
	logger   *slog.Logger
	settings atomic.Pointer[sidecar.Settings]
}

// New creates a router. panes and notify may be nil.
func New(sidecars Sidecars, cfg sidecar.Settings, panes Panes, notify Notifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{sidecars: sidecars, panes: panes, notify: notify, logger: logger}
	r.settings.Store(&cfg)
	return r
}

// Settings returns the current settings snapshot.
func (r *Router) Settings() sidecar.Settings {
	return *r.settings.Load()
}

// UpdateSettings swaps in a new settings snapshot. Events already being
// dispatched keep the snapshot they started with.
func (r *Router) UpdateSettings(cfg sidecar.Settings) {
	r.settings.Store(&cfg)
}

// Run dispatches events one at a time until ctx is done or events is
// closed. Dispatch failures are reported and never stop the loop.
func (r *Router) Run(ctx context.Context, events <-chan models.Event) error {
	r.logger.Info("router: started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router: stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				r.logger.Info("router: event feed closed")
				return nil
			}
			if err := r.Dispatch(ctx, ev); err != nil {
				r.logger.Warn("router: dispatch failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
				r.publish(models.NoticeError, ev.Path, err.Error())
			}
		}
	}
}

// Dispatch handles a single event under the current settings.
func (r *Router) Dispatch(ctx context.Context, ev models.Event) error {
	cfg := r.Settings()
	f := models.FileFromPath(ev.Path)

	switch ev.Kind {
	case models.EventCreated:
		if !cfg.AutoCreateOnNew || pathderive.Classify(f) != pathderive.Source || !cfg.Scope().Contains(f.Path) {
			return nil
		}
		created, err := r.sidecars.Create(ctx, cfg, f)
		if err != nil {
			return err
		}
		if created != nil {
			r.publish(models.NoticeCreated, created.Path, "created sidecar for "+f.Path)
		}
		return nil

	case models.EventDeleted:
		if !cfg.AutoDeleteSidecar || pathderive.Classify(f) != pathderive.Source {
			return nil
		}
		target := cfg.Deriver().SidecarPathFor(f)
		deleted, err := r.sidecars.Delete(ctx, cfg, f.Path)
		if err != nil {
			return err
		}
		if deleted {
			r.publish(models.NoticeDeleted, target, "deleted sidecar of "+f.Path)
		}
		return nil

	case models.EventRenamed:
		if pathderive.Classify(f) != pathderive.Source {
			return nil
		}
		if ev.OldPath == "" {
			return fmt.Errorf("router: rename of %s without old path", f.Path)
		}
		moved, err := r.sidecars.Rename(ctx, cfg, f, ev.OldPath)
		if err != nil {
			return err
		}
		if moved {
			d := cfg.Deriver()
			oldSidecar, newSidecar := d.SidecarPath(ev.OldPath), d.SidecarPathFor(f)
			if r.panes != nil && oldSidecar != newSidecar {
				r.panes.Repoint(oldSidecar, newSidecar)
			}
			r.publish(models.NoticeRenamed, newSidecar, "followed "+ev.OldPath+" -> "+f.Path)
		}
		return nil

	case models.EventOpened:
		if !cfg.AutoOpenSidecar || pathderive.Classify(f) != pathderive.Source {
			return nil
		}
		_, err := r.OpenInSplit(ctx, cfg, f.Path)
		return err

	default:
		return fmt.Errorf("router: unknown event kind %q", ev.Kind)
	}
}

// errNoPanes is returned when OpenInSplit has no pane manager.
var errNoPanes = errors.New("router: no pane manager")

// OpenInSplit shows the sidecar of assetPath in a secondary pane. A pane
// already showing it is focused; otherwise a new split is opened. It
// returns nil when the asset has no sidecar.
func (r *Router) OpenInSplit(ctx context.Context, cfg sidecar.Settings, assetPath string) (*models.Pane, error) {
	if r.panes == nil {
		return nil, errNoPanes
	}
	target, ok, err := r.sidecars.Find(ctx, cfg, assetPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	for _, p := range r.panes.Panes() {
		if p.Path == target {
			if err := r.panes.Focus(p.ID); err != nil {
				return nil, err
			}
			return &p, nil
		}
	}

	p, err := r.panes.OpenSplit(target)
	if err != nil {
		return nil, fmt.Errorf("router: open split %s: %w", target, err)
	}
	return &p, nil
}

func (r *Router) publish(kind, path, msg string) {
	if r.notify == nil {
		return
	}
	r.notify.Notify(models.Notice{Kind: kind, Path: path, Message: msg})
}
