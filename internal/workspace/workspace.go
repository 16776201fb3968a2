// Package workspace keeps the set of secondary panes the UI layer shows.
package workspace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/models"
)

// Notifier receives pane changes.
type Notifier interface {
	Notify(n models.Notice)
}

// Workspace is an in-memory pane registry. It is safe for concurrent use.
type Workspace struct {
	mu      sync.Mutex
	panes   []models.Pane
	focused string
	notify  Notifier
	now     func() time.Time
}

// New creates an empty workspace. notify may be nil.
func New(notify Notifier) *Workspace {
	return &Workspace{notify: notify, now: time.Now}
}

// Panes returns a snapshot of the open panes in opening order.
func (w *Workspace) Panes() []models.Pane {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Pane, len(w.panes))
	copy(out, w.panes)
	return out
}

// Focused returns the id of the focused pane, or "".
func (w *Workspace) Focused() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

// Focus activates the pane with the given id.
func (w *Workspace) Focus(id string) error {
	w.mu.Lock()
	p, ok := w.find(id)
	if ok {
		w.focused = id
	}
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("workspace: focus %s: %w", id, apperr.ErrNotFound)
	}
	w.publish(models.NoticePaneFocused, p.Path, p.ID)
	return nil
}

// OpenSplit opens path in a new secondary pane and focuses it.
func (w *Workspace) OpenSplit(path string) (models.Pane, error) {
	p := models.Pane{
		ID:       uuid.NewString(),
		Path:     path,
		OpenedAt: w.now(),
	}
	w.mu.Lock()
	w.panes = append(w.panes, p)
	w.focused = p.ID
	w.mu.Unlock()

	w.publish(models.NoticePaneOpened, p.Path, p.ID)
	return p, nil
}

// Repoint makes every pane showing oldPath show newPath instead and
// returns how many panes changed.
func (w *Workspace) Repoint(oldPath, newPath string) int {
	w.mu.Lock()
	var moved []models.Pane
	for i := range w.panes {
		if w.panes[i].Path == oldPath {
			w.panes[i].Path = newPath
			moved = append(moved, w.panes[i])
		}
	}
	w.mu.Unlock()

	for _, p := range moved {
		w.publish(models.NoticePaneMoved, p.Path, p.ID)
	}
	return len(moved)
}

// Close removes a pane.
func (w *Workspace) Close(id string) error {
	w.mu.Lock()
	idx := -1
	for i, p := range w.panes {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.mu.Unlock()
		return fmt.Errorf("workspace: close %s: %w", id, apperr.ErrNotFound)
	}
	p := w.panes[idx]
	w.panes = append(w.panes[:idx], w.panes[idx+1:]...)
	if w.focused == id {
		w.focused = ""
	}
	w.mu.Unlock()

	w.publish(models.NoticePaneClosed, p.Path, p.ID)
	return nil
}

func (w *Workspace) find(id string) (models.Pane, bool) {
	for _, p := range w.panes {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pane{}, false
}

func (w *Workspace) publish(kind, path, id string) {
	if w.notify == nil {
		return
	}
	w.notify.Notify(models.Notice{Kind: kind, Path: path, Message: id})
}
