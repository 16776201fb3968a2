package workspace

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/models"
)

type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) Notify(n models.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind+":"+n.Path)
}

func TestOpenFocusClose(t *testing.T) {
	rec := &recorder{}
	w := New(rec)

	a, err := w.OpenSplit("a.png.md")
	if err != nil {
		t.Fatalf("OpenSplit: %v", err)
	}
	b, _ := w.OpenSplit("b.png.md")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("pane ids should be unique: %q %q", a.ID, b.ID)
	}
	if w.Focused() != b.ID {
		t.Errorf("focused = %q, want newest pane", w.Focused())
	}

	if err := w.Focus(a.ID); err != nil {
		t.Fatalf("Focus: %v", err)
	}
	if err := w.Close(a.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Focused() != "" {
		t.Errorf("closing the focused pane should clear focus")
	}

	panes := w.Panes()
	if len(panes) != 1 || panes[0].ID != b.ID {
		t.Errorf("Panes = %+v", panes)
	}

	want := []string{
		"pane.opened:a.png.md",
		"pane.opened:b.png.md",
		"pane.focused:a.png.md",
		"pane.closed:a.png.md",
	}
	if diff := cmp.Diff(want, rec.kinds); diff != "" {
		t.Errorf("notices (-want +got):\n%s", diff)
	}
}

func TestUnknownPane(t *testing.T) {
	w := New(nil)
	if err := w.Focus("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Focus = %v, want ErrNotFound", err)
	}
	if err := w.Close("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Close = %v, want ErrNotFound", err)
	}
}

func TestRepoint(t *testing.T) {
	rec := &recorder{}
	w := New(rec)
	a, _ := w.OpenSplit("old/a.png.md")
	_, _ = w.OpenSplit("other.png.md")

	if n := w.Repoint("old/a.png.md", "new/a.png.md"); n != 1 {
		t.Fatalf("Repoint = %d, want 1", n)
	}
	if n := w.Repoint("missing.md", "x.md"); n != 0 {
		t.Errorf("Repoint(missing) = %d, want 0", n)
	}

	var paths []string
	for _, p := range w.Panes() {
		paths = append(paths, p.Path)
	}
	if diff := cmp.Diff([]string{"new/a.png.md", "other.png.md"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if w.Panes()[0].ID != a.ID {
		t.Error("repoint changed the pane id")
	}
	rec.mu.Lock()
	last := rec.kinds[len(rec.kinds)-1]
	rec.mu.Unlock()
	if last != models.NoticePaneMoved+":new/a.png.md" {
		t.Errorf("last notice = %q", last)
	}
}
