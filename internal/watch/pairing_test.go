package watch

import (
	"testing"
	"time"
)

func TestPendingTakePrefersBestMatch(t *testing.T) {
	base := time.Now()
	var p pendingSet
	p.add(pendingRename{oldPath: "a/photo.png.md", at: base})
	p.add(pendingRename{oldPath: "a/photo.png", at: base.Add(time.Millisecond)})
	p.add(pendingRename{oldPath: "a/folder", dir: true, at: base.Add(2 * time.Millisecond)})

	r, ok := p.take("b/photo.png", false)
	if !ok || r.oldPath != "a/photo.png" {
		t.Fatalf("take = %+v, %v; want a/photo.png", r, ok)
	}
	r, ok = p.take("b/photo.png.md", false)
	if !ok || r.oldPath != "a/photo.png.md" {
		t.Fatalf("take = %+v, %v; want a/photo.png.md", r, ok)
	}
	if _, ok := p.take("b/other.png", false); ok {
		t.Error("file matched a pending directory rename")
	}
	if r, ok := p.take("b/folder", true); !ok || r.oldPath != "a/folder" {
		t.Errorf("take dir = %+v, %v", r, ok)
	}
	if p.len() != 0 {
		t.Errorf("len = %d, want 0", p.len())
	}
}

func TestPendingTakeOldestOnTie(t *testing.T) {
	base := time.Now()
	var p pendingSet
	p.add(pendingRename{oldPath: "x/one.pdf", at: base})
	p.add(pendingRename{oldPath: "x/two.pdf", at: base.Add(time.Millisecond)})

	r, ok := p.take("x/three.pdf", false)
	if !ok || r.oldPath != "x/one.pdf" {
		t.Errorf("take = %+v, %v; want oldest", r, ok)
	}
}

func TestPendingTakeSameDirectoryPrefersExtension(t *testing.T) {
	base := time.Now()
	var p pendingSet
	p.add(pendingRename{oldPath: "other/a.jpg", at: base})
	p.add(pendingRename{oldPath: "img/b.png", at: base.Add(time.Millisecond)})
	p.add(pendingRename{oldPath: "img/d.jpg", at: base.Add(2 * time.Millisecond)})

	r, _ := p.take("img/c.jpg", false)
	if r.oldPath != "img/d.jpg" {
		t.Errorf("take = %q, want img/d.jpg", r.oldPath)
	}
	r, _ = p.take("img/e.jpg", false)
	if r.oldPath != "img/b.png" {
		t.Errorf("take = %q, want img/b.png", r.oldPath)
	}
}

func TestPendingTakeSkipsUnrelatedPaths(t *testing.T) {
	var p pendingSet
	p.add(pendingRename{oldPath: "a/old.png", at: time.Now()})
	p.add(pendingRename{oldPath: "a/folder", dir: true, at: time.Now()})

	for _, tt := range []struct {
		path string
		dir  bool
	}{
		{"b/new.pdf", false},
		{"b/new.png", false},
		{"c/other", true},
	} {
		if r, ok := p.take(tt.path, tt.dir); ok {
			t.Errorf("take(%q) paired with %q", tt.path, r.oldPath)
		}
	}
	if p.len() != 2 {
		t.Errorf("len = %d, want 2", p.len())
	}
}

func TestPendingExpire(t *testing.T) {
	base := time.Now()
	var p pendingSet
	p.add(pendingRename{oldPath: "old", at: base})
	p.add(pendingRename{oldPath: "fresh", at: base.Add(150 * time.Millisecond)})

	at, ok := p.next(PairWindow)
	if !ok || !at.Equal(base.Add(PairWindow)) {
		t.Errorf("next = %v, %v", at, ok)
	}

	gone := p.expire(base.Add(PairWindow), PairWindow)
	if len(gone) != 1 || gone[0].oldPath != "old" {
		t.Errorf("expired = %+v", gone)
	}
	if p.len() != 1 {
		t.Errorf("len = %d, want 1", p.len())
	}
}

func TestHidden(t *testing.T) {
	tests := map[string]bool{
		"a/b.png":                  false,
		".obsidian/config":         true,
		"a/.sidecar-tmp-123":       true,
		"notes/.git/HEAD":          true,
		"notes/file.with.dots.png": false,
	}
	for p, want := range tests {
		if got := Hidden(p); got != want {
			t.Errorf("Hidden(%q) = %v, want %v", p, got, want)
		}
	}
}
