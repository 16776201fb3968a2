package watch

import (
	"path"
	"time"

	"github.com/starford/sidecar/internal/models"
)

// pendingRename is the old half of a rename still waiting for its new path.
type pendingRename struct {
	oldPath string
	dir     bool
	at      time.Time
}

// pendingSet holds pending renames in arrival order.
type pendingSet struct {
	items []pendingRename
}

func (p *pendingSet) add(r pendingRename) {
	p.items = append(p.items, r)
}

func (p *pendingSet) len() int { return len(p.items) }

// take removes and returns the pending rename that best matches newPath.
// A candidate must be of the same kind (file vs directory) and share the
// basename or the parent directory with newPath; anything else is left to
// expire, and newPath counts as created. A shared basename beats a shared
// directory with the same extension, which beats a shared directory alone.
// Ties go to the oldest.
func (p *pendingSet) take(newPath string, dir bool) (pendingRename, bool) {
	best, bestScore := -1, 0
	for i, r := range p.items {
		if r.dir != dir {
			continue
		}
		if s := matchScore(r.oldPath, newPath); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return pendingRename{}, false
	}
	r := p.items[best]
	p.items = append(p.items[:best], p.items[best+1:]...)
	return r, true
}

// expire removes and returns every pending rename older than window.
func (p *pendingSet) expire(now time.Time, window time.Duration) []pendingRename {
	var out []pendingRename
	kept := p.items[:0]
	for _, r := range p.items {
		if now.Sub(r.at) >= window {
			out = append(out, r)
			continue
		}
		kept = append(kept, r)
	}
	p.items = kept
	return out
}

// next returns when the oldest pending rename expires.
func (p *pendingSet) next(window time.Duration) (time.Time, bool) {
	if len(p.items) == 0 {
		return time.Time{}, false
	}
	return p.items[0].at.Add(window), true
}

// matchScore rates how likely newPath is the new name of oldPath. Zero
// means the two are unrelated.
func matchScore(oldPath, newPath string) int {
	oldBase, newBase := path.Base(oldPath), path.Base(newPath)
	switch {
	case oldBase == newBase:
		return 3
	case path.Dir(oldPath) != path.Dir(newPath):
		return 0
	case models.Extension(oldBase) == models.Extension(newBase):
		return 2
	default:
		return 1
	}
}
