// Package watch turns filesystem notifications for a vault into lifecycle
// events.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/sidecar/internal/models"
)

// PairWindow is how long the old half of a rename waits for its new path.
const PairWindow = 200 * time.Millisecond

// Hidden reports whether any segment of the slash-separated path p starts
// with a dot.
func Hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}

type feed struct {
	root    string
	w       *fsnotify.Watcher
	out     chan<- models.Event
	logger  *slog.Logger
	files   map[string]struct{}
	dirs    map[string]struct{}
	pending pendingSet
}

// Feed watches root and every directory below it and sends lifecycle events
// to out until ctx is cancelled. Paths in events are relative to root and
// slash-separated. out is never closed by Feed.
//
// fsnotify reports only the old path of a rename; the new path arrives as a
// separate Create. The old path is held for PairWindow and paired with the
// next matching Create. An old path that finds no partner is reported as
// deleted, since it left the watched tree.
func Feed(ctx context.Context, root string, logger *slog.Logger, out chan<- models.Event) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	f := &feed{
		root:   root,
		w:      w,
		out:    out,
		logger: logger,
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
	}
	if err := f.addTree(root, nil); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Int("files", len(f.files)))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case now := <-timer.C:
			for _, r := range f.pending.expire(now, PairWindow) {
				f.expired(ctx, r)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			f.handle(ctx, ev)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}

		if at, ok := f.pending.next(PairWindow); ok {
			timer.Reset(time.Until(at))
		}
	}
}

func (f *feed) rel(abs string) (string, bool) {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	r = filepath.ToSlash(r)
	if Hidden(r) {
		return "", false
	}
	return r, true
}

func (f *feed) handle(ctx context.Context, ev fsnotify.Event) {
	rel, ok := f.rel(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Gone again before we looked.
			return
		}
		if info.IsDir() {
			f.createdDir(ctx, rel, ev.Name)
			return
		}
		if !info.Mode().IsRegular() {
			return
		}
		if r, ok := f.pending.take(rel, false); ok {
			delete(f.files, r.oldPath)
			f.files[rel] = struct{}{}
			f.emit(ctx, models.Event{Kind: models.EventRenamed, Path: rel, OldPath: r.oldPath})
			return
		}
		if _, known := f.files[rel]; known {
			// Already reported by the walk of a new directory.
			return
		}
		f.files[rel] = struct{}{}
		f.emit(ctx, models.Event{Kind: models.EventCreated, Path: rel})

	case ev.Op&fsnotify.Remove != 0:
		if _, isDir := f.dirs[rel]; isDir {
			f.forgetDir(ctx, rel, true)
			return
		}
		if _, known := f.files[rel]; !known {
			return
		}
		delete(f.files, rel)
		f.emit(ctx, models.Event{Kind: models.EventDeleted, Path: rel})

	case ev.Op&fsnotify.Rename != 0:
		_, isDir := f.dirs[rel]
		_, isFile := f.files[rel]
		if !isDir && !isFile {
			return
		}
		if isDir {
			_ = f.w.Remove(ev.Name)
		}
		f.pending.add(pendingRename{oldPath: rel, dir: isDir, at: time.Now()})
	}
}

// createdDir starts watching a new directory. If it is the new half of a
// directory rename, every file below it is reported as renamed; otherwise
// as created.
func (f *feed) createdDir(ctx context.Context, rel, abs string) {
	r, paired := f.pending.take(rel, true)
	var oldFiles map[string]struct{}
	if paired {
		oldFiles = f.forgetDir(ctx, r.oldPath, false)
	}

	var found []string
	if err := f.addTree(abs, &found); err != nil {
		f.logger.Warn("watcher: add new dir failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	sort.Strings(found)

	for _, p := range found {
		if paired {
			old := path.Join(r.oldPath, strings.TrimPrefix(p, rel+"/"))
			if _, ok := oldFiles[old]; ok {
				f.emit(ctx, models.Event{Kind: models.EventRenamed, Path: p, OldPath: old})
				continue
			}
		}
		f.emit(ctx, models.Event{Kind: models.EventCreated, Path: p})
	}
}

// forgetDir drops dir and everything below it from the known sets and
// returns the files it held. When report is set, each file is emitted as
// deleted.
func (f *feed) forgetDir(ctx context.Context, dir string, report bool) map[string]struct{} {
	prefix := dir + "/"
	gone := make(map[string]struct{})
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			gone[p] = struct{}{}
			delete(f.files, p)
		}
	}
	for d := range f.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(f.dirs, d)
			_ = f.w.Remove(filepath.Join(f.root, filepath.FromSlash(d)))
		}
	}
	if report {
		paths := make([]string, 0, len(gone))
		for p := range gone {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			f.emit(ctx, models.Event{Kind: models.EventDeleted, Path: p})
		}
	}
	return gone
}

// expired reports a rename whose new half never arrived.
func (f *feed) expired(ctx context.Context, r pendingRename) {
	f.logger.Debug("watcher: rename left tree", slog.String("path", r.oldPath))
	if r.dir {
		f.forgetDir(ctx, r.oldPath, true)
		return
	}
	if _, known := f.files[r.oldPath]; !known {
		return
	}
	delete(f.files, r.oldPath)
	f.emit(ctx, models.Event{Kind: models.EventDeleted, Path: r.oldPath})
}

// addTree watches abs and all directories below it, recording the files it
// finds. Relative paths of new files are appended to found when non-nil.
func (f *feed) addTree(abs string, found *[]string) error {
	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, ok := f.rel(p)
		if !ok && p != f.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := f.w.Add(p); err != nil {
				return err
			}
			if rel != "" {
				f.dirs[rel] = struct{}{}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, known := f.files[rel]; known {
			return nil
		}
		f.files[rel] = struct{}{}
		if found != nil {
			*found = append(*found, rel)
		}
		return nil
	})
}

func (f *feed) emit(ctx context.Context, ev models.Event) {
	f.logger.Debug("watcher: event", slog.String("kind", string(ev.Kind)), slog.String("path", ev.Path))
	select {
	case f.out <- ev:
	case <-ctx.Done():
	}
}
