// Package sidecar keeps sidecar notes in step with their source assets:
// creation, deletion, rename propagation and bulk reconciliation.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/checksum"
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/pathderive"
	"github.com/starford/sidecar/internal/storage"
	"github.com/starford/sidecar/internal/template"
)

const defaultBulkWorkers = 4

// Recorder receives every successful sidecar mutation.
type Recorder interface {
	Record(ctx context.Context, a models.Activity) error
}

// Store applies sidecar operations against a vault.
type Store struct {
	files   storage.Provider
	journal Recorder
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithJournal records successful mutations to r.
func WithJournal(r Recorder) Option {
	return func(s *Store) {
		s.journal = r
	}
}

// WithClock overrides the clock used for the {{date}} variable.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store over files.
func New(files storage.Provider, opts ...Option) *Store {
	s := &Store{
		files:  files,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find returns the derived sidecar path for assetPath and whether a file
// exists there.
func (s *Store) Find(_ context.Context, cfg Settings, assetPath string) (string, bool, error) {
	target, ok := cfg.Deriver().Derive(assetPath)
	if !ok {
		return target, false, nil
	}
	exists, err := s.files.Exists(target)
	if err != nil {
		return target, false, fmt.Errorf("sidecar: find %s: %w", assetPath, err)
	}
	return target, exists, nil
}

// Create writes the sidecar for f unless one already exists. It returns
// nil without error when there is nothing to do: f is not a source, its
// derived path would not classify as a sidecar, or that path is already
// taken. Existing files are never overwritten.
func (s *Store) Create(ctx context.Context, cfg Settings, f models.File) (*models.File, error) {
	if pathderive.Classify(f) != pathderive.Source {
		return nil, nil
	}
	target, ok := cfg.Deriver().Derive(f.Path)
	if !ok {
		return nil, nil
	}

	exists, err := s.files.Exists(target)
	if err != nil {
		return nil, fmt.Errorf("sidecar: create %s: %w", target, err)
	}
	if exists {
		return nil, nil
	}

	content := []byte(template.Render(cfg.Template, template.SidecarVars(f, s.now())))
	if err := s.files.Create(target, content); err != nil {
		// Lost a race with another writer; the existing file wins.
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("sidecar: create %s: %w", target, err)
	}

	s.logger.Debug("sidecar: created",
		slog.String("asset", f.Path),
		slog.String("sidecar", target),
		slog.String("checksum", checksum.Short(content)))
	s.record(ctx, models.Activity{
		Op:          models.OpCreated,
		AssetPath:   f.Path,
		SidecarPath: target,
		Checksum:    checksum.Sum(content),
	})

	created := models.FileFromPath(target)
	created.Size = int64(len(content))
	return &created, nil
}

// Delete removes the sidecar of the asset that lived at assetPath. It
// reports whether a file was removed; a missing sidecar is not an error.
func (s *Store) Delete(ctx context.Context, cfg Settings, assetPath string) (bool, error) {
	if pathderive.ClassifyPath(assetPath) != pathderive.Source {
		return false, nil
	}
	target, ok := cfg.Deriver().Derive(assetPath)
	if !ok {
		return false, nil
	}

	exists, err := s.files.Exists(target)
	if err != nil {
		return false, fmt.Errorf("sidecar: delete %s: %w", target, err)
	}
	if !exists {
		return false, nil
	}
	if err := s.files.Delete(target); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("sidecar: delete %s: %w", target, err)
	}

	s.logger.Debug("sidecar: deleted", slog.String("asset", assetPath), slog.String("sidecar", target))
	s.record(ctx, models.Activity{
		Op:          models.OpDeleted,
		AssetPath:   assetPath,
		SidecarPath: target,
	})
	return true, nil
}

// Rename follows an asset that moved from oldPath to f.Path: the sidecar's
// source field is rewritten and the sidecar is moved next to the asset. It
// reports whether a sidecar was moved. A sidecar whose content has no
// matching source field is still moved. Nothing happens when either end
// derives a path that is not a sidecar, so ordinary notes stay put.
func (s *Store) Rename(ctx context.Context, cfg Settings, f models.File, oldPath string) (bool, error) {
	if pathderive.Classify(f) != pathderive.Source {
		return false, nil
	}
	d := cfg.Deriver()
	oldSidecar, oldOK := d.Derive(oldPath)
	newSidecar, newOK := d.Derive(f.Path)
	if !oldOK || !newOK {
		return false, nil
	}

	exists, err := s.files.Exists(oldSidecar)
	if err != nil {
		return false, fmt.Errorf("sidecar: rename %s: %w", oldSidecar, err)
	}
	if !exists {
		return s.rewriteInPlace(ctx, f, oldPath, oldSidecar, newSidecar)
	}
	if newSidecar != oldSidecar {
		taken, err := s.files.Exists(newSidecar)
		if err != nil {
			return false, fmt.Errorf("sidecar: rename %s: %w", newSidecar, err)
		}
		if taken {
			return false, fmt.Errorf("sidecar: rename %s -> %s: %w", oldSidecar, newSidecar, apperr.ErrAlreadyExists)
		}
	}

	data, err := s.files.Read(oldSidecar)
	if err != nil {
		return false, fmt.Errorf("sidecar: rename %s: %w", oldSidecar, err)
	}
	// A failed move must leave the old sidecar as it was.
	if newSidecar != oldSidecar {
		if err := s.files.Move(oldSidecar, newSidecar); err != nil {
			return false, fmt.Errorf("sidecar: rename %s -> %s: %w", oldSidecar, newSidecar, err)
		}
	}
	content := data
	if updated, ok := RewriteSource(string(data), oldPath, f.Path); ok {
		content = []byte(updated)
		if err := s.files.Write(newSidecar, content); err != nil {
			return false, fmt.Errorf("sidecar: rewrite %s: %w", newSidecar, err)
		}
	}

	s.logger.Debug("sidecar: renamed",
		slog.String("asset", f.Path),
		slog.String("from", oldSidecar),
		slog.String("to", newSidecar))
	s.record(ctx, models.Activity{
		Op:             models.OpRenamed,
		AssetPath:      f.Path,
		SidecarPath:    newSidecar,
		OldSidecarPath: oldSidecar,
		Checksum:       checksum.Sum(content),
	})
	return true, nil
}

// rewriteInPlace covers a sidecar that already moved together with its
// asset, as happens when a whole folder is renamed. Only a sidecar whose
// source field still names oldPath is touched.
func (s *Store) rewriteInPlace(ctx context.Context, f models.File, oldPath, oldSidecar, newSidecar string) (bool, error) {
	if newSidecar == oldSidecar {
		return false, nil
	}
	data, err := s.files.Read(newSidecar)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sidecar: rename %s: %w", newSidecar, err)
	}
	updated, ok := RewriteSource(string(data), oldPath, f.Path)
	if !ok {
		return false, nil
	}
	if err := s.files.Write(newSidecar, []byte(updated)); err != nil {
		return false, fmt.Errorf("sidecar: rewrite %s: %w", newSidecar, err)
	}
	s.logger.Debug("sidecar: rewrote moved sidecar", slog.String("asset", f.Path), slog.String("sidecar", newSidecar))
	s.record(ctx, models.Activity{
		Op:             models.OpRenamed,
		AssetPath:      f.Path,
		SidecarPath:    newSidecar,
		OldSidecarPath: oldSidecar,
		Checksum:       checksum.Sum([]byte(updated)),
	})
	return true, nil
}

// BulkCreate creates missing sidecars for every source in files that lies
// in scope. It returns how many sidecars were created. Failures for single
// assets do not stop the sweep; they are joined into the returned error.
func (s *Store) BulkCreate(ctx context.Context, cfg Settings, files []models.File) (int, error) {
	d := cfg.Deriver()
	folders := cfg.Scope()

	seen := make(map[string]struct{}, len(files))
	todo := make([]models.File, 0, len(files))
	for _, f := range files {
		if pathderive.IsNote(f) || pathderive.Classify(f) == pathderive.Sidecar {
			continue
		}
		if !folders.Contains(f.Path) {
			continue
		}
		target, ok := d.Derive(f.Path)
		if !ok {
			continue
		}
		// Two assets deriving one sidecar path would race; first one wins.
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		todo = append(todo, f)
	}

	workers := cfg.BulkWorkers
	if workers <= 0 {
		workers = defaultBulkWorkers
	}

	var (
		created atomic.Int64
		mu      sync.Mutex
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(workers)
	for _, f := range todo {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := s.Create(ctx, cfg, f)
			if err != nil {
				s.logger.Warn("sidecar: bulk create failed", slog.String("asset", f.Path), slog.String("error", err.Error()))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			if out != nil {
				created.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	n := int(created.Load())
	s.logger.Info("sidecar: bulk create finished", slog.Int("candidates", len(todo)), slog.Int("created", n))
	return n, errors.Join(errs...)
}

func (s *Store) record(ctx context.Context, a models.Activity) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, a); err != nil {
		s.logger.Warn("sidecar: journal record failed", slog.String("op", a.Op), slog.String("error", err.Error()))
	}
}
