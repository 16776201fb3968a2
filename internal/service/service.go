// Package service is the command surface shared by the HTTP API, the MCP
// server and the one-shot CLI commands.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/checksum"
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/parser"
	"github.com/starford/sidecar/internal/pathderive"
	"github.com/starford/sidecar/internal/sidecar"
	"github.com/starford/sidecar/internal/storage"
	pkgconfig "github.com/starford/sidecar/pkg/config"
)

const (
	defaultActivityLimit = 50
	historyLimit         = 10
)

// SettingsHolder owns the active settings snapshot. The event router is
// the holder while the server runs.
type SettingsHolder interface {
	Settings() sidecar.Settings
	UpdateSettings(cfg sidecar.Settings)
}

// ActivityLog is the read side of the activity journal.
type ActivityLog interface {
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
	ForAsset(ctx context.Context, assetPath string, limit int) ([]models.Activity, error)
}

// Service coordinates the vault, the sidecar store and the settings.
type Service struct {
	files        storage.Provider
	store        *sidecar.Store
	settings     SettingsHolder
	journal      ActivityLog
	settingsFile string
	logger       *slog.Logger

	// saveMu serialises settings saves so file and snapshot agree.
	saveMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithJournal enables the activity listing.
func WithJournal(j ActivityLog) Option {
	return func(s *Service) { s.journal = j }
}

// WithSettingsFile persists settings updates to path.
func WithSettingsFile(path string) Option {
	return func(s *Service) { s.settingsFile = path }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(files storage.Provider, store *sidecar.Store, settings SettingsHolder, opts ...Option) *Service {
	s := &Service{
		files:    files,
		store:    store,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult reports the outcome of a manual create.
type CreateResult struct {
	Asset   string       `json:"asset"`
	Sidecar string       `json:"sidecar"`
	Created bool         `json:"created"`
	File    *models.File `json:"file,omitempty"`
}

// CreateForPath creates the sidecar of the asset at path. It fails with
// apperr.ErrNotFound when the file is absent and apperr.ErrNotAsset when it
// is a note, and apperr.ErrNoSidecarPath when the derived path would not be
// read back as a sidecar (an asset without an extension). An existing
// sidecar is left alone and reported with Created false. Folder scope does
// not apply to manual creation.
func (s *Service) CreateForPath(ctx context.Context, path string) (*CreateResult, error) {
	f, err := s.files.Stat(path)
	if err != nil {
		return nil, err
	}
	if pathderive.Classify(f) != pathderive.Source {
		return nil, fmt.Errorf("service: %s: %w", path, apperr.ErrNotAsset)
	}

	cfg := s.settings.Settings()
	target, ok := cfg.Deriver().Derive(f.Path)
	if !ok {
		return nil, fmt.Errorf("service: %s -> %s: %w", path, target, apperr.ErrNoSidecarPath)
	}
	res := &CreateResult{Asset: f.Path, Sidecar: target}
	created, err := s.store.Create(ctx, cfg, f)
	if err != nil {
		return nil, err
	}
	if created != nil {
		res.Created = true
		res.File = created
	}
	return res, nil
}

// BulkCreate creates every missing in-scope sidecar in the vault and
// returns how many were written. Partial failures are returned alongside
// the count.
func (s *Service) BulkCreate(ctx context.Context) (int, error) {
	files, err := s.files.List("")
	if err != nil {
		return 0, err
	}
	return s.store.BulkCreate(ctx, s.settings.Settings(), files)
}

// SidecarInfo is the parsed view of a sidecar note.
type SidecarInfo struct {
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	Source      string         `json:"source,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Checksum    string         `json:"checksum"`
}

// LookupResult describes a vault path and its counterpart.
type LookupResult struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	// SidecarPath is set for sources and sidecars.
	SidecarPath string `json:"sidecar_path,omitempty"`
	// SourcePath is set for sidecars when the naming pattern is invertible.
	SourcePath string `json:"source_path,omitempty"`
	// Exists reports whether the counterpart exists.
	Exists  bool         `json:"exists"`
	Sidecar *SidecarInfo `json:"sidecar,omitempty"`
	// History lists the latest journaled mutations for a source.
	History []models.Activity `json:"history,omitempty"`
}

// Lookup classifies path and resolves its counterpart under the current
// naming pattern. A source's sidecar and a sidecar itself are parsed.
func (s *Service) Lookup(ctx context.Context, path string) (*LookupResult, error) {
	f := models.FileFromPath(path)
	if f.Path == "" || f.Path == "." {
		return nil, fmt.Errorf("service: lookup: empty path: %w", apperr.ErrNotFound)
	}
	cfg := s.settings.Settings()
	kind := pathderive.Classify(f)
	res := &LookupResult{Path: f.Path, Kind: kind.String()}

	switch kind {
	case pathderive.Source:
		target, ok, err := s.store.Find(ctx, cfg, f.Path)
		if err != nil {
			return nil, err
		}
		res.SidecarPath, res.Exists = target, ok
		if ok {
			if res.Sidecar, err = s.readSidecar(target); err != nil {
				return nil, err
			}
		}
		if s.journal != nil {
			if res.History, err = s.journal.ForAsset(ctx, f.Path, historyLimit); err != nil {
				return nil, err
			}
		}

	case pathderive.Sidecar:
		res.SidecarPath = f.Path
		if src, ok := cfg.Deriver().SourcePath(f.Path); ok {
			res.SourcePath = src
			exists, err := s.files.Exists(src)
			if err != nil {
				return nil, err
			}
			res.Exists = exists
		}
		info, err := s.readSidecar(f.Path)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		res.Sidecar = info
	}
	return res, nil
}

func (s *Service) readSidecar(path string) (*SidecarInfo, error) {
	data, err := s.files.Read(path)
	if err != nil {
		return nil, err
	}
	parsed, err := parser.Parse(data)
	if err != nil {
		// Hand-edited sidecars may carry broken YAML; report what we can.
		s.logger.Debug("service: sidecar frontmatter unreadable", slog.String("path", path), slog.String("error", err.Error()))
		return &SidecarInfo{Path: path, Tags: []string{}, Checksum: checksum.Sum(data)}, nil
	}
	return &SidecarInfo{
		Path:        path,
		Title:       parsed.Title,
		Source:      parsed.Source,
		Description: parsed.Description,
		Tags:        nonNilSlice(parsed.Tags),
		Frontmatter: parsed.Frontmatter,
		Checksum:    checksum.Sum(data),
	}, nil
}

// Settings returns the active settings.
func (s *Service) Settings() sidecar.Settings {
	return s.settings.Settings()
}

// SettingsVersion returns a checksum identifying the active settings.
func (s *Service) SettingsVersion() string {
	return settingsVersion(s.settings.Settings())
}

func settingsVersion(cfg sidecar.Settings) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

// UpdateSettings validates cfg, persists it when a settings file is
// configured and makes it the active snapshot. When ifMatch is non-empty it
// must equal the current SettingsVersion, otherwise apperr.ErrConflict is
// returned. Invalid settings leave the active snapshot untouched.
func (s *Service) UpdateSettings(_ context.Context, cfg sidecar.Settings, ifMatch string) (sidecar.Settings, error) {
	if err := cfg.Validate(); err != nil {
		return sidecar.Settings{}, fmt.Errorf("service: invalid settings: %w", err)
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if ifMatch != "" && ifMatch != s.SettingsVersion() {
		return sidecar.Settings{}, fmt.Errorf("service: settings changed: %w", apperr.ErrConflict)
	}

	if s.settingsFile != "" {
		if err := pkgconfig.Save(s.settingsFile, &cfg); err != nil {
			return sidecar.Settings{}, fmt.Errorf("service: save settings: %w", err)
		}
	}
	s.settings.UpdateSettings(cfg)
	s.logger.Info("service: settings updated",
		slog.String("naming_pattern", cfg.NamingPattern),
		slog.String("watched_folders", cfg.Scope().String()),
		slog.Bool("auto_create", cfg.AutoCreateOnNew),
		slog.Bool("auto_delete", cfg.AutoDeleteSidecar),
		slog.Bool("auto_open", cfg.AutoOpenSidecar))
	return cfg, nil
}

// Activity returns the most recent sidecar mutations, newest first.
func (s *Service) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	if s.journal == nil {
		return []models.Activity{}, nil
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	rows, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(rows), nil
}

// LoadSettings overlays the settings file at path onto base. A missing
// file yields base unchanged. The file is read without env expansion.
func LoadSettings(path string, base sidecar.Settings) (sidecar.Settings, error) {
	cfg := base
	if err := pkgconfig.LoadRaw(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return sidecar.Settings{}, err
	}
	return cfg, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
