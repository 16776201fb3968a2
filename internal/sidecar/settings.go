package sidecar

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sidecar/internal/pathderive"
	"github.com/starford/sidecar/internal/scope"
	"github.com/starford/sidecar/internal/template"
)

// Settings is the user-facing sidecar configuration. A value is treated as
// an immutable snapshot and passed into every Store call.
type Settings struct {
	NamingPattern     string `yaml:"naming_pattern" json:"naming_pattern"`
	WatchedFolders    string `yaml:"watched_folders" json:"watched_folders"`
	Template          string `yaml:"template" json:"template"`
	AutoDeleteSidecar bool   `yaml:"auto_delete" json:"auto_delete"`
	AutoCreateOnNew   bool   `yaml:"auto_create" json:"auto_create"`
	AutoOpenSidecar   bool   `yaml:"auto_open" json:"auto_open"`
	BulkWorkers       int    `yaml:"bulk_workers" json:"bulk_workers"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		NamingPattern:     template.DefaultNamingPattern,
		Template:          template.DefaultSidecar,
		AutoDeleteSidecar: true,
		AutoCreateOnNew:   true,
		AutoOpenSidecar:   false,
		BulkWorkers:       4,
	}
}

var errPatternExtension = errors.New("must end with ." + pathderive.NoteExtension)

// Validate validates the sidecar settings. The naming pattern must keep
// producing note paths, otherwise sidecars stop being recognisable.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.NamingPattern,
			validation.Required,
			validation.By(func(any) error {
				if !strings.Contains(s.NamingPattern, "{{"+template.VarFilename+"}}") {
					return errors.New("must contain {{filename}}")
				}
				if !strings.HasSuffix(s.NamingPattern, "."+pathderive.NoteExtension) {
					return errPatternExtension
				}
				return nil
			}),
		),
		validation.Field(&s.BulkWorkers, validation.Min(1), validation.Max(64)),
	)
}

// Deriver returns the path deriver for the naming pattern.
func (s Settings) Deriver() pathderive.Deriver {
	return pathderive.New(s.NamingPattern)
}

// Scope returns the parsed watched folders.
func (s Settings) Scope() scope.Folders {
	return scope.ParseFolders(s.WatchedFolders)
}
