// Package pathderive maps asset paths to sidecar paths and classifies vault
// files as sources, sidecars, or neither.
package pathderive

import (
	"strings"

	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/template"
)

// NoteExtension is the extension of note files in the vault, without the dot.
const NoteExtension = "md"

// Kind is the role a file plays in source/sidecar pairing.
type Kind int

const (
	Irrelevant Kind = iota
	Source
	Sidecar
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Sidecar:
		return "sidecar"
	default:
		return "irrelevant"
	}
}

// Classify reports the role of f. Non-note files are sources. A note is a
// sidecar when its stem still carries an extension-like dot (photo.png.md),
// otherwise it is an ordinary note.
func Classify(f models.File) Kind {
	if f.Extension != NoteExtension {
		return Source
	}
	stem := strings.TrimSuffix(f.Name, "."+NoteExtension)
	if strings.Contains(stem, ".") {
		return Sidecar
	}
	return Irrelevant
}

// ClassifyPath is Classify for a raw vault-relative path.
func ClassifyPath(p string) Kind {
	return Classify(models.FileFromPath(p))
}

// IsNote reports whether f carries the note extension.
func IsNote(f models.File) bool {
	return f.Extension == NoteExtension
}

// Deriver computes sidecar paths from a naming pattern.
type Deriver struct {
	pattern string
}

// New returns a Deriver for the given naming pattern. An empty pattern
// falls back to template.DefaultNamingPattern.
func New(pattern string) Deriver {
	if pattern == "" {
		pattern = template.DefaultNamingPattern
	}
	return Deriver{pattern: pattern}
}

// Pattern returns the naming pattern in use.
func (d Deriver) Pattern() string {
	return d.pattern
}

// SidecarPath returns the sidecar path for the asset at assetPath. The asset
// does not have to exist.
func (d Deriver) SidecarPath(assetPath string) string {
	f := models.FileFromPath(assetPath)
	name := template.Render(d.pattern, map[string]string{template.VarFilename: f.Name})
	return join(f.ParentPath, name)
}

// SidecarPathFor is SidecarPath for a file handle.
func (d Deriver) SidecarPathFor(f models.File) string {
	return d.SidecarPath(f.Path)
}

// Derive is SidecarPath restricted to paths that classify back as a
// sidecar. An asset without an extension (LICENSE) derives LICENSE.md,
// which is an ordinary note; ok is false for such paths.
func (d Deriver) Derive(assetPath string) (string, bool) {
	target := d.SidecarPath(assetPath)
	if ClassifyPath(target) != Sidecar {
		return target, false
	}
	return target, true
}

// SourcePath inverts SidecarPath. It only works for patterns that contain
// exactly one {{filename}} placeholder and no directory separator; ok is
// false otherwise, or when sidecarPath does not fit the pattern.
func (d Deriver) SourcePath(sidecarPath string) (string, bool) {
	placeholder := "{{" + template.VarFilename + "}}"
	if strings.Count(d.pattern, placeholder) != 1 || strings.Contains(d.pattern, "/") {
		return "", false
	}
	prefix, suffix, _ := strings.Cut(d.pattern, placeholder)

	f := models.FileFromPath(sidecarPath)
	if len(f.Name) <= len(prefix)+len(suffix) ||
		!strings.HasPrefix(f.Name, prefix) || !strings.HasSuffix(f.Name, suffix) {
		return "", false
	}
	return join(f.ParentPath, f.Name[len(prefix):len(f.Name)-len(suffix)]), true
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
