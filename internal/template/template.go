// Package template implements flat {{name}} placeholder substitution for
// sidecar naming patterns and note bodies.
package template

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/sidecar/internal/models"
)

// DateLayout is the layout used for the {{date}} variable.
const DateLayout = "2006-01-02"

// DefaultNamingPattern maps photo.png to photo.png.md.
const DefaultNamingPattern = "{{filename}}.md"

// DefaultSidecar is the body written into a new sidecar note.
const DefaultSidecar = `---
tags: []
description: ""
source: "{{filepath}}"
created: {{date}}
---

# {{filename}}
`

// Reserved variable names.
const (
	VarFilename  = "filename"
	VarFilepath  = "filepath"
	VarDate      = "date"
	VarExtension = "extension"
)

// Render replaces every {{key}} in tmpl with vars[key]. Placeholders without
// a matching key are left untouched, and substituted values are never
// expanded again.
func Render(tmpl string, vars map[string]string) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// SidecarVars returns the variables available to a sidecar body for f.
func SidecarVars(f models.File, now time.Time) map[string]string {
	return map[string]string{
		VarFilename:  f.Name,
		VarFilepath:  f.Path,
		VarDate:      now.Format(DateLayout),
		VarExtension: f.Extension,
	}
}
