package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/sidecar/internal/sidecar"
	"github.com/starford/sidecar/internal/template"
)

// FormatGuide describes sidecar naming and content under cfg for LLM
// consumers.
func FormatGuide(cfg sidecar.Settings) string {
	folders := cfg.Scope().String()
	if folders == "" {
		folders = "the whole vault"
	}
	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = template.DefaultSidecar
	}

	var b strings.Builder
	b.WriteString("# Sidecar Format\n\n")
	b.WriteString("Every asset (any file that is not a `.md` note) may have one sidecar note holding its metadata.\n\n")
	b.WriteString("## Naming\n\n")
	fmt.Fprintf(&b, "- Pattern: `%s`, where `{{filename}}` is the asset's full file name including its extension.\n", cfg.Deriver().Pattern())
	b.WriteString("- The sidecar lives in the same folder as its asset: `images/photo.png` has `" +
		cfg.Deriver().SidecarPath("images/photo.png") + "`.\n")
	b.WriteString("- A note whose name still carries an inner extension (`photo.png.md`) is treated as a sidecar, never as a regular note.\n\n")
	b.WriteString("## Lifecycle\n\n")
	fmt.Fprintf(&b, "- Automatic creation for new assets: %s (scope: %s).\n", onOff(cfg.AutoCreateOnNew), folders)
	fmt.Fprintf(&b, "- Automatic deletion with the asset: %s.\n", onOff(cfg.AutoDeleteSidecar))
	b.WriteString("- Renaming or moving an asset always moves its sidecar and rewrites the `source:` field.\n\n")
	b.WriteString("## Template\n\n")
	b.WriteString("Variables: `{{filename}}`, `{{filepath}}`, `{{extension}}`, `{{date}}` (YYYY-MM-DD). Unknown placeholders are kept verbatim.\n\n")
	b.WriteString("```markdown\n")
	b.WriteString(strings.TrimRight(tmpl, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
