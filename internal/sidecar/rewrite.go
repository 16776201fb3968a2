package sidecar

import (
	"regexp"
	"strings"
)

// RewriteSource replaces the first "source:" line whose value is oldPath,
// optionally quoted, with `source: "<newPath>"`. ok is false when no line
// matches; content is then returned unchanged.
func RewriteSource(content, oldPath, newPath string) (string, bool) {
	re := regexp.MustCompile(`(?m)^([ \t]*)source:[ \t]*["']?` + regexp.QuoteMeta(oldPath) + `["']?[ \t]*(\r?)$`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content, false
	}
	indent := content[loc[2]:loc[3]]
	cr := content[loc[4]:loc[5]]

	var b strings.Builder
	b.Grow(len(content) + len(newPath))
	b.WriteString(content[:loc[0]])
	b.WriteString(indent)
	b.WriteString(`source: "`)
	b.WriteString(newPath)
	b.WriteString(`"`)
	b.WriteString(cr)
	b.WriteString(content[loc[1]:])
	return b.String(), true
}
