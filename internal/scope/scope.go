// Package scope decides whether a vault path lies inside the watched folders.
package scope

import "strings"

// Folders is an ordered set of vault-relative folder prefixes. An empty set
// covers the whole vault.
type Folders []string

// ParseFolders splits comma-separated folder text, trimming whitespace and
// trailing slashes and discarding empty or duplicate entries.
func ParseFolders(csv string) Folders {
	var out Folders
	seen := make(map[string]struct{})
	for _, part := range strings.Split(csv, ",") {
		entry := normalize(part)
		if entry == "" {
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// Contains reports whether p is one of the folders or lies beneath one.
func (f Folders) Contains(p string) bool {
	return InScope(p, f)
}

// String joins the folders back into comma-separated text.
func (f Folders) String() string {
	return strings.Join(f, ", ")
}

// InScope reports whether p equals an entry of folders or starts with
// entry + "/". Empty folders means everything is in scope. Matching is a
// plain prefix test.
func InScope(p string, folders []string) bool {
	active := false
	for _, raw := range folders {
		entry := normalize(raw)
		if entry == "" {
			continue
		}
		active = true
		if p == entry || strings.HasPrefix(p, entry+"/") {
			return true
		}
	}
	return !active
}

func normalize(entry string) string {
	return strings.TrimRight(strings.TrimSpace(entry), "/")
}
