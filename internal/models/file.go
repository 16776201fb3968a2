// Package models defines the domain types shared across the sidecar service.
package models

import (
	"path"
	"strings"
	"time"
)

// File is a handle to a vault file, identified by its vault-relative,
// slash-separated path.
type File struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Extension  string    `json:"extension"`
	ParentPath string    `json:"parent_path"`
	Size       int64     `json:"size,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// FileFromPath builds a File from a vault-relative path. It does not touch
// the store, so it works for paths that no longer exist (e.g. the old path
// captured before a rename).
func FileFromPath(p string) File {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	dir, name := path.Split(p)
	return File{
		Path:       p,
		Name:       name,
		Extension:  Extension(name),
		ParentPath: strings.TrimSuffix(dir, "/"),
	}
}

// Extension returns the text after the last dot of name, without the dot.
// Names without a dot, and dotfiles like ".env", have no extension.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}
