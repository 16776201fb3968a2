// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/sidecar/internal/models"

// Provider is the interface for vault file operations. All paths are
// vault-relative and slash-separated.
type Provider interface {
	// List returns every non-hidden file under dir.
	List(dir string) ([]models.File, error)
	// Stat returns the file at path, or apperr.ErrNotFound.
	Stat(path string) (models.File, error)
	// Exists reports whether a file exists at path.
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, replacing any existing file.
	Write(path string, content []byte) error
	// Create writes content to a new file; apperr.ErrAlreadyExists if path is taken.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath; apperr.ErrAlreadyExists if newPath is taken.
	Move(oldPath, newPath string) error
}
