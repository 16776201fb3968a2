package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotAsset      = errors.New("not an asset")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNoSidecarPath = errors.New("no sidecar path")
)
