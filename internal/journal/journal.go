package journal

import (
	"context"

	"github.com/starford/sidecar/internal/models"
)

// Journal records and lists sidecar mutations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Journal interface {
	Record(ctx context.Context, a models.Activity) error
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
	ForAsset(ctx context.Context, assetPath string, limit int) ([]models.Activity, error)
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
