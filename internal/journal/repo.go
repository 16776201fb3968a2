package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/sidecar/internal/models"
)

const defaultLimit = 50

// Record appends one activity row. A zero CreatedAt is stamped with the
// current UTC time.
func (db *DB) Record(ctx context.Context, a models.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO activity (op, asset_path, sidecar_path, old_sidecar_path, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Op, a.AssetPath, a.SidecarPath, a.OldSidecarPath, a.Checksum, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the newest activity rows first.
func (db *DB) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, op, asset_path, sidecar_path, old_sidecar_path, checksum, created_at
		FROM activity
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return scanActivity(rows)
}

// ForAsset returns the newest rows recorded for one asset path.
func (db *DB) ForAsset(ctx context.Context, assetPath string, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, op, asset_path, sidecar_path, old_sidecar_path, checksum, created_at
		FROM activity
		WHERE asset_path = ?
		ORDER BY id DESC
		LIMIT ?
	`, assetPath, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: for asset: %w", err)
	}
	return scanActivity(rows)
}

func scanActivity(rows *sql.Rows) ([]models.Activity, error) {
	defer rows.Close()
	var out []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Op, &a.AssetPath, &a.SidecarPath, &a.OldSidecarPath, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
