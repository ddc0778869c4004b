// Package repo implements the data persistence layer for the tower backend,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the admin room listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

// RoomsStats returns aggregate metadata for the persisted rooms: the total
// number of rows and the maximum UpdatedAt timestamp among them.
//
// When no rooms exist, the returned count is 0 and maxUpdatedAt is nil.
func RoomsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RoomState{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
