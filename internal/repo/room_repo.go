// Package repo implements the data persistence layer for the tower backend,
// backed by GORM. This file provides the two durable regions the registry
// depends on: room records (one row per tracked room holding the serialized
// tower) and the room index (which rooms to reload after a restart).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a room record is not found, LoadRoom returns gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience); callers treat an
//     absent row as a freshly initialized state.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// SaveRoom writes the full room record, inserting or overwriting the row in
// one statement. Every controller mutation goes through here before the
// in-memory state is updated (write-through, never write-behind).
func SaveRoom(ctx context.Context, db *gorm.DB, s *domain.RoomState) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			UpdateAll: true,
		}).
		Create(s).Error
}

// LoadRoom fetches the record for roomID, or ErrNotFound if absent.
func LoadRoom(ctx context.Context, db *gorm.DB, roomID int64) (*domain.RoomState, error) {
	var s domain.RoomState
	if err := db.WithContext(ctx).First(&s, "room_id = ?", roomID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteRoom removes the record for roomID. Deleting an absent row is not an
// error; the daily reset must be idempotent.
func DeleteRoom(ctx context.Context, db *gorm.DB, roomID int64) error {
	return db.WithContext(ctx).Delete(&domain.RoomState{}, "room_id = ?", roomID).Error
}

// TrackRoom appends roomID to the durable index. Re-tracking an already
// indexed room is a no-op.
func TrackRoom(ctx context.Context, db *gorm.DB, roomID int64) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.TrackedRoom{RoomID: roomID}).Error
}

// ListTrackedRooms returns every room id in the durable index, in insertion
// order. An empty index returns an empty slice.
func ListTrackedRooms(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.TrackedRoom{}).
		Order("created_at asc").
		Pluck("room_id", &ids).Error
	return ids, err
}

// ClearTrackedRooms empties the durable index.
func ClearTrackedRooms(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.TrackedRoom{}).Error
}

// CountRooms returns the total number of persisted room records.
func CountRooms(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.RoomState{}).Count(&total).Error
	return total, err
}

// ListRoomsPage returns a page of room records ordered by creation time
// ascending. The caller computes offset and limit (e.g. (page-1)*pageSize).
func ListRoomsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.RoomState, error) {
	var out []domain.RoomState
	err := db.WithContext(ctx).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
