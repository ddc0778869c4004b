// Package repo implements the data persistence layer for the tower backend,
// backed by GORM. This file provides repository helpers for the
// ProcessedUpdate model used to deduplicate redelivered platform updates.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

// ErrDuplicate indicates that an update with the same (room_id, message_id,
// update_id, kind) tuple was already processed within the TTL window.
var ErrDuplicate = errors.New("duplicate")

// SeenUpdate reports whether a non-expired dedupe record exists for the tuple.
// updateID is the platform's per-delivery id (zero when absent); two edits of
// the same message carry distinct update ids and are never conflated.
func SeenUpdate(ctx context.Context, db *gorm.DB, roomID, messageID, updateID int64, kind string, now time.Time) (bool, error) {
	var rec domain.ProcessedUpdate
	err := db.WithContext(ctx).
		Where("room_id = ? AND message_id = ? AND update_id = ? AND kind = ? AND expires_at > ?",
			roomID, messageID, updateID, kind, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MarkProcessed inserts a dedupe record and returns ErrDuplicate on unique
// violation, letting the caller distinguish a replay from a fresh update.
func MarkProcessed(ctx context.Context, db *gorm.DB, roomID, messageID, updateID int64, kind string, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := &domain.ProcessedUpdate{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		MessageID: messageID,
		UpdateID:  updateID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// PurgeExpiredUpdates deletes dedupe records whose TTL has lapsed. Run it
// opportunistically (the daily reset is a natural place).
func PurgeExpiredUpdates(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.ProcessedUpdate{}).Error
}
