// Package domain defines the core persistence models for the application.
// This file holds the dedupe ledger for inbound platform updates.
package domain

import "time"

// ProcessedUpdate records that an inbound update (identified by the room,
// message, platform update id, and event kind it carried) has already been
// handled. Chat platforms redeliver updates on connector restarts and network
// retries; the unique index lets the events endpoint replay safely without
// re-executing side effects. UpdateID is the platform's per-delivery
// identifier and stays zero when the connector does not forward one; it is
// what tells two distinct edits of the same message apart from a redelivery
// of one edit.
type ProcessedUpdate struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	RoomID    int64     `gorm:"uniqueIndex:ux_room_msg_upd_kind,priority:1"`
	MessageID int64     `gorm:"uniqueIndex:ux_room_msg_upd_kind,priority:2"`
	UpdateID  int64     `gorm:"uniqueIndex:ux_room_msg_upd_kind,priority:3"`
	Kind      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_room_msg_upd_kind,priority:4"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedUpdate) TableName() string { return "processed_updates" }
