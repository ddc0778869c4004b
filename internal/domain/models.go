// Package domain defines the persistence models for tracked rooms and their
// in-progress towers. These types are mapped with GORM and form the core data
// layer of the tower backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Letter is one accepted construction event: the character that was posted,
// who posted it, and which platform message carried it. Letters are immutable
// value data once recorded.
type Letter struct {
	Char      string `json:"c"`
	AuthorID  int64  `json:"a"`
	MessageID int64  `json:"m"`
}

// Letters is the ordered log of accepted letters for a room's current attempt.
// It is stored as a single JSON column so the whole room record can be written
// through in one statement.
type Letters []Letter

// Value implements driver.Valuer, serializing the log as JSON text.
func (l Letters) Value() (driver.Value, error) {
	if l == nil {
		l = Letters{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. A NULL or empty column scans as an empty log.
func (l *Letters) Scan(src any) error {
	if src == nil {
		*l = Letters{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("letters: cannot scan %T", src)
	}
	if len(b) == 0 {
		*l = Letters{}
		return nil
	}
	return json.Unmarshal(b, l)
}

// RoomState is the durable record for one tracked room: the current tower
// letters plus the completion/crash/disable flags. An absent row is equivalent
// to a freshly initialized state.
//
// Invariant: BuiltToday is only ever set by a completed tower and is cleared
// only by the global daily reset.
type RoomState struct {
	RoomID     int64     `json:"room_id"     gorm:"primaryKey;autoIncrement:false"`
	Letters    Letters   `json:"letters"     gorm:"type:text;not null"`
	CrashCount int       `json:"crash_count" gorm:"not null;default:0;check:crash_count >= 0"`
	BuiltToday bool      `json:"built_today" gorm:"not null;default:false"`
	Disabled   bool      `json:"disabled"    gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for RoomState.
func (RoomState) TableName() string { return "rooms" }

// NewRoomState returns a freshly initialized state for roomID.
func NewRoomState(roomID int64) *RoomState {
	return &RoomState{RoomID: roomID, Letters: Letters{}}
}

// Clone returns a deep copy. Mutation paths build the next state on a copy,
// persist it, and only then install it in memory, so a failed write never
// leaves a half-updated record visible to the process.
func (s *RoomState) Clone() *RoomState {
	cp := *s
	cp.Letters = make(Letters, len(s.Letters))
	copy(cp.Letters, s.Letters)
	return &cp
}

// TrackedRoom is one row of the durable room index. Membership in this table,
// not the rooms table, defines which rooms the registry reloads after a
// process restart.
type TrackedRoom struct {
	RoomID    int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName returns the database table name for TrackedRoom.
func (TrackedRoom) TableName() string { return "tracked_rooms" }
