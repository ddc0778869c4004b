// Package services implements the room state machine on top of the tower
// validation engine: the registry of tracked rooms, the per-room controller
// applying completion and crash policy, and the notification kinds the core
// emits. Rendering notification text is the transport collaborator's job; the
// core only ever emits a kind plus, for crashes, a schedule index.
package services

import "context"

// NotificationKind identifies one room-visible transition.
type NotificationKind string

// The full set of notifications the core can emit.
const (
	NoteEnabled         NotificationKind = "enabled"
	NoteEnabledRefused  NotificationKind = "enabled_but_was_disabled"
	NoteAlreadyEnabled  NotificationKind = "already_enabled"
	NoteDisabled        NotificationKind = "disabled"
	NoteAlreadyDisabled NotificationKind = "already_disabled"
	NoteNotEnabled      NotificationKind = "not_enabled"
	NoteNotActiveDay    NotificationKind = "not_active_day"
	NoteFall            NotificationKind = "fall"
	NoteFallEdited      NotificationKind = "fall_edited"
	NoteFallRepetition  NotificationKind = "fall_repetition"
	NoteFallDeleted     NotificationKind = "fall_deleted"
	NoteFallSimilar     NotificationKind = "fall_similar"
	NoteCompleted       NotificationKind = "completed"
	NoteCrash           NotificationKind = "crash"
	NoteDayEnd          NotificationKind = "day_end"
)

// Notification is one outbound message to a room. CrashIndex is only
// meaningful for NoteCrash and selects which crash message the renderer shows.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	CrashIndex int              `json:"crash_index,omitempty"`
}

// Note builds a plain notification.
func Note(kind NotificationKind) *Notification { return &Notification{Kind: kind} }

// Notifier delivers notifications the core emits outside a request/response
// cycle (the day-end broadcast). Implementations must tolerate concurrent use.
type Notifier interface {
	Notify(ctx context.Context, roomID int64, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, roomID int64, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, roomID int64, n Notification) { f(ctx, roomID, n) }
