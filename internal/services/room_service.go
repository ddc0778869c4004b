// Package services – RoomService
//
// This file implements the per-room controller: it turns validation outcomes
// from the tower engine into state transitions and notifications, and applies
// the crash sabotage policy. Every mutation persists the full room record
// before the in-memory state changes (write-through, no write-behind), so the
// durable store never lags behind what the process believes.
package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-tower-backend/internal/config"
	"github.com/tbourn/go-tower-backend/internal/domain"
	"github.com/tbourn/go-tower-backend/internal/tower"
)

// RoomService drives the state machine for inbound events and room commands.
type RoomService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the room repository used by this service.
	Store RoomStore
	// Registry owns the rooms this service operates on.
	Registry *Registry
	// Probe is the completion-time message-existence check. May be nil when
	// the deletion policy is off.
	Probe tower.Probe
	// Cfg holds the construction rules (crash schedule, notify threshold).
	Cfg config.TowerConfig
}

// NewRoomService wires a controller over the given registry.
func NewRoomService(db *gorm.DB, store RoomStore, reg *Registry, probe tower.Probe, cfg config.TowerConfig) *RoomService {
	return &RoomService{DB: db, Store: store, Registry: reg, Probe: probe, Cfg: cfg}
}

// HandleEvent runs one inbound chat event through the state machine.
//
// A nil notification means the room stays silent (the event was irrelevant,
// the fall was below the notify threshold, or the room/registry is not
// accepting events). A non-nil error means the event could not be committed
// (store failure) and room state is unchanged.
func (s *RoomService) HandleEvent(ctx context.Context, ev tower.Event) (*Notification, error) {
	if !ev.Kind.Valid() || ev.RoomID == 0 {
		return nil, ErrInvalidEvent
	}
	if !s.Registry.Enabled() {
		return nil, nil
	}
	room, ok := s.Registry.Lookup(ev.RoomID)
	if !ok {
		return nil, nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.dropped || room.state.Disabled {
		return nil, nil
	}

	out := room.t.CheckEvent(ev)
	if out != tower.Accept {
		return s.applyFall(ctx, room, out)
	}

	letter := domain.Letter{
		Char:      tower.Normalize(ev.Text),
		AuthorID:  ev.AuthorID,
		MessageID: ev.MessageID,
	}
	next := room.state.Clone()
	next.Letters = append(next.Letters, letter)
	if err := s.persist(ctx, room, next); err != nil {
		return nil, err
	}
	room.t.Append(letter)
	lettersAccepted.Inc()

	if room.t.Complete() && !room.state.BuiltToday {
		return s.finalize(ctx, ev.RoomID, room)
	}

	// Sabotage policy: once the room has built the tower today, rebuilds are
	// crashed at the scheduled lengths. The first crashes are distinct, the
	// last schedule entry loops indefinitely.
	if room.state.BuiltToday && room.t.Len() == s.crashLen(room.state.CrashCount) {
		idx := s.crashIndex(room.state.CrashCount)
		next := room.state.Clone()
		next.Letters = domain.Letters{}
		next.CrashCount++
		if err := s.persist(ctx, room, next); err != nil {
			return nil, err
		}
		room.t.Reset()
		towersCrashed.Inc()
		return &Notification{Kind: NoteCrash, CrashIndex: idx}, nil
	}

	return nil, nil
}

// finalize runs the completion checks while still holding the room lock, so
// no new letters are appended and no crash check runs until the integrity
// probe resolves.
func (s *RoomService) finalize(ctx context.Context, roomID int64, room *Room) (*Notification, error) {
	out := room.t.CheckCompletion(ctx, s.Probe, roomID)
	if out != tower.Accept {
		return s.applyFall(ctx, room, out)
	}

	next := room.state.Clone()
	next.Letters = domain.Letters{}
	next.BuiltToday = true
	if err := s.persist(ctx, room, next); err != nil {
		return nil, err
	}
	room.t.Reset()
	towersCompleted.Inc()
	return Note(NoteCompleted), nil
}

// applyFall resets the tower for any FALL* outcome and decides whether the
// room hears about it: Ignore and empty towers stay silent, attempts shorter
// than the notify threshold reset silently, everything else emits the
// specific failure reason.
func (s *RoomService) applyFall(ctx context.Context, room *Room, out tower.Outcome) (*Notification, error) {
	if out == tower.Ignore || room.t.Len() == 0 {
		return nil, nil
	}

	notify := room.t.Len() >= s.Cfg.MinimalNotifyLen

	next := room.state.Clone()
	next.Letters = domain.Letters{}
	if err := s.persist(ctx, room, next); err != nil {
		return nil, err
	}
	room.t.Reset()
	towersFallen.WithLabelValues(out.String()).Inc()

	if !notify {
		return nil, nil
	}
	return Note(fallNote(out)), nil
}

// persist writes next through to the store and only then installs it as the
// room's current state. On failure the in-memory state is untouched.
func (s *RoomService) persist(ctx context.Context, room *Room, next *domain.RoomState) error {
	if err := s.Store.SaveRoom(ctx, s.DB, next); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	room.state = next
	return nil
}

// crashIndex selects the schedule slot for the given crash count; the last
// entry repeats once the schedule is exhausted.
func (s *RoomService) crashIndex(crashCount int) int {
	if last := len(s.Cfg.CrashSchedule) - 1; crashCount > last {
		return last
	}
	return crashCount
}

// crashLen returns the attempt length that triggers the next crash.
func (s *RoomService) crashLen(crashCount int) int {
	return s.Cfg.CrashSchedule[s.crashIndex(crashCount)]
}

func fallNote(out tower.Outcome) NotificationKind {
	switch out {
	case tower.FallEdited:
		return NoteFallEdited
	case tower.FallRepetition:
		return NoteFallRepetition
	case tower.FallDeleted:
		return NoteFallDeleted
	case tower.FallSimilar:
		return NoteFallSimilar
	default:
		return NoteFall
	}
}

// Enable starts tracking a room. Refused while the registry is disabled
// (outside the active day) and for rooms that disabled themselves earlier in
// the period; re-tracking an active room is reported, not repeated.
func (s *RoomService) Enable(ctx context.Context, roomID int64) (*Notification, error) {
	if !s.Registry.Enabled() {
		return Note(NoteNotActiveDay), nil
	}

	if room, ok := s.Registry.Lookup(roomID); ok {
		room.mu.Lock()
		disabled := room.state.Disabled
		room.mu.Unlock()
		if disabled {
			// Intentional policy: once a room opts out it stays out for the
			// rest of the period, so toggling cannot dodge crashes.
			return Note(NoteEnabledRefused), nil
		}
		return Note(NoteAlreadyEnabled), nil
	}

	if _, err := s.Registry.StartTracking(ctx, roomID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Note(NoteEnabled), nil
}

// Disable turns a tracked room off for the remainder of the period.
func (s *RoomService) Disable(ctx context.Context, roomID int64) (*Notification, error) {
	if !s.Registry.Enabled() {
		return Note(NoteNotActiveDay), nil
	}

	room, ok := s.Registry.Lookup(roomID)
	if !ok {
		return Note(NoteNotEnabled), nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.state.Disabled {
		return Note(NoteAlreadyDisabled), nil
	}

	next := room.state.Clone()
	next.Disabled = true
	if err := s.persist(ctx, room, next); err != nil {
		return nil, err
	}
	return Note(NoteDisabled), nil
}
