// Package services – Registry
//
// The Registry is the process-wide collection of tracked rooms plus the
// global enable flag driven by the weekly cadence. It is a cache of the
// durable store: the tracked_rooms index and the per-room records are the
// source of truth, and the registry is rebuilt from them at process start.
package services

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-tower-backend/internal/config"
	"github.com/tbourn/go-tower-backend/internal/domain"
	"github.com/tbourn/go-tower-backend/internal/repo"
	"github.com/tbourn/go-tower-backend/internal/scheduler"
	"github.com/tbourn/go-tower-backend/internal/tower"
)

// RoomStore defines the persistence contract required by the registry and the
// room controller. Implementations are responsible for the rooms table and
// the durable index.
type RoomStore interface {
	// SaveRoom writes the full room record (insert or overwrite).
	SaveRoom(ctx context.Context, db *gorm.DB, s *domain.RoomState) error

	// LoadRoom fetches a room record, or repo.ErrNotFound when absent.
	LoadRoom(ctx context.Context, db *gorm.DB, roomID int64) (*domain.RoomState, error)

	// DeleteRoom removes a room record; deleting an absent row is a no-op.
	DeleteRoom(ctx context.Context, db *gorm.DB, roomID int64) error

	// TrackRoom appends a room id to the durable index.
	TrackRoom(ctx context.Context, db *gorm.DB, roomID int64) error

	// ListTrackedRooms returns every indexed room id.
	ListTrackedRooms(ctx context.Context, db *gorm.DB) ([]int64, error)

	// ClearTrackedRooms empties the durable index.
	ClearTrackedRooms(ctx context.Context, db *gorm.DB) error
}

// Room pairs a room's durable state with its in-memory tower and the mutex
// that serializes all event processing for the room. Two events for the same
// room must be validated and committed in arrival order; the mutex is also
// held across the completion-time integrity probe, which is exactly the
// "short per-room critical section" that keeps a pending finalization from
// racing a crash check.
type Room struct {
	mu    sync.Mutex
	state *domain.RoomState
	t     *tower.Tower

	// dropped is set by the daily reset so a handler that fetched the room
	// just before the reset bails out instead of resurrecting the record.
	dropped bool
}

// State returns the current durable state. Callers must hold the room lock.
func (r *Room) State() *domain.RoomState { return r.state }

// Tower returns the in-memory tower. Callers must hold the room lock.
func (r *Room) Tower() *tower.Tower { return r.t }

// Registry owns every Room and the global enable flag.
type Registry struct {
	DB       *gorm.DB
	Store    RoomStore
	Tower    config.TowerConfig
	Cadence  scheduler.Cadence
	Variants tower.VariantTable
	Notifier Notifier

	mu      sync.RWMutex
	enabled bool
	rooms   map[int64]*Room
}

// NewRegistry constructs an empty registry. Call Load before serving events.
func NewRegistry(db *gorm.DB, store RoomStore, towerCfg config.TowerConfig, cad scheduler.Cadence, notifier Notifier) *Registry {
	return &Registry{
		DB:       db,
		Store:    store,
		Tower:    towerCfg,
		Cadence:  cad,
		Variants: tower.DefaultVariants(),
		Notifier: notifier,
		rooms:    make(map[int64]*Room),
	}
}

// checks maps the configured policy toggles onto the validation engine.
func (g *Registry) checks() tower.Checks {
	return tower.Checks{
		Uniqueness: g.Tower.CheckUniqueness,
		Deletion:   g.Tower.CheckDeletion,
		Edits:      g.Tower.CheckEdits,
		Variants:   g.Tower.CheckVariants,
	}
}

// Load initializes the registry from the durable store: the enable flag from
// the cadence policy and the room map from the index, fetching each room's
// record. Absent records reload as fresh states.
func (g *Registry) Load(ctx context.Context) error {
	ids, err := g.Store.ListTrackedRooms(ctx, g.DB)
	if err != nil {
		return err
	}

	rooms := make(map[int64]*Room, len(ids))
	for _, id := range ids {
		state, err := g.Store.LoadRoom(ctx, g.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			state = domain.NewRoomState(id)
		} else if err != nil {
			return err
		}
		rooms[id] = &Room{
			state: state,
			t:     tower.Restore(g.Tower.Target, g.checks(), g.Variants, state.Letters),
		}
	}

	g.mu.Lock()
	g.enabled = g.Cadence.ActiveToday(scheduler.Now())
	g.rooms = rooms
	g.mu.Unlock()
	return nil
}

// Enabled reports whether rooms accept construction events at all.
func (g *Registry) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// IsTracked reports whether a room has an active observer.
func (g *Registry) IsTracked(roomID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[roomID]
	return ok
}

// Lookup returns the Room for roomID, if tracked.
func (g *Registry) Lookup(roomID int64) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// RoomIDs returns a snapshot of all tracked room ids.
func (g *Registry) RoomIDs() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int64, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	return ids
}

// StartTracking creates a fresh room, persists its record, and appends it to
// the durable index. The write-through happens before the room becomes
// visible in memory.
func (g *Registry) StartTracking(ctx context.Context, roomID int64) (*Room, error) {
	state := domain.NewRoomState(roomID)
	if err := g.Store.SaveRoom(ctx, g.DB, state); err != nil {
		return nil, err
	}
	if err := g.Store.TrackRoom(ctx, g.DB, roomID); err != nil {
		return nil, err
	}

	room := &Room{
		state: state,
		t:     tower.New(g.Tower.Target, g.checks(), g.Variants),
	}
	g.mu.Lock()
	g.rooms[roomID] = room
	g.mu.Unlock()
	return room, nil
}

// ApplyCadence flips the enable flag according to the weekly policy: on when
// the active day starts, off the day after, otherwise unchanged. Registered
// as a day-boundary action.
func (g *Registry) ApplyCadence(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = g.Cadence.Apply(scheduler.Now(), g.enabled)
	return nil
}

// EndOfDay broadcasts the day-end notification to every tracked room and
// clears all construction state. It does nothing when the registry is
// disabled. Registered as a day-boundary action, ordered before ApplyCadence
// so the broadcast observes the enable flag as it was during the day.
func (g *Registry) EndOfDay(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.enabled {
		return nil
	}

	if g.Notifier != nil {
		for id := range g.rooms {
			g.Notifier.Notify(ctx, id, Notification{Kind: NoteDayEnd})
		}
	}
	return g.resetAllLocked(ctx)
}

// ResetAll deletes every room's durable record, clears the in-memory map, and
// empties the durable index. Safe to call on an already-empty registry.
func (g *Registry) ResetAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resetAllLocked(ctx)
}

func (g *Registry) resetAllLocked(ctx context.Context) error {
	for id, room := range g.rooms {
		// Take the room lock so an in-flight event for this room commits or
		// bails before its record disappears.
		room.mu.Lock()
		room.dropped = true
		err := g.Store.DeleteRoom(ctx, g.DB, id)
		room.mu.Unlock()
		if err != nil {
			return err
		}
	}
	g.rooms = make(map[int64]*Room)
	return g.Store.ClearTrackedRooms(ctx, g.DB)
}
