package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("room_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestSaveRoom_InsertThenOverwrite(t *testing.T) {
	db := newRepoDB(t, &domain.RoomState{})
	ctx := context.Background()

	s := domain.NewRoomState(42)
	s.Letters = domain.Letters{{Char: "I", AuthorID: 1, MessageID: 10}}
	if err := SaveRoom(ctx, db, s); err != nil {
		t.Fatalf("SaveRoom insert: %v", err)
	}

	// Overwrite with new flags; same primary key.
	next := s.Clone()
	next.Letters = domain.Letters{}
	next.BuiltToday = true
	next.CrashCount = 2
	if err := SaveRoom(ctx, db, next); err != nil {
		t.Fatalf("SaveRoom overwrite: %v", err)
	}

	got, err := LoadRoom(ctx, db, 42)
	if err != nil {
		t.Fatalf("LoadRoom: %v", err)
	}
	if len(got.Letters) != 0 || !got.BuiltToday || got.CrashCount != 2 {
		t.Fatalf("overwritten record mismatch: %+v", got)
	}

	var total int64
	if err := db.Model(&domain.RoomState{}).Count(&total).Error; err != nil || total != 1 {
		t.Fatalf("expected exactly one row, got %d (err=%v)", total, err)
	}
}

func TestLoadRoom_AbsentIsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.RoomState{})
	_, err := LoadRoom(context.Background(), db, 999)
	if err != ErrNotFound {
		t.Fatalf("LoadRoom absent: err = %v, want ErrNotFound", err)
	}
}

func TestLoadRoom_RoundTripsLetters(t *testing.T) {
	db := newRepoDB(t, &domain.RoomState{})
	ctx := context.Background()

	s := domain.NewRoomState(7)
	s.Letters = domain.Letters{
		{Char: "I", AuthorID: 1, MessageID: 10},
		{Char: "Т", AuthorID: 2, MessageID: 11}, // Cyrillic variant survives storage
	}
	if err := SaveRoom(ctx, db, s); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}

	got, err := LoadRoom(ctx, db, 7)
	if err != nil {
		t.Fatalf("LoadRoom: %v", err)
	}
	if len(got.Letters) != 2 || got.Letters[1].Char != "Т" || got.Letters[1].MessageID != 11 {
		t.Fatalf("letters round-trip mismatch: %+v", got.Letters)
	}
}

func TestDeleteRoom_IdempotentOnAbsent(t *testing.T) {
	db := newRepoDB(t, &domain.RoomState{})
	ctx := context.Background()

	if err := DeleteRoom(ctx, db, 5); err != nil {
		t.Fatalf("delete absent: %v", err)
	}

	s := domain.NewRoomState(5)
	if err := SaveRoom(ctx, db, s); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	if err := DeleteRoom(ctx, db, 5); err != nil {
		t.Fatalf("delete present: %v", err)
	}
	if _, err := LoadRoom(ctx, db, 5); err != ErrNotFound {
		t.Fatalf("record survived delete: err = %v", err)
	}
}

func TestTrackedRooms_IndexLifecycle(t *testing.T) {
	db := newRepoDB(t, &domain.TrackedRoom{})
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		if err := TrackRoom(ctx, db, id); err != nil {
			t.Fatalf("TrackRoom(%d): %v", id, err)
		}
	}
	// Re-tracking is a no-op, not an error.
	if err := TrackRoom(ctx, db, 3); err != nil {
		t.Fatalf("re-track: %v", err)
	}

	ids, err := ListTrackedRooms(ctx, db)
	if err != nil {
		t.Fatalf("ListTrackedRooms: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("index has %d entries, want 3: %v", len(ids), ids)
	}

	if err := ClearTrackedRooms(ctx, db); err != nil {
		t.Fatalf("ClearTrackedRooms: %v", err)
	}
	ids, err = ListTrackedRooms(ctx, db)
	if err != nil || len(ids) != 0 {
		t.Fatalf("index not empty after clear: %v (err=%v)", ids, err)
	}

	// Clearing an empty index is fine.
	if err := ClearTrackedRooms(ctx, db); err != nil {
		t.Fatalf("clear empty index: %v", err)
	}
}

func TestListRoomsPage_And_Count(t *testing.T) {
	db := newRepoDB(t, &domain.RoomState{})
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		s := domain.NewRoomState(i)
		s.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		if err := SaveRoom(ctx, db, s); err != nil {
			t.Fatalf("SaveRoom(%d): %v", i, err)
		}
	}

	total, err := CountRooms(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("CountRooms = %d (err=%v), want 5", total, err)
	}

	page, err := ListRoomsPage(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("ListRoomsPage: %v", err)
	}
	if len(page) != 2 || page[0].RoomID != 3 || page[1].RoomID != 4 {
		t.Fatalf("page mismatch: %+v", page)
	}
}

func TestSaveRoom_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	if err := SaveRoom(context.Background(), db, domain.NewRoomState(1)); err == nil {
		t.Fatal("expected error writing without table")
	}
}
