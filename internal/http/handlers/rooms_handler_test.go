package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

// ---------- test DB ----------

func newRoomsDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.RoomState{}, &domain.TrackedRoom{}, &domain.ProcessedUpdate{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newListRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(&fakeEventService{}, &fakeRoomControl{}, db, time.Hour)
	r := gin.New()
	r.GET("/rooms", h.ListRooms)
	return r
}

func seedRooms(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		st := domain.NewRoomState(int64(i))
		st.Letters = domain.Letters{{Char: "T", AuthorID: int64(i), MessageID: int64(100 + i)}}
		if err := db.Create(st).Error; err != nil {
			t.Fatalf("seed room %d: %v", i, err)
		}
	}
}

// ---------- tests ----------

func TestListRooms_PaginationAndShape(t *testing.T) {
	db := newRoomsDB(t)
	seedRooms(t, db, 25)
	r := newListRouter(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms?page=2&page_size=10", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp ListRoomsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Rooms) != 10 {
		t.Fatalf("page len = %d", len(resp.Rooms))
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 10 || p.Total != 25 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
	if len(resp.Rooms[0].Letters) != 1 {
		t.Fatalf("room letters not serialized: %+v", resp.Rooms[0])
	}
}

func TestListRooms_ClampsPagination(t *testing.T) {
	db := newRoomsDB(t)
	seedRooms(t, db, 3)
	r := newListRouter(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms?page=-4&page_size=junk", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListRoomsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 20 {
		t.Fatalf("clamping failed: %+v", resp.Pagination)
	}
}

func TestListRooms_ETagRoundTrip(t *testing.T) {
	db := newRoomsDB(t)
	seedRooms(t, db, 2)
	r := newListRouter(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	r.ServeHTTP(w, req)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("first GET: status=%d etag=%q", w.Code, etag)
	}

	// Same state, matching If-None-Match: 304 with no body.
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req2.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional GET: status = %d", w2.Code)
	}

	// Changing state invalidates the tag.
	if err := db.Create(domain.NewRoomState(99)).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	w3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req3.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("after change: status = %d", w3.Code)
	}
}

func TestListRooms_EmptyFleet(t *testing.T) {
	db := newRoomsDB(t)
	r := newListRouter(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListRoomsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp.Pagination.Total != 0 || resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
}
