// Room HTTP handlers.
//
// This file exposes REST endpoints for room observation:
//   - POST /rooms/{id}/enable    (start observing a room)
//   - POST /rooms/{id}/disable   (stop observing a room for the period)
//   - GET  /rooms                (list observed rooms, paginated)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (numeric room ids, pagination bounds)
//   - delegate to application services (RoomControlService)
//   - implement conditional responses (ETag) on the listing endpoint
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-tower-backend/internal/domain"
	"github.com/tbourn/go-tower-backend/internal/repo"
	"github.com/tbourn/go-tower-backend/internal/services"
	"github.com/tbourn/go-tower-backend/internal/utils"
)

//
// Handler wiring
//

// Handlers groups HTTP endpoints for events and rooms. It depends on abstract
// service interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	eventSvc  EventService
	roomSvc   RoomControlService
	db        *gorm.DB
	dedupeTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
// The db handle powers the listing endpoint and delivery bookkeeping; it may
// be nil in tests that exercise only the event flow.
func New(eventSvc EventService, roomSvc RoomControlService, db *gorm.DB, dedupeTTL time.Duration) *Handlers {
	return &Handlers{
		eventSvc:  eventSvc,
		roomSvc:   roomSvc,
		db:        db,
		dedupeTTL: dedupeTTLOrDefault(dedupeTTL),
	}
}

//
// DTOs
//

// NotificationResponse wraps the notification an operation produced.
type NotificationResponse struct {
	// Notification to post to the room.
	Notification *services.Notification `json:"notification"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRoomsResponse wraps a page of room records and pagination information.
type ListRoomsResponse struct {
	Rooms      []domain.RoomState `json:"rooms"`
	Pagination Pagination         `json:"pagination"`
}

//
// Helpers
//

// roomID parses the :id route parameter as a numeric room identifier.
func roomID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// EnableRoom godoc
// @ID          enableRoom
// @Summary     Start observing a room
// @Description Begins tracking construction events in the given room. Outside
// @Description the active day, or for a room disabled earlier in the period,
// @Description the response explains the refusal instead.
// @Tags        Rooms
// @Produce     json
//
// @Param       id  path  int  true  "Room ID"  example(42)
//
// @Success     200  {object}  handlers.NotificationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /rooms/{id}/enable [post]
func (h *Handlers) EnableRoom(c *gin.Context) {
	id, valid := roomID(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a non-zero integer")
		return
	}

	note, err := h.roomSvc.Enable(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "room could not be enabled")
		return
	}
	ok(c, http.StatusOK, NotificationResponse{Notification: note})
}

// DisableRoom godoc
// @ID          disableRoom
// @Summary     Stop observing a room
// @Description Stops tracking construction events in the given room for the
// @Description rest of the period.
// @Tags        Rooms
// @Produce     json
//
// @Param       id  path  int  true  "Room ID"  example(42)
//
// @Success     200  {object}  handlers.NotificationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /rooms/{id}/disable [post]
func (h *Handlers) DisableRoom(c *gin.Context) {
	id, valid := roomID(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a non-zero integer")
		return
	}

	note, err := h.roomSvc.Disable(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "room could not be disabled")
		return
	}
	ok(c, http.StatusOK, NotificationResponse{Notification: note})
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List observed rooms
// @Description Returns a paginated list of room records with their current
// @Description construction state. Supports conditional requests via ETag.
// @Tags        Rooms
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListRoomsResponse
// @Success     304  "Not modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.RoomsStats(ctx, h.db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"rooms:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	total, err := repo.CountRooms(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not count rooms")
		return
	}
	items, err := repo.ListRoomsPage(ctx, h.db, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list rooms")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRoomsResponse{
		Rooms: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
