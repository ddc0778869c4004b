// Event intake HTTP handlers.
//
// This file exposes the endpoint that feeds chat activity into the
// construction state machine:
//   - POST /events   (deliver one new-message or edited-message update)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (event kind, identifiers, single-line text)
//   - delegate to the application service (EventService)
//   - implement duplicate-delivery semantics (paired with ReplayDetector)
//
// Redelivery:
// Chat platforms retry webhook deliveries, so the same update can arrive
// multiple times. When the ReplayDetector middleware flags a request as a
// replay, the handler acknowledges it without re-running the state machine
// and sets `Delivery-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tower-backend/internal/http/middleware"
	"github.com/tbourn/go-tower-backend/internal/repo"
	"github.com/tbourn/go-tower-backend/internal/services"
	"github.com/tbourn/go-tower-backend/internal/tower"
)

//
// Service contracts
//

// EventService runs one chat update through the construction state machine
// and reports the notification the room should receive, if any.
type EventService interface {
	// HandleEvent processes a new or edited message event. A nil notification
	// means the room stays silent.
	HandleEvent(ctx context.Context, ev tower.Event) (*services.Notification, error)
}

// RoomControlService toggles per-room observation.
type RoomControlService interface {
	// Enable starts observing a room, or explains why it cannot.
	Enable(ctx context.Context, roomID int64) (*services.Notification, error)
	// Disable stops observing a room for the rest of the period.
	Disable(ctx context.Context, roomID int64) (*services.Notification, error)
}

//
// DTOs
//

// EventRequest is the JSON payload for delivering one chat update.
type EventRequest struct {
	// Kind is the update type: "new" or "edited".
	Kind string `json:"kind" binding:"required" example:"new"`
	// RoomID identifies the chat room the update belongs to.
	RoomID int64 `json:"room_id" binding:"required" example:"42"`
	// AuthorID identifies the sender of the message.
	AuthorID int64 `json:"author_id" example:"1007"`
	// MessageID is the platform's message identifier.
	MessageID int64 `json:"message_id" binding:"required" example:"31337"`
	// UpdateID is the platform's per-delivery update identifier. Optional;
	// when present it distinguishes two edits of one message from a retry.
	UpdateID int64 `json:"update_id" example:"900042"`
	// Text is the message text as delivered by the platform.
	Text string `json:"text" example:"T"`
}

// EventResponse reports the outcome of one delivered update.
type EventResponse struct {
	// Notification to post to the room, or null when the room stays silent.
	Notification *services.Notification `json:"notification"`
	// Duplicate is true when this delivery was already processed earlier.
	Duplicate bool `json:"duplicate,omitempty"`
}

//
// Handlers
//

// PostEvent godoc
// @ID          postEvent
// @Summary     Deliver a chat update
// @Description Runs one new-message or edited-message update through the room's
// @Description construction state machine and returns the notification to post,
// @Description if any. Redelivered updates are acknowledged without reprocessing.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.EventRequest  true  "Chat update payload"
//
// @Success     200  {object}  handlers.EventResponse  "Processing outcome"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [post]
func (h *Handlers) PostEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind, room_id and message_id required")
		return
	}

	kind := tower.EventKind(req.Kind)
	if !kind.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `kind must be "new" or "edited"`)
		return
	}

	// Redelivery path, flagged by the ReplayDetector middleware.
	if middleware.IsReplay(c) {
		c.Header("Delivery-Replayed", "true")
		ok(c, http.StatusOK, EventResponse{Duplicate: true})
		return
	}

	note, err := h.eventSvc.HandleEvent(ctx, tower.Event{
		Kind:      kind,
		RoomID:    req.RoomID,
		AuthorID:  req.AuthorID,
		MessageID: req.MessageID,
		Text:      req.Text,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEvent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid event")
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "room state could not be persisted")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeEventFailed, err.Error())
		}
		return
	}

	// Record the delivery so a platform retry is acknowledged, not reprocessed.
	// Best effort: a failed mark only risks handling the update twice.
	if h.db != nil {
		_ = repo.MarkProcessed(ctx, h.db, req.RoomID, req.MessageID, req.UpdateID, req.Kind, h.dedupeTTL)
	}

	ok(c, http.StatusOK, EventResponse{Notification: note})
}

// dedupeTTLOrDefault returns the configured retention for processed-update
// records, falling back to a day.
func dedupeTTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}
