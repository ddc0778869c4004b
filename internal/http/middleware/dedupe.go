// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements duplicate-delivery detection for the event intake
// endpoint. Chat platforms redeliver webhook updates after timeouts or
// restarts, so the same (room, message, update, kind) tuple can arrive more
// than once. The middleware peeks the request body, consults a user-defined
// lookup, and annotates the request context so downstream components can:
//   - detect replayed deliveries (IsReplay)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// The body is restored after peeking so handlers can bind it normally.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// Context keys used internally to stash delivery state.
// These keys are intentionally unexported and referenced via accessor helpers.
const (
	ctxKeyDedupeReplay = "dedupe.replay" // bool: true when this delivery was already processed
	ctxKeyRateBypass   = "rate.bypass"   // bool: true to skip rate limiting
)

// IsReplay reports whether the middleware detected that this request is a
// redelivery of an update that was already processed.
//
// When true, handlers should short-circuit and answer with the duplicate
// acknowledgement instead of running the event through the state machine.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyDedupeReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DedupeLookup answers whether the delivery identified by (roomID, messageID,
// updateID, kind) was already processed within the retention window at the
// given time. updateID is the platform's per-delivery update id; it is zero
// when the connector does not forward one, in which case the remaining tuple
// identifies the delivery on its own. Implementations typically consult the
// processed-updates table.
//
// Return an error only for lookup failures; failures must not block normal
// processing, a redelivered update is merely handled twice.
type DedupeLookup func(ctx context.Context, roomID, messageID, updateID int64, kind string, now time.Time) (seen bool, err error)

// deliveryKey is the subset of the intake payload that identifies a delivery.
type deliveryKey struct {
	Kind      string `json:"kind"`
	RoomID    int64  `json:"room_id"`
	MessageID int64  `json:"message_id"`
	UpdateID  int64  `json:"update_id"`
}

// maxPeekBytes caps how much of the body the detector buffers for key
// extraction. Intake payloads are small; a body that overflows the cap skips
// detection, and the handler still receives the complete stream.
const maxPeekBytes = 64 << 10

// peekedBody replays the buffered prefix ahead of the unread remainder of the
// original request body, keeping the original stream as the closer.
type peekedBody struct {
	io.Reader
	io.Closer
}

// ReplayDetector inspects the intake payload and marks redelivered updates in
// the request context. It never rejects a request itself: malformed or
// oversized bodies pass through untouched and fail (or succeed) in the
// handler's binding, and lookup errors degrade to processing the delivery
// normally.
//
// The peeked prefix is stitched back in front of the unread remainder, so the
// handler's ShouldBindJSON always sees the complete payload regardless of the
// peek cap.
func ReplayDetector(lookup DedupeLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lookup == nil || c.Request.Body == nil {
			c.Next()
			return
		}

		orig := c.Request.Body
		body, err := io.ReadAll(io.LimitReader(orig, maxPeekBytes))
		c.Request.Body = peekedBody{io.MultiReader(bytes.NewReader(body), orig), orig}
		if err != nil || len(body) == maxPeekBytes {
			// Read failed or stopped at the cap mid-payload. Skip detection;
			// the stitched body still carries the full stream downstream.
			c.Next()
			return
		}

		var key deliveryKey
		if json.Unmarshal(body, &key) != nil || key.RoomID == 0 || key.MessageID == 0 || key.Kind == "" {
			c.Next()
			return
		}

		now := time.Now().UTC()
		if seen, err := lookup(c.Request.Context(), key.RoomID, key.MessageID, key.UpdateID, key.Kind, now); err == nil && seen {
			c.Set(ctxKeyDedupeReplay, true)
			c.Set(ctxKeyRateBypass, true) // let RL middleware skip limiting
		}

		c.Next()
	}
}
