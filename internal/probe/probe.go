// Package probe implements the message-existence check run before a
// completion is declared. It asks the chat platform whether every recorded
// message is still present; the construction engine treats a missing message
// as a failed build.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tower-backend/internal/config"
)

// Client queries the platform's message endpoint over HTTP.
//
// A GET to {base}/messages/{message_id}?room_id={room_id} is expected to
// answer 200 with {"exists": true|false}, or 404 when the message is gone.
// Anything else is an error, which the caller treats as a failed check
// rather than a pass.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a Client from the probe configuration. It returns an error when
// the base URL does not parse; an empty base URL is a configuration mistake
// surfaced here rather than at first use.
func New(cfg config.ProbeConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("probe: base URL is empty")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("probe: parse base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:  u,
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// Exists reports whether the given message is still present in the room.
func (c *Client) Exists(ctx context.Context, roomID, messageID int64) (bool, error) {
	u := c.base.JoinPath("messages", strconv.FormatInt(messageID, 10))
	q := u.Query()
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe: message %d: %w", messageID, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		var body existsResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body); err != nil {
			return false, fmt.Errorf("probe: decode response for message %d: %w", messageID, err)
		}
		return body.Exists, nil
	case http.StatusNotFound:
		return false, nil
	default:
		log.Warn().
			Int("status", resp.StatusCode).
			Int64("room_id", roomID).
			Int64("message_id", messageID).
			Msg("probe: unexpected status")
		return false, fmt.Errorf("probe: message %d: unexpected status %d", messageID, resp.StatusCode)
	}
}

// AlwaysPresent is a Probe for deployments without a platform endpoint: every
// recorded message is assumed to still exist, so deletion never fails a
// build.
type AlwaysPresent struct{}

// Exists always reports true.
func (AlwaysPresent) Exists(ctx context.Context, roomID, messageID int64) (bool, error) {
	return true, nil
}
