package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/go-tower-backend/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(config.ProbeConfig{BaseURL: srv.URL, Token: "secret", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClient_ExistsTrue(t *testing.T) {
	var gotPath, gotRoom, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRoom = r.URL.Query().Get("room_id")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"exists":true}`))
	})

	ok, err := c.Exists(context.Background(), 42, 1007)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if gotPath != "/messages/1007" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotRoom != "42" {
		t.Fatalf("room_id = %q", gotRoom)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth = %q", gotAuth)
	}
}

func TestClient_ExistsFalseBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exists":false}`))
	})
	ok, err := c.Exists(context.Background(), 1, 2)
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestClient_NotFoundMeansGone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	ok, err := c.Exists(context.Background(), 1, 2)
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestClient_ServerErrorIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.Exists(context.Background(), 1, 2); err == nil {
		t.Fatal("want error on 502")
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Exists(ctx, 1, 2); err == nil {
		t.Fatal("want error on cancellation")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.ProbeConfig{}); err == nil {
		t.Fatal("want error for empty base URL")
	}
	if _, err := New(config.ProbeConfig{BaseURL: "http://[::1"}); err == nil {
		t.Fatal("want error for malformed base URL")
	}
}

func TestAlwaysPresent(t *testing.T) {
	ok, err := AlwaysPresent{}.Exists(context.Background(), 1, 2)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}
