package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sessionA = "6f1c2a1e-7d55-4b7e-9a4e-0d2b1f3c8a01"
	sessionB = "0b9d8e2f-3c4a-4f6b-8e1d-5a7c9b2e4f02"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestHub_Publish(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(EstimateCreated, sessionA, map[string]string{"decision": "warn"})

	ev := readEvent(t, conn)
	assert.Equal(t, EstimateCreated, ev.Type)
	assert.Equal(t, sessionA, ev.SessionID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestHub_SessionFilter(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?session="+sessionA)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(EstimateCreated, sessionB, nil)
	hub.Publish(CheckoutPaid, sessionA, map[string]string{"checkout_id": "c1"})

	ev := readEvent(t, conn)
	assert.Equal(t, CheckoutPaid, ev.Type)
	assert.Equal(t, sessionA, ev.SessionID)
}

func TestHub_ReplaysBacklogOnJoin(t *testing.T) {
	hub, url := startHub(t)
	hub.Publish(EstimateCreated, sessionA, nil)
	hub.Publish(EstimateCreated, sessionB, nil)
	hub.Publish(PackExported, sessionA, nil)

	conn := dial(t, url+"?session="+sessionA)
	assert.Equal(t, EstimateCreated, readEvent(t, conn).Type)
	assert.Equal(t, PackExported, readEvent(t, conn).Type)

	// Replayed frames are not delivered a second time.
	hub.Publish(CheckoutPaid, sessionA, nil)
	assert.Equal(t, CheckoutPaid, readEvent(t, conn).Type)
}

func TestHub_BacklogIsBounded(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 3*backlogSize; i++ {
		hub.Publish(PackExported, sessionA, nil)
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Len(t, hub.backlog, backlogSize)
	assert.Equal(t, uint64(3*backlogSize), hub.backlog[backlogSize-1].seq)
	assert.Zero(t, hub.ClientCount())
}

func TestHub_RejectsInvalidSession(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws?session=../etc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_StopDisconnects(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err=%v", err)
	assert.Zero(t, hub.ClientCount())
}
