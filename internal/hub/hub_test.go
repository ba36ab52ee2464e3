package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/udoglabs/wager-engine/internal/hub"
	"github.com/udoglabs/wager-engine/internal/metrics"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, h.ClientCount())
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()
	waitForClients(t, h, 1)

	if got := testutil.ToFloat64(metrics.WebSocketClients); got != 1 {
		t.Errorf("expected ws client gauge 1, got %v", got)
	}

	h.Broadcast(hub.Event{Type: hub.EventWagerPlaced, MarketID: "m1", Side: "yes"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev hub.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if ev.Type != hub.EventWagerPlaced || ev.MarketID != "m1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestHub_ShutdownClosesClientsAndUnblocksPumps(t *testing.T) {
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()
	waitForClients(t, h, 1)

	cancel()

	// The hub closes the connection on shutdown. The client's next read
	// fails, and the server-side read pump must be able to finish even
	// though the hub loop is gone.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read to fail after hub shutdown")
	}
	waitForClients(t, h, 0)

	if got := testutil.ToFloat64(metrics.WebSocketClients); got != 0 {
		t.Errorf("expected ws client gauge 0, got %v", got)
	}

	// A connection arriving after shutdown is closed immediately rather
	// than blocking on the register channel.
	late := dialWS(t, ts)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("expected late connection to be closed")
	}
}
