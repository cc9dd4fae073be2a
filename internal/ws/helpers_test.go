package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/afk-console/backend/internal/mock"
	"github.com/afk-console/backend/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection. The caller must close both the server and the
// returned connection.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	// Only the server-side conn is needed; close the client side.
	_ = clientConn.Close()

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

// testEnv is a full gateway behind an httptest server. The mock dialer's
// clock never advances, so started bots stay in the connecting state.
type testEnv struct {
	store *session.Store
	hub   *Hub
	srv   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local))
	hub := NewHub(0, discard)
	store := session.NewStore(session.Config{
		Dialer:    &mock.Dialer{Clock: clock},
		Publisher: hub,
		Clock:     clock,
		Defaults:  session.Options{Host: "localhost", Username: "tester"},
		Logger:    discard,
	})
	gw := NewGateway(store, hub, clock, discard)
	index := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "INDEX")
	})
	server := NewServer(hub, gw, "", false, http.NotFoundHandler(), index, nil, discard)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	srv := httptest.NewServer(server.Handler(mux))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		store.Shutdown()
	})
	return &testEnv{store: store, hub: hub, srv: srv}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) text(t *testing.T) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(f.Payload, &s); err != nil {
		t.Fatalf("payload of %s is not a string: %s", f.Type, f.Payload)
	}
	return s
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(WSMessage{Type: typ, Payload: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

// expectSilence asserts that nothing arrives on conn for a short while. The
// connection is unusable for reads afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var f frame
	if err := conn.ReadJSON(&f); err == nil {
		t.Errorf("unexpected frame %s %s", f.Type, f.Payload)
	}
}

// join sends a join and consumes the replay up to this client's own joined
// line. Joined lines of earlier observers arrive as history, before the
// config frame, so only the first one after config counts.
func join(t *testing.T, conn *websocket.Conn, id string) []frame {
	t.Helper()
	send(t, conn, MsgJoin, id)
	var frames []frame
	seenConfig := false
	for {
		f := read(t, conn)
		frames = append(frames, f)
		switch {
		case f.Type == MsgConfig:
			seenConfig = true
		case seenConfig && f.Type == MsgLog && strings.HasSuffix(f.text(t), msgJoined):
			return frames
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
