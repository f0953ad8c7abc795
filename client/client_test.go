package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"messenger-ws/internal/domain"
)

// testServer accepts websocket connections, answers application-level pings
// with pongs, and records every client event it reads.
type testServer struct {
	upgrader websocket.Upgrader
	srv      *httptest.Server

	mu     sync.Mutex
	events []domain.ClientEvent
	conns  []*websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		for {
			var ev domain.ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			ts.mu.Lock()
			ts.events = append(ts.events, ev)
			ts.mu.Unlock()
			if ev.Type == domain.EventPing {
				conn.WriteJSON(domain.NewServerEvent(domain.EventPong, nil))
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) eventsOfType(eventType string) []domain.ClientEvent {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []domain.ClientEvent
	for _, ev := range ts.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (ts *testServer) waitForEvents(t *testing.T, eventType string, n int, timeout time.Duration) []domain.ClientEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evs := ts.eventsOfType(eventType); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ts.eventsOfType(eventType)
}

func (ts *testServer) connectionCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

// dropConnections force-closes every accepted transport, simulating a server
// restart or network partition from the client's point of view.
func (ts *testServer) dropConnections() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, conn := range ts.conns {
		conn.Close()
	}
	ts.conns = nil
}

func testOptions(ts *testServer) Options {
	return Options{
		URL:               ts.url(),
		UserID:            "user-a",
		HeartbeatInterval: 20 * time.Millisecond,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
	}
}

func TestClient_RequiresIdentity(t *testing.T) {
	req := require.New(t)

	_, err := New(Options{UserID: "user-a"})
	req.Error(err)

	_, err = New(Options{URL: "ws://localhost:8082"})
	req.Error(err)

	c, err := New(Options{URL: "ws://localhost:8082", UserID: "user-a"})
	req.NoError(err)
	req.NotEmpty(c.SessionID())
}

func TestClient_OperationsDroppedWhenDisconnected(t *testing.T) {
	req := require.New(t)
	c, err := New(Options{URL: "ws://localhost:8082", UserID: "user-a"})
	req.NoError(err)

	req.ErrorIs(c.JoinGlobal(), ErrNotConnected)
	req.ErrorIs(c.JoinConversation("conv-1"), ErrNotConnected)
	_, err = c.SendMessage("conv-1", "hi", nil)
	req.ErrorIs(err, ErrNotConnected)
	req.ErrorIs(c.Typing("conv-1", "Alice"), ErrNotConnected)
	req.ErrorIs(c.GoOffline(), ErrNotConnected)
}

func TestClient_DuplicateConnectSuppressed(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	c, err := New(testOptions(ts))
	req.NoError(err)
	defer c.Close()

	req.NoError(c.Connect())
	req.Equal(StateConnected, c.State())

	// Second attempt is a no-op, not a second transport.
	req.NoError(c.Connect())
	time.Sleep(20 * time.Millisecond)
	req.Equal(1, ts.connectionCount())
}

func TestClient_HeartbeatSendsPings(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	c, err := New(testOptions(ts))
	req.NoError(err)
	defer c.Close()
	req.NoError(c.Connect())

	pings := ts.waitForEvents(t, domain.EventPing, 2, time.Second)
	req.GreaterOrEqual(len(pings), 2)
}

func TestClient_SendMessageReturnsTempID(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	c, err := New(testOptions(ts))
	req.NoError(err)
	defer c.Close()
	req.NoError(c.Connect())

	tempID, err := c.SendMessage("conv-1", "hello", nil)
	req.NoError(err)
	req.NotEmpty(tempID)

	sent := ts.waitForEvents(t, domain.EventSendMessage, 1, time.Second)
	req.Len(sent, 1)

	var p domain.SendMessagePayload
	req.Nil(domain.DecodePayload(sent[0], &p))
	req.Equal("conv-1", p.ConversationID)
	req.Equal("user-a", p.SenderID)
	req.Equal("hello", p.Content)
	req.Equal(tempID, p.TempID)
}

func TestClient_ReconnectsAndRejoins(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	c, err := New(testOptions(ts))
	req.NoError(err)
	defer c.Close()
	req.NoError(c.Connect())

	req.NoError(c.JoinGlobal())
	req.NoError(c.JoinConversation("conv-1"))
	ts.waitForEvents(t, domain.EventJoinPrivate, 1, time.Second)

	ts.dropConnections()

	// The client dials back on its own and re-issues both joins.
	globals := ts.waitForEvents(t, domain.EventJoinGlobal, 2, 2*time.Second)
	req.Len(globals, 2)
	privates := ts.waitForEvents(t, domain.EventJoinPrivate, 2, 2*time.Second)
	req.Len(privates, 2)
	req.Equal(StateConnected, c.State())
}

func TestClient_CloseStopsReconnection(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	c, err := New(testOptions(ts))
	req.NoError(err)
	req.NoError(c.Connect())
	req.NoError(c.Close())

	req.Equal(StateDisconnected, c.State())
	req.ErrorIs(c.Connect(), ErrClosed)

	// No new transport appears after close.
	before := ts.connectionCount()
	time.Sleep(50 * time.Millisecond)
	req.Equal(before, ts.connectionCount())
}

func TestClient_ForwardsServerEvents(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	var mu sync.Mutex
	var received []domain.ServerEvent
	opts := testOptions(ts)
	opts.HeartbeatInterval = time.Minute
	opts.OnEvent = func(ev domain.ServerEvent) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	}

	c, err := New(opts)
	req.NoError(err)
	defer c.Close()
	req.NoError(c.Connect())

	ts.mu.Lock()
	conn := ts.conns[0]
	ts.mu.Unlock()
	req.NoError(conn.WriteJSON(domain.NewServerEvent(domain.EventUserStatus, domain.UserStatus{UserID: "user-b", Online: true})))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	req.Equal(domain.EventUserStatus, received[0].Type)
}
