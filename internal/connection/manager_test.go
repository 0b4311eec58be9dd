package connection

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

// testServer is a narrator push-channel stand-in recording received intents
// and optionally dropping connections to force reconnects.
type testServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	intents []ws.Envelope
	conns   []*websocket.Conn
	dropN   int // close this many connections right after the first intent
}

func newTestServer(t *testing.T) *testServer {
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
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env ws.Envelope
			if json.Unmarshal(data, &env) == nil {
				ts.mu.Lock()
				ts.intents = append(ts.intents, env)
				drop := ts.dropN > 0
				if drop {
					ts.dropN--
				}
				ts.mu.Unlock()
				if drop {
					conn.Close()
					return
				}
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) intentTypes() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, len(ts.intents))
	for i, env := range ts.intents {
		out[i] = env.Type
	}
	return out
}

func (ts *testServer) push(t *testing.T, env ws.Envelope) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NotEmpty(t, ts.conns)
	conn := ts.conns[len(ts.conns)-1]
	require.NoError(t, conn.WriteJSON(env))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestManager(ts *testServer) *Manager {
	return NewManager(Config{
		URL:        ts.url(),
		CampaignID: "camp",
		UserID:     "user",
	}, testLogger())
}

func TestConnectSendsJoinRoom(t *testing.T) {
	ts := newTestServer(t)
	m := newTestManager(ts)
	defer m.Disconnect()

	m.Connect(context.Background())
	waitFor(t, func() bool { return m.Status() == StatusConnected }, "never connected")
	waitFor(t, func() bool { return len(ts.intentTypes()) == 1 }, "join intent not received")
	assert.Equal(t, ws.IntentJoinRoom, ts.intentTypes()[0])
}

func TestEventsAreDecodedAndDelivered(t *testing.T) {
	ts := newTestServer(t)
	m := newTestManager(ts)
	defer m.Disconnect()

	m.Connect(context.Background())
	waitFor(t, func() bool { return len(ts.intentTypes()) == 1 }, "join intent not received")

	ts.push(t, ws.NewEnvelope("narrative", map[string]string{"content": "hello"}))

	select {
	case env := <-m.Events():
		assert.Equal(t, "narrative", env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestJoinRoomIsResentAfterReconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.dropN = 1 // first connection dies right after the join intent
	m := newTestManager(ts)
	defer m.Disconnect()

	m.Connect(context.Background())
	waitFor(t, func() bool { return len(ts.intentTypes()) >= 2 }, "join not re-sent after reconnect")
	assert.Equal(t, ws.IntentJoinRoom, ts.intentTypes()[0])
	assert.Equal(t, ws.IntentJoinRoom, ts.intentTypes()[1])
}

func TestStatusChangesObserveReconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.dropN = 1
	m := newTestManager(ts)
	defer m.Disconnect()

	statusCh := m.StatusChanges()
	m.Connect(context.Background())

	seen := map[Status]bool{}
	deadline := time.After(5 * time.Second)
	for !(seen[StatusConnected] && seen[StatusReconnecting]) {
		select {
		case s := <-statusCh:
			seen[s] = true
		case <-deadline:
			t.Fatalf("missing transitions, saw %v", seen)
		}
	}
}

func TestConcurrentSendersShareOneConnection(t *testing.T) {
	ts := newTestServer(t)
	m := newTestManager(ts)
	defer m.Disconnect()

	m.Connect(context.Background())
	waitFor(t, func() bool { return len(ts.intentTypes()) == 1 }, "join intent not received")

	// action, attack and next-turn handlers all write through Send at once
	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Send(ws.IntentGameAction, ws.GameActionIntent{Action: "look"}))
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return len(ts.intentTypes()) == senders+1 }, "not all intents arrived")
	for _, typ := range ts.intentTypes()[1:] {
		assert.Equal(t, ws.IntentGameAction, typ)
	}
}

func TestSendFailsWhileDisconnected(t *testing.T) {
	ts := newTestServer(t)
	m := newTestManager(ts)

	err := m.Send("game_action", ws.GameActionIntent{Action: "look"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectIsIdempotentAndClosesEvents(t *testing.T) {
	ts := newTestServer(t)
	m := newTestManager(ts)

	m.Connect(context.Background())
	waitFor(t, func() bool { return m.Status() == StatusConnected }, "never connected")

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, StatusDisconnected, m.Status())
	waitFor(t, func() bool {
		_, open := <-m.Events()
		return !open
	}, "events channel never closed")
}
