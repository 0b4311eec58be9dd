package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/ws"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Status is the push-channel connection state, owned exclusively by the
// Manager. It resets to StatusConnecting on every (re)initialization.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Config identifies the room the manager joins after every connect.
type Config struct {
	URL        string
	AuthToken  string
	CampaignID string
	UserID     string
}

// Manager owns the push-channel lifecycle: dialing, the read pump, reconnect
// scheduling, and room membership. Transport errors never reach callers; they
// surface only as status changes.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	subs    []chan Status
	started bool
	stopped bool

	// gorilla allows one concurrent writer per connection; writeMu serializes
	// data frames from Send callers, pings go out via WriteControl
	writeMu sync.Mutex

	events chan ws.Envelope
	done   chan struct{}
}

// NewManager creates a manager in the Disconnected state.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.WithComponent("connection"),
		status: StatusDisconnected,
		events: make(chan ws.Envelope, 64),
		done:   make(chan struct{}),
	}
}

// Connect starts the connect/reconnect loop. It returns immediately; progress
// is observable through Status and StatusChanges. Calling Connect twice is a
// no-op.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.setStatus(StatusConnecting)
	go m.run(ctx)
}

// Disconnect stops the reconnect loop and closes the event stream. It is
// idempotent and safe to call before a connection completes. In-flight fetch
// or persistence operations elsewhere are not cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	conn := m.conn
	m.conn = nil
	close(m.done)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}
	m.setStatus(StatusDisconnected)
}

// Events yields decoded server envelopes. The channel closes after
// Disconnect.
func (m *Manager) Events() <-chan ws.Envelope {
	return m.events
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StatusChanges returns a channel receiving every status transition. The
// channel is buffered; a slow consumer misses intermediate transitions, not
// the latest one.
func (m *Manager) StatusChanges() <-chan Status {
	ch := make(chan Status, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Send marshals an envelope and writes it to the live connection. It is safe
// for concurrent callers. When the transport is down it returns an error so
// the caller can pick a fallback path; it never panics or blocks on
// reconnects.
func (m *Manager) Send(eventType string, content any) error {
	env := ws.NewEnvelope(eventType, content)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// ErrNotConnected is returned by Send while the push channel is down.
var ErrNotConnected = errors.New("push channel not connected")

func (m *Manager) run(ctx context.Context) {
	defer close(m.events)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry for as long as the session lives
	bo.MaxInterval = 30 * time.Second

	first := true
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			m.Disconnect()
			return
		default:
		}

		if !first {
			m.setStatus(StatusReconnecting)
			wait := bo.NextBackOff()
			m.log.Info("scheduling reconnect", "wait", wait.String())
			select {
			case <-time.After(wait):
			case <-m.done:
				return
			case <-ctx.Done():
				m.Disconnect()
				return
			}
		}
		first = false

		conn, err := m.dial(ctx)
		if err != nil {
			m.log.Warn("dial failed", "error", err.Error())
			continue
		}
		bo.Reset()

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		m.setStatus(StatusConnected)

		// Room membership is not preserved by the transport across
		// reconnects, so the join intent goes out on every connection.
		if err := m.Send(ws.IntentJoinRoom, ws.JoinRoomIntent{
			CampaignID: m.cfg.CampaignID,
			UserID:     m.cfg.UserID,
		}); err != nil {
			m.log.Warn("join room failed", "error", err.Error())
		}

		m.readPump(conn)

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		stopped := m.stopped
		m.mu.Unlock()
		conn.Close()

		if stopped {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if m.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+m.cfg.AuthToken)
	}
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	return conn, err
}

func (m *Manager) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pingLoop(conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Warn("read pump ended", "error", err.Error())
			}
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Warn("dropping malformed envelope", "error", err.Error())
			continue
		}

		select {
		case m.events <- env:
		case <-m.done:
			return
		}
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl is safe alongside a concurrent Send
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		case <-m.done:
			return
		}
	}
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	subs := make([]chan Status, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.log.Info("connection status", "status", string(status))
	for _, ch := range subs {
		select {
		case ch <- status:
		default:
			// drop rather than block the transport on a slow consumer
		}
	}
}
