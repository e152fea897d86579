// Package realtime owns the live websocket leg of a conversation:
// dialing, the single-connection invariant, frame codecs, and inbound
// delivery to the session layer.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Manager dials and tracks the one live connection of a client
// session. Opening a new conversation force-closes whatever handle was
// live before; at no point do two sockets owned by the same manager
// coexist.
type Manager struct {
	wsBaseURL string
	token     string
	dialer    *websocket.Dialer

	mu      sync.Mutex
	current *Handle
}

// NewManager builds a manager for the given websocket root. The auth
// token is carried on every dial as a query parameter, matching the
// server's handshake contract.
func NewManager(wsBaseURL, token string, dialTimeout time.Duration) *Manager {
	return &Manager{
		wsBaseURL: wsBaseURL,
		token:     token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Open connects to the conversation's websocket endpoint. Any handle
// previously opened by this manager is closed first. On dial failure
// the returned error wraps the transport cause and no handle is live.
func (m *Manager) Open(ctx context.Context, conversationID int64) (*Handle, error) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	endpoint := fmt.Sprintf("%s/ws/chat/%d/?token=%s",
		m.wsBaseURL, conversationID, url.QueryEscape(m.token))

	h := newHandle(conversationID)
	ws, resp, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		h.fail(err)
		return nil, fmt.Errorf("realtime: dial conversation %d: %w", conversationID, err)
	}
	h.attach(ws)

	m.mu.Lock()
	m.current = h
	m.mu.Unlock()
	return h, nil
}

// Current returns the live handle, or nil when nothing is open.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the live handle, if any. Safe to call repeatedly.
func (m *Manager) Close() {
	m.mu.Lock()
	h := m.current
	m.current = nil
	m.mu.Unlock()

	if h != nil {
		h.Close()
	}
}
