package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Srirag-c-r/dealGOAT/internal/observability"
	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
)

const (
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
	readWait        = 60 * time.Second
	readLimit       = 1 << 20 // 1MB payload cap
	inboundCapacity = 64
	sendCapacity    = 16
)

// State is the lifecycle of one live connection handle.
type State int32

const (
	StateDisconnected State = 0
	StateConnecting   State = 1
	StateOpen         State = 2
	StateClosed       State = 3
	StateError        State = 4
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Handle is one live per-conversation connection. Inbound messages are
// delivered in arrival order over a bounded channel; no reordering or
// buffering happens here. A transport error moves the handle to
// StateError, closes the inbound channel, and is never retried by this
// layer.
type Handle struct {
	id             string
	ConversationID int64

	ws      *websocket.Conn
	send    chan []byte
	inbound chan chat.Message
	done    chan struct{}
	once    sync.Once
	state   atomic.Int32

	errMu   sync.Mutex
	lastErr error
}

func newHandle(conversationID int64) *Handle {
	h := &Handle{
		id:             uuid.NewString(),
		ConversationID: conversationID,
		send:           make(chan []byte, sendCapacity),
		inbound:        make(chan chat.Message, inboundCapacity),
		done:           make(chan struct{}),
	}
	h.state.Store(int32(StateConnecting))
	return h
}

// attach binds the dialed socket and starts the pumps.
func (h *Handle) attach(ws *websocket.Conn) {
	h.ws = ws
	h.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	go h.readLoop()
	go h.writeLoop()
}

// fail marks a handle that never reached the open state.
func (h *Handle) fail(err error) {
	h.recordErr(err)
	h.state.Store(int32(StateError))
	h.once.Do(func() {
		close(h.done)
		close(h.inbound)
	})
}

// ID identifies this handle across its lifetime, tying log lines from
// the pumps and the session to one dial.
func (h *Handle) ID() string {
	return h.id
}

// State reports the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Err returns the transport error that moved the handle to StateError,
// or nil.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.lastErr
}

// Inbound is the arrival-ordered delivery channel. It is closed when
// the connection ends, whatever the cause.
func (h *Handle) Inbound() <-chan chat.Message {
	return h.inbound
}

type outboundFrame struct {
	Message string `json:"message"`
}

// Send enqueues text for delivery. It reports false, without error,
// whenever the state is not open or the outbound buffer is full;
// callers must not assume delivery on a true result either, only that
// the transport accepted the frame.
func (h *Handle) Send(text string) bool {
	if h.State() != StateOpen {
		return false
	}
	payload, err := json.Marshal(outboundFrame{Message: text})
	if err != nil {
		return false
	}
	select {
	case <-h.done:
		return false
	case h.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call repeatedly and on a
// handle that never opened.
func (h *Handle) Close() {
	h.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed))
	h.state.CompareAndSwap(int32(StateOpen), int32(StateClosed))
	h.once.Do(func() {
		close(h.done)
		if h.ws != nil {
			_ = h.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = h.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait))
			_ = h.ws.Close()
		} else {
			close(h.inbound)
		}
	})
}

type inboundFrame struct {
	Type    string         `json:"type"`
	Message inboundMessage `json:"message"`
}

type inboundMessage struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	SenderID  int64     `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

func (h *Handle) readLoop() {
	defer close(h.inbound)

	h.ws.SetReadLimit(readLimit)
	_ = h.ws.SetReadDeadline(time.Now().Add(readWait))
	h.ws.SetPongHandler(func(string) error {
		return h.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := h.ws.ReadMessage()
		if err != nil {
			// A deliberate Close already settled the state; anything
			// else is a transport failure.
			if h.state.CompareAndSwap(int32(StateOpen), int32(StateError)) {
				h.recordErr(err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			observability.Logger().Warn("dropping undecodable frame",
				"handle_id", h.id, "conversation_id", h.ConversationID, "err", err)
			continue
		}
		if frame.Type != "message" {
			observability.Logger().Warn("dropping frame of unknown type",
				"handle_id", h.id, "conversation_id", h.ConversationID, "type", frame.Type)
			continue
		}

		msg, err := chat.NewMessage(chat.Message{
			ID:             frame.Message.ID,
			ConversationID: h.ConversationID,
			SenderID:       frame.Message.SenderID,
			SenderEmail:    frame.Message.Sender,
			Content:        frame.Message.Content,
			CreatedAt:      frame.Message.CreatedAt,
			Read:           frame.Message.IsRead,
			Origin:         chat.OriginLive,
		})
		if err != nil {
			observability.Logger().Warn("dropping invalid message frame",
				"handle_id", h.id, "conversation_id", h.ConversationID, "err", err)
			continue
		}

		select {
		case h.inbound <- *msg:
		case <-h.done:
			return
		}
	}
}

func (h *Handle) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case payload := <-h.send:
			if err := h.writeMessage(payload); err != nil {
				h.failWrite(err)
				return
			}
		case <-ticker.C:
			if err := h.writePing(); err != nil {
				h.failWrite(err)
				return
			}
		}
	}
}

// failWrite settles a write-side transport failure. Closing the socket
// here unblocks the read loop at once instead of letting it idle until
// the read deadline lapses, so the session learns of the failure
// promptly. A deliberate Close has already left the open state, in
// which case the swap is a no-op.
func (h *Handle) failWrite(err error) {
	if h.state.CompareAndSwap(int32(StateOpen), int32(StateError)) {
		h.recordErr(err)
	}
	_ = h.ws.Close()
}

func (h *Handle) writeMessage(payload []byte) error {
	if err := h.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return h.ws.WriteMessage(websocket.TextMessage, payload)
}

func (h *Handle) writePing() error {
	if err := h.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return h.ws.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handle) recordErr(err error) {
	h.errMu.Lock()
	if h.lastErr == nil {
		h.lastErr = err
	}
	h.errMu.Unlock()
}
