package session

import (
	"context"

	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/realtime"
	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
)

// HistoryStore loads and acknowledges conversation history.
type HistoryStore interface {
	// History returns the conversation's messages pre-ordered by server
	// timestamp. An error means the load failed; only a nil error may
	// legitimately carry zero messages.
	History(ctx context.Context, conversationID int64) ([]chat.Message, error)

	// MarkRead acknowledges the conversation's inbound messages.
	MarkRead(ctx context.Context, conversationID int64) error
}

// Conn is one live conversation transport as seen by the session.
type Conn interface {
	ID() string
	Send(text string) bool
	Inbound() <-chan chat.Message
	State() realtime.State
	Err() error
	Close()
}

// Connector opens live conversation transports. Implementations must
// force-close any transport they previously opened before handing out
// a new one.
type Connector interface {
	Open(ctx context.Context, conversationID int64) (Conn, error)
}

type managerConnector struct {
	m *realtime.Manager
}

// NewManagerConnector adapts a realtime.Manager to the Connector port.
func NewManagerConnector(m *realtime.Manager) Connector {
	return managerConnector{m: m}
}

func (c managerConnector) Open(ctx context.Context, conversationID int64) (Conn, error) {
	h, err := c.m.Open(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return h, nil
}
