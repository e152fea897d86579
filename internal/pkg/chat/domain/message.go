package chat

import (
	"errors"
	"strings"
	"time"
)

// Origin records which path delivered a message to the client.
type Origin int16

const (
	OriginHistory Origin = 0
	OriginLive    Origin = 1
)

// Message is an immutable log entry in a conversation. ID is
// server-assigned and stays zero until the server acknowledges the
// message. Whether the content is a shared location is re-derived by
// parsing on every read; there is no separate kind field.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderEmail    string    `json:"sender_email"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"is_read"`
	Origin         Origin    `json:"-"`
}

// NewMessage validates and normalizes a message.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == 0 {
		return nil, errors.New("conversation_id is required")
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return nil, errors.New("message must contain content")
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	return &m, nil
}

// SentBy reports whether the message was authored by the user with the
// given email. Identity is decided by sender email, never by which
// socket delivered the message, so the check holds identically for
// history-sourced and live-sourced entries.
func (m Message) SentBy(email string) bool {
	return m.SenderEmail != "" && strings.EqualFold(m.SenderEmail, email)
}

// User identifies the local account operating a session.
type User struct {
	ID    int64
	Email string
	Name  string
	Phone string
}
