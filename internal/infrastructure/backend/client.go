// Package backend is the REST client for the marketplace messaging
// collaborator: message history, read receipts, and the conversation
// directory. It holds no state besides its HTTP client and credentials.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
)

// Client talks to the marketplace API. The auth token is injected at
// construction; nothing here reads ambient session state.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	ConversationID int64           `json:"conversation_id"`
	Error          string          `json:"error"`
}

type messageDTO struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Sender         string    `json:"sender"`
	SenderEmail    string    `json:"sender_email"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

func (d messageDTO) toDomain(conversationID int64) chat.Message {
	email := d.SenderEmail
	if email == "" {
		// Older payloads carry the email in the sender field.
		email = d.Sender
	}
	if d.ConversationID != 0 {
		conversationID = d.ConversationID
	}
	return chat.Message{
		ID:             d.ID,
		ConversationID: conversationID,
		SenderID:       d.SenderID,
		SenderEmail:    email,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt,
		Read:           d.IsRead,
	}
}

// History fetches the full message list for a conversation, ordered by
// server timestamp. A failed call is an error; only a successful call
// may legitimately return zero messages.
func (c *Client) History(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	env, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/predictions/messages/conversation/%d/", conversationID))
	if err != nil {
		return nil, err
	}

	var dtos []messageDTO
	if err := json.Unmarshal(env.Data, &dtos); err != nil {
		return nil, fmt.Errorf("backend: decode history: %w", err)
	}

	messages := make([]chat.Message, 0, len(dtos))
	for _, d := range dtos {
		messages = append(messages, d.toDomain(conversationID))
	}
	return messages, nil
}

// MarkRead flags the conversation's inbound messages as read.
func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	_, err := c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/predictions/messages/read/%d/", conversationID))
	return err
}

// Conversations lists every conversation the current user takes part in.
func (c *Client) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	env, err := c.do(ctx, http.MethodGet, "/predictions/messages/conversations/")
	if err != nil {
		return nil, err
	}

	var conversations []chat.Conversation
	if err := json.Unmarshal(env.Data, &conversations); err != nil {
		return nil, fmt.Errorf("backend: decode conversations: %w", err)
	}
	return conversations, nil
}

// StartConversation opens (or returns the existing) conversation for a
// listing and reports its id.
func (c *Client) StartConversation(ctx context.Context, listingID int64) (int64, error) {
	env, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/predictions/messages/start/%d/", listingID))
	if err != nil {
		return 0, err
	}
	if env.ConversationID == 0 {
		return 0, fmt.Errorf("backend: start conversation: missing conversation id")
	}
	return env.ConversationID, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend: %s %s: status %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("backend: decode envelope: %w", err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request rejected"
		}
		return nil, fmt.Errorf("backend: %s %s: %s", method, path, msg)
	}
	return &env, nil
}
