// Package session binds one selected conversation to its live
// transport, timeline, and intent state. A session is single-shot:
// selecting another conversation tears it down and a fresh session is
// constructed for the successor.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/geocode"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/realtime"
	"github.com/Srirag-c-r/dealGOAT/internal/observability"
	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/intent"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/location"
)

// State is the session lifecycle.
type State int16

const (
	StateIdle           State = 0
	StateLoadingHistory State = 1
	StateLive           State = 2
	StateTornDown       State = 3
)

var (
	ErrTornDown       = errors.New("session: torn down")
	ErrAlreadyStarted = errors.New("session: already started")
)

const (
	markReadTimeout  = 10 * time.Second
	redialBase       = 500 * time.Millisecond
	redialCap        = 30 * time.Second
	contactFallback  = "not provided"
	contactSharedFmt = "Sure! You can reach me at %s"
)

// Config carries everything a session needs. All collaborators are
// injected; the session reads no ambient state.
type Config struct {
	Conversation chat.Conversation
	User         chat.User
	Store        HistoryStore
	Connector    Connector
	Geocoder     geocode.Geocoder

	// ReconnectAttempts caps redials after a transport error while
	// live. Zero disables reconnection.
	ReconnectAttempts int

	Logger *slog.Logger
}

// Session orchestrates one conversation: history load, live merge,
// intent classification, and the share actions. All mutable state is
// guarded by one mutex; inbound deliveries are consumed serially by a
// single goroutine.
type Session struct {
	conversation chat.Conversation
	user         chat.User
	role         chat.Role

	store             HistoryStore
	connector         Connector
	geocoder          geocode.Geocoder
	reconnectAttempts int
	log               *slog.Logger

	mu         sync.Mutex
	state      State
	timeline   *chat.Timeline
	suggestion intent.Suggestion
	conn       Conn
	lastErr    error

	closed chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = observability.Logger()
	}
	return &Session{
		conversation:      cfg.Conversation,
		user:              cfg.User,
		role:              cfg.Conversation.RoleOf(cfg.User.ID),
		store:             cfg.Store,
		connector:         cfg.Connector,
		geocoder:          cfg.Geocoder,
		reconnectAttempts: cfg.ReconnectAttempts,
		log:               log.With("conversation_id", cfg.Conversation.ID),
		closed:            make(chan struct{}),
	}
}

// Start loads history and brings the connection live. It is called
// once; the error from a failed history load or dial is surfaced so
// the presentation layer never renders a failed load as an empty
// conversation.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateTornDown:
		s.mu.Unlock()
		return ErrTornDown
	case StateIdle:
		s.state = StateLoadingHistory
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	history, err := s.store.History(ctx, s.conversation.ID)
	if err != nil {
		s.revertToIdle()
		return fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return ErrTornDown
	}
	s.timeline = chat.NewTimeline(history)
	// Surface any suggestion pending from before this session started.
	if last, ok := s.timeline.Last(); ok {
		if sug := intent.Classify(last, s.user, s.role); sug != intent.SuggestNone {
			s.suggestion = sug
		}
	}
	s.mu.Unlock()

	go s.markRead()

	conn, err := s.connector.Open(ctx, s.conversation.ID)
	if err != nil {
		s.revertToIdle()
		return fmt.Errorf("open connection: %w", err)
	}

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		conn.Close()
		return ErrTornDown
	}
	s.conn = conn
	s.state = StateLive
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(conn)
	return nil
}

// Close tears the session down and waits for its goroutines. It must
// complete before a successor session opens its own connection. Safe
// to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.state = StateTornDown
	conn := s.conn
	s.conn = nil
	close(s.closed)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

// State reports the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last transport error observed while live, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Conversation returns the session's conversation snapshot.
func (s *Session) Conversation() chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// Timeline returns an ordered snapshot of the merged history and live
// messages.
func (s *Session) Timeline() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeline == nil {
		return nil
	}
	return s.timeline.Messages()
}

// Suggestion reports the active intent suggestion.
func (s *Session) Suggestion() intent.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestion
}

// DismissSuggestion clears the active suggestion without sending
// anything.
func (s *Session) DismissSuggestion() {
	s.mu.Lock()
	s.suggestion = intent.SuggestNone
	s.mu.Unlock()
}

// Send pushes text through the live connection. It reports false, with
// the suggestion state untouched, unless the transport accepted the
// frame; on success, any active suggestion is cleared regardless of
// what was sent.
func (s *Session) Send(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	conn := s.conn
	live := s.state == StateLive
	s.mu.Unlock()
	if !live || conn == nil {
		return false
	}

	if !conn.Send(text) {
		return false
	}

	s.mu.Lock()
	s.suggestion = intent.SuggestNone
	s.mu.Unlock()
	return true
}

// ShareContact sends the user's phone number as a plain message; it is
// not a distinct message kind on the wire.
func (s *Session) ShareContact() bool {
	phone := strings.TrimSpace(s.user.Phone)
	if phone == "" {
		phone = contactFallback
	}
	return s.Send(fmt.Sprintf(contactSharedFmt, phone))
}

// ShareLocationGPS sends a precise coordinate capture.
func (s *Session) ShareLocationGPS(lat, lon float64) bool {
	return s.Send(location.EncodeGPS(lat, lon))
}

// ShareLocationSpot sends a search-picked meetup spot.
func (s *Session) ShareLocationSpot(c geocode.Candidate) bool {
	return s.Send(location.Encode(chat.SharedLocation{
		Label:     c.Label,
		Address:   c.Address,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
	}))
}

// ShareLocationCity sends the coarse city/pincode fallback taken from
// the listing.
func (s *Session) ShareLocationCity() bool {
	return s.Send(location.EncodeCity(s.conversation.ListingCity, s.conversation.ListingPincode))
}

// SearchMeetupSpots resolves a free-text query into meetup candidates.
func (s *Session) SearchMeetupSpots(ctx context.Context, query string) ([]geocode.Candidate, error) {
	return s.geocoder.Search(ctx, query)
}

// run consumes inbound deliveries until the connection ends, redialing
// with capped exponential backoff after transport errors.
func (s *Session) run(conn Conn) {
	defer s.wg.Done()
	for {
		s.consume(conn)
		if conn.State() != realtime.StateError {
			return
		}

		err := conn.Err()
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.log.Warn("live connection failed", "conn_id", conn.ID(), "err", err)

		next, ok := s.redial()
		if !ok {
			return
		}
		conn = next
	}
}

func (s *Session) consume(conn Conn) {
	for msg := range conn.Inbound() {
		s.mu.Lock()
		if s.state != StateLive || s.conn != conn {
			s.mu.Unlock()
			return
		}
		if s.timeline.Merge(msg) {
			if sug := intent.Classify(msg, s.user, s.role); sug != intent.SuggestNone {
				s.suggestion = sug
			}
		}
		s.mu.Unlock()
	}
}

func (s *Session) redial() (Conn, bool) {
	backoff := redialBase
	for attempt := 1; attempt <= s.reconnectAttempts; attempt++ {
		select {
		case <-s.closed:
			return nil, false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), redialCap)
		conn, err := s.connector.Open(ctx, s.conversation.ID)
		cancel()
		if err == nil {
			s.mu.Lock()
			if s.state != StateLive {
				s.mu.Unlock()
				conn.Close()
				return nil, false
			}
			s.conn = conn
			s.lastErr = nil
			s.mu.Unlock()
			s.log.Info("live connection restored", "conn_id", conn.ID(), "attempt", attempt)
			return conn, true
		}
		s.log.Warn("redial failed", "attempt", attempt, "err", err)

		backoff *= 2
		if backoff > redialCap {
			backoff = redialCap
		}
	}
	return nil, false
}

// markRead is fire-and-forget: a failure is logged and never blocks or
// surfaces, read status being advisory. On success the local unread
// count is reset. Deliberately outside the teardown waitgroup so Close
// never waits on a read receipt.
func (s *Session) markRead() {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()

	if err := s.store.MarkRead(ctx, s.conversation.ID); err != nil {
		s.log.Warn("mark read failed", "err", err)
		return
	}
	s.mu.Lock()
	if s.state != StateTornDown {
		s.conversation.UnreadCount = 0
	}
	s.mu.Unlock()
}

func (s *Session) revertToIdle() {
	s.mu.Lock()
	if s.state == StateLoadingHistory {
		s.state = StateIdle
	}
	s.mu.Unlock()
}
