package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/geocode"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/realtime"
	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/intent"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/session"
)

// ---- fakes ----

type fakeConn struct {
	id      string
	mu      sync.Mutex
	state   realtime.State
	inbound chan chat.Message
	sent    []string
	accept  bool
	lastErr error
	once    sync.Once
}

var fakeConnSeq atomic.Int64

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:      fmt.Sprintf("fake-conn-%d", fakeConnSeq.Add(1)),
		state:   realtime.StateOpen,
		inbound: make(chan chat.Message, 16),
		accept:  true,
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != realtime.StateOpen || !c.accept {
		return false
	}
	c.sent = append(c.sent, text)
	return true
}

func (c *fakeConn) Inbound() <-chan chat.Message { return c.inbound }

func (c *fakeConn) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *fakeConn) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		if c.state == realtime.StateOpen {
			c.state = realtime.StateClosed
		}
		c.mu.Unlock()
		close(c.inbound)
	})
}

// failTransport simulates a transport error: error state, channel closed.
func (c *fakeConn) failTransport(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = realtime.StateError
		c.lastErr = err
		c.mu.Unlock()
		close(c.inbound)
	})
}

func (c *fakeConn) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	opens int
}

func (f *fakeConnector) Open(context.Context, int64) (session.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.conns) == 0 {
		return nil, errors.New("no more connections scripted")
	}
	conn := f.conns[0]
	f.conns = f.conns[1:]
	return conn, nil
}

func (f *fakeConnector) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeStore struct {
	mu         sync.Mutex
	history    []chat.Message
	historyErr error
	block      chan struct{} // when non-nil, History waits on it
	markedRead bool
	markErr    error
}

func (f *fakeStore) History(context.Context, int64) ([]chat.Message, error) {
	if f.block != nil {
		<-f.block
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeStore) MarkRead(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = true
	return f.markErr
}

func (f *fakeStore) readMarked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedRead
}

type fakeGeocoder struct {
	candidates []geocode.Candidate
}

func (f *fakeGeocoder) Search(context.Context, string) ([]geocode.Candidate, error) {
	return f.candidates, nil
}

// ---- helpers ----

var (
	sellerUser = chat.User{ID: 2, Email: "seller@example.com", Phone: "+91 98765 43210"}
	buyerUser  = chat.User{ID: 1, Email: "buyer@example.com"}

	testConversation = chat.Conversation{
		ID:             7,
		BuyerID:        1,
		SellerID:       2,
		ListingID:      5,
		ListingTitle:   "iPhone 13",
		ListingCity:    "Kochi",
		ListingPincode: "682001",
		BuyerName:      "Asha",
		SellerName:     "Ravi",
	}
)

func buyerSays(id int64, content string) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: 7,
		SenderID:       1,
		SenderEmail:    buyerUser.Email,
		Content:        content,
		CreatedAt:      time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func startSession(t *testing.T, user chat.User, store *fakeStore, connector *fakeConnector, attempts int) *session.Session {
	t.Helper()
	s := session.New(session.Config{
		Conversation:      testConversation,
		User:              user,
		Store:             store,
		Connector:         connector,
		Geocoder:          &fakeGeocoder{},
		ReconnectAttempts: attempts,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool, what string) {
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

// ---- tests ----

func TestStartClassifiesLastHistoryMessage(t *testing.T) {
	store := &fakeStore{history: []chat.Message{
		buyerSays(1, "is it still available?"),
		buyerSays(2, "where can we meet?"),
	}}
	connector := &fakeConnector{conns: []*fakeConn{newFakeConn()}}

	s := startSession(t, sellerUser, store, connector, 0)
	if got := s.State(); got != session.StateLive {
		t.Fatalf("state = %v, want live", got)
	}
	if got := s.Suggestion(); got != intent.SuggestLocation {
		t.Fatalf("suggestion = %v, want location from the pending history tail", got)
	}
	if got := len(s.Timeline()); got != 2 {
		t.Fatalf("timeline length = %d, want 2", got)
	}
	waitFor(t, store.readMarked, "mark-read call")
}

func TestStartHistoryFailureSurfaces(t *testing.T) {
	store := &fakeStore{historyErr: errors.New("boom")}
	connector := &fakeConnector{conns: []*fakeConn{newFakeConn()}}

	s := session.New(session.Config{
		Conversation: testConversation,
		User:         sellerUser,
		Store:        store,
		Connector:    connector,
		Geocoder:     &fakeGeocoder{},
	})
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("history failure must surface, never render as an empty conversation")
	}
	if s.State() == session.StateLive {
		t.Fatal("session went live despite a failed history load")
	}
	if s.Timeline() != nil {
		t.Fatal("failed load produced a timeline")
	}
}

func TestLiveMessageMergesAndSuggests(t *testing.T) {
	store := &fakeStore{}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	conn.inbound <- buyerSays(10, "can you share your phone number?")

	waitFor(t, func() bool { return len(s.Timeline()) == 1 }, "live message to merge")
	if got := s.Suggestion(); got != intent.SuggestContact {
		t.Fatalf("suggestion = %v, want contact", got)
	}
}

func TestDuplicateLiveDeliveryIsNoOp(t *testing.T) {
	store := &fakeStore{history: []chat.Message{buyerSays(1, "hello")}}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	conn.inbound <- buyerSays(1, "hello")
	conn.inbound <- buyerSays(2, "second")

	waitFor(t, func() bool { return len(s.Timeline()) == 2 }, "second message to merge")
	if got := len(s.Timeline()); got != 2 {
		t.Fatalf("timeline length = %d, want 2 (duplicate id dropped)", got)
	}
}

func TestSendClearsSuggestion(t *testing.T) {
	store := &fakeStore{history: []chat.Message{buyerSays(1, "where can we meet?")}}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	if s.Suggestion() != intent.SuggestLocation {
		t.Fatal("precondition: expected an active suggestion")
	}
	if !s.Send("sure, let me check") {
		t.Fatal("Send on live session reported false")
	}
	if got := s.Suggestion(); got != intent.SuggestNone {
		t.Fatalf("suggestion after send = %v, want none", got)
	}
}

func TestFailedSendLeavesSuggestionUntouched(t *testing.T) {
	store := &fakeStore{history: []chat.Message{buyerSays(1, "where can we meet?")}}
	conn := newFakeConn()
	conn.accept = false
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	if s.Send("hello") {
		t.Fatal("Send succeeded on a rejecting transport")
	}
	if got := s.Suggestion(); got != intent.SuggestLocation {
		t.Fatalf("suggestion after failed send = %v, want location untouched", got)
	}
}

func TestShareContactFallsBackToPlaceholder(t *testing.T) {
	store := &fakeStore{}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	noPhone := chat.User{ID: 2, Email: "seller@example.com"}
	s := startSession(t, noPhone, store, connector, 0)
	if !s.ShareContact() {
		t.Fatal("ShareContact reported false")
	}

	sent := conn.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0], "not provided") {
		t.Fatalf("sent = %v, want a single message with the placeholder", sent)
	}
}

func TestShareLocationCityUsesListingFields(t *testing.T) {
	store := &fakeStore{}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	if !s.ShareLocationCity() {
		t.Fatal("ShareLocationCity reported false")
	}

	sent := conn.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0], "Kochi, 682001") {
		t.Fatalf("sent = %v, want the listing city and pincode", sent)
	}
	if strings.Contains(sent[0], "google.com/maps") {
		t.Fatal("city fallback must carry no map url")
	}
}

func TestShareLocationGPSSendsEncodedCapture(t *testing.T) {
	store := &fakeStore{}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	if !s.ShareLocationGPS(9.9312, 76.2673) {
		t.Fatal("ShareLocationGPS reported false")
	}
	sent := conn.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0], "https://www.google.com/maps?q=9.9312,76.2673") {
		t.Fatalf("sent = %v, want an encoded GPS capture", sent)
	}
}

func TestBuyerViewerNeverGetsSuggestions(t *testing.T) {
	store := &fakeStore{history: []chat.Message{{
		ID: 1, ConversationID: 7, SenderID: 2,
		SenderEmail: sellerUser.Email, Content: "where should we meet? call me",
		CreatedAt: time.Now(),
	}}}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, buyerUser, store, connector, 0)
	if got := s.Suggestion(); got != intent.SuggestNone {
		t.Fatalf("buyer session suggestion = %v, want none", got)
	}

	conn.inbound <- chat.Message{
		ID: 9, ConversationID: 7, SenderEmail: sellerUser.Email,
		Content: "share your phone number and location",
	}
	waitFor(t, func() bool { return len(s.Timeline()) == 2 }, "live message to merge")
	if got := s.Suggestion(); got != intent.SuggestNone {
		t.Fatalf("buyer session suggestion after live message = %v, want none", got)
	}
}

func TestCloseTearsDownConnection(t *testing.T) {
	store := &fakeStore{}
	conn := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{conn}}

	s := startSession(t, sellerUser, store, connector, 0)
	s.Close()

	if got := s.State(); got != session.StateTornDown {
		t.Fatalf("state = %v, want torn down", got)
	}
	if conn.State() != realtime.StateClosed {
		t.Fatal("session close did not close the connection")
	}
	if s.Send("late") {
		t.Fatal("Send after teardown must report false")
	}
	s.Close() // idempotent
}

func TestTeardownDiscardsStaleHistoryLoad(t *testing.T) {
	store := &fakeStore{
		history: []chat.Message{buyerSays(1, "hello")},
		block:   make(chan struct{}),
	}
	connector := &fakeConnector{conns: []*fakeConn{newFakeConn()}}

	s := session.New(session.Config{
		Conversation: testConversation,
		User:         sellerUser,
		Store:        store,
		Connector:    connector,
		Geocoder:     &fakeGeocoder{},
	})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	waitFor(t, func() bool { return s.State() == session.StateLoadingHistory }, "load to begin")
	s.Close()
	close(store.block)

	if err := <-done; !errors.Is(err, session.ErrTornDown) {
		t.Fatalf("Start after teardown = %v, want ErrTornDown", err)
	}
	if s.Timeline() != nil {
		t.Fatal("stale history load was applied after teardown")
	}
	if connector.openCount() != 0 {
		t.Fatal("torn-down session still opened a connection")
	}
}

func TestRedialAfterTransportError(t *testing.T) {
	store := &fakeStore{}
	first := newFakeConn()
	second := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{first, second}}

	s := startSession(t, sellerUser, store, connector, 3)
	first.failTransport(errors.New("connection reset"))

	waitFor(t, func() bool { return connector.openCount() == 2 }, "redial")
	waitFor(t, func() bool { return s.Err() == nil }, "transport error to clear after redial")

	if !s.Send("back online") {
		t.Fatal("Send after successful redial reported false")
	}
	if got := second.sentMessages(); len(got) != 1 {
		t.Fatalf("replacement connection saw %d sends, want 1", len(got))
	}

	second.inbound <- buyerSays(20, "ok")
	waitFor(t, func() bool { return len(s.Timeline()) == 1 }, "delivery over the replacement connection")
}

func TestRedialStopsAtAttemptCap(t *testing.T) {
	store := &fakeStore{}
	first := newFakeConn()
	dialErr := errors.New("still down")
	connector := &fakeConnector{
		conns: []*fakeConn{first},
		errs:  []error{nil, dialErr, dialErr},
	}

	s := startSession(t, sellerUser, store, connector, 2)
	first.failTransport(errors.New("connection reset"))

	// Initial open plus exactly two redials, then the session gives up.
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) && connector.openCount() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := connector.openCount(); got != 3 {
		t.Fatalf("connector opened %d times, want 3 (1 initial + 2 redials)", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := connector.openCount(); got != 3 {
		t.Fatalf("connector opened %d times after settling, want the cap to hold at 3", got)
	}
	if s.Err() == nil {
		t.Fatal("exhausted redial left no transport error surfaced")
	}
	if s.Send("anyone there?") {
		t.Fatal("Send succeeded after redial exhaustion")
	}
}

func TestNoRedialWhenDisabled(t *testing.T) {
	store := &fakeStore{}
	first := newFakeConn()
	connector := &fakeConnector{conns: []*fakeConn{first, newFakeConn()}}

	s := startSession(t, sellerUser, store, connector, 0)
	first.failTransport(errors.New("connection reset"))

	waitFor(t, func() bool { return s.Err() != nil }, "transport error to surface")
	time.Sleep(50 * time.Millisecond)
	if connector.openCount() != 1 {
		t.Fatalf("connector opened %d times, want 1 (reconnect disabled)", connector.openCount())
	}
}
