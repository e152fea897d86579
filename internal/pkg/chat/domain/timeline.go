package chat

// Timeline is the ordered, deduplicated message sequence of one
// conversation: history entries in server-timestamp order followed by
// live entries in arrival order. It is append-only; entries are never
// removed or reordered, only dropped wholesale on teardown.
//
// Timeline is not safe for concurrent use; the owning session
// serializes access.
type Timeline struct {
	messages []Message
	seen     map[int64]struct{}
}

// NewTimeline seeds a timeline with pre-ordered history messages.
// Duplicate ids within the history are collapsed, keeping the first.
func NewTimeline(history []Message) *Timeline {
	t := &Timeline{
		messages: make([]Message, 0, len(history)),
		seen:     make(map[int64]struct{}, len(history)),
	}
	for _, m := range history {
		m.Origin = OriginHistory
		t.append(m)
	}
	return t
}

// Merge appends a live message at the tail. When the id is already
// present the call is a no-op and returns false; the existing entry is
// neither replaced nor reordered.
func (t *Timeline) Merge(m Message) bool {
	m.Origin = OriginLive
	return t.append(m)
}

func (t *Timeline) append(m Message) bool {
	if m.ID != 0 {
		if _, dup := t.seen[m.ID]; dup {
			return false
		}
		t.seen[m.ID] = struct{}{}
	}
	t.messages = append(t.messages, m)
	return true
}

// Len reports the number of entries.
func (t *Timeline) Len() int { return len(t.messages) }

// Messages returns a copy of the ordered entries.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the newest entry, or false when the timeline is empty.
func (t *Timeline) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
