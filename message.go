package chainz

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Message is the execution context of one pipeline run.
//
// The zero value is an empty, healthy, unlocked Message with no token; use
// NewMessage to get a correlation token. A Message is created per invocation
// and handed by reference to every operation and scope of that invocation. It
// is not safe for concurrent use; callers running pipelines concurrently must
// give each run its own Message.
type Message struct {
	token   string
	clock   clockz.Clock
	content map[any]any
	order   []any
	notices []Notice
	faulty  bool
	locked  bool

	// run-scoped bookkeeping, kept out of the content bag
	state map[any]any
}

// MessageOption configures a Message at construction.
type MessageOption func(*Message)

// WithToken sets the correlation token instead of generating one.
func WithToken(token string) MessageOption {
	return func(m *Message) {
		m.token = token
	}
}

// WithMessageClock sets the clock used to timestamp notices.
func WithMessageClock(clock clockz.Clock) MessageOption {
	return func(m *Message) {
		m.clock = clock
	}
}

// NewMessage creates an empty, healthy, unlocked Message. Unless WithToken is
// given, the correlation token is a fresh UUID.
func NewMessage(opts ...MessageOption) *Message {
	m := &Message{
		content: make(map[any]any),
		state:   make(map[any]any),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.token == "" {
		m.token = uuid.NewString()
	}
	if m.clock == nil {
		m.clock = clockz.RealClock
	}
	return m
}

// Token returns the correlation token. It is only meant for log and trace
// correlation.
func (m *Message) Token() string {
	return m.token
}

// Faulty reports whether any operation has faulted the message.
func (m *Message) Faulty() bool {
	return m.faulty
}

// Locked reports whether the message only admits required operations.
func (m *Message) Locked() bool {
	return m.locked
}

// Lock restricts the rest of the run to required operations.
func (m *Message) Lock() {
	m.locked = true
}

// Fail marks the message faulty and records text as an error notice.
// The fault flag cannot be cleared.
func (m *Message) Fail(text string) {
	m.faulty = true
	m.addNotice(LevelError, "", text)
}

// Failf is Fail with formatting.
func (m *Message) Failf(format string, args ...any) {
	m.Fail(fmt.Sprintf(format, args...))
}

// failFrom faults the message on behalf of a named operation.
func (m *Message) failFrom(source Name, text string) {
	m.faulty = true
	m.addNotice(LevelError, source, text)
}

// Info records an informational notice.
func (m *Message) Info(text string) {
	m.addNotice(LevelInfo, "", text)
}

// Warn records a warning notice.
func (m *Message) Warn(text string) {
	m.addNotice(LevelWarning, "", text)
}

// Error records an error notice without faulting the message.
func (m *Message) Error(text string) {
	m.addNotice(LevelError, "", text)
}

// Note records a notice attributed to source.
func (m *Message) Note(level Level, source Name, text string) {
	m.addNotice(level, source, text)
}

// Notices returns a copy of every notice recorded so far, in order.
func (m *Message) Notices() []Notice {
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}

// Errors returns the error-level notices.
func (m *Message) Errors() []Notice {
	var out []Notice
	for _, n := range m.notices {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

// FirstError returns the text of the first error-level notice, or "".
func (m *Message) FirstError() string {
	for _, n := range m.notices {
		if n.Level == LevelError {
			return n.Text
		}
	}
	return ""
}

func (m *Message) addNotice(level Level, source Name, text string) {
	clock := m.clock
	if clock == nil {
		clock = clockz.RealClock
	}
	m.notices = append(m.notices, Notice{
		Level:  level,
		Source: source,
		Text:   text,
		Time:   clock.Now(),
	})
}

// RunState returns the bookkeeping value stored under key. Run state is where
// operations keep what they need to roll back; it is not part of the content
// bag and never appears in Contents or Len. Keys should be unexported types,
// as with context values.
func (m *Message) RunState(key any) (any, bool) {
	v, ok := m.state[key]
	return v, ok
}

// SetRunState stores value under key in the run state.
func (m *Message) SetRunState(key, value any) {
	if m.state == nil {
		m.state = make(map[any]any)
	}
	m.state[key] = value
}

// ClearRunState removes key from the run state.
func (m *Message) ClearRunState(key any) {
	delete(m.state, key)
}
