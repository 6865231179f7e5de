// ABOUTME: Action-dispatch state store, the single source of truth for a session
// ABOUTME: Applies mutations synchronously and publishes a snapshot after each one

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Action is a closed set of state mutations. Every mutation of the
// store goes through Dispatch with one of the variants below.
type Action interface {
	isAction()
}

// SetSession replaces the session metadata.
type SetSession struct {
	Session *Session
}

// AddMessage appends a message to the ordered list.
type AddMessage struct {
	Message Message
}

// UpdateMessage patches an existing message by id. Unknown ids are a
// no-op, not an error.
type UpdateMessage struct {
	ID    string
	Patch MessagePatch
}

// SetLoading toggles the loading indicator.
type SetLoading struct {
	Loading bool
}

// SetStreaming toggles the session-level streaming indicator.
type SetStreaming struct {
	Streaming bool
}

// SetError sets the session-level error string. Empty clears it.
type SetError struct {
	Err string
}

// ClearMessages removes all messages but keeps session metadata.
type ClearMessages struct{}

// ResetState returns the store to its zero value.
type ResetState struct{}

func (SetSession) isAction()    {}
func (AddMessage) isAction()    {}
func (UpdateMessage) isAction() {}
func (SetLoading) isAction()    {}
func (SetStreaming) isAction()  {}
func (SetError) isAction()      {}
func (ClearMessages) isAction() {}
func (ResetState) isAction()    {}

// MessagePatch describes a partial message update. Nil fields are left
// untouched. AppendContent concatenates; SetContent replaces.
type MessagePatch struct {
	AppendContent *string
	SetContent    *string
	AppendBlock   json.RawMessage
	AppendMarker  *Marker
	SetType       *MessageType
	SetStreaming  *bool
}

// Store owns a session's state. All mutations are serialized through
// Dispatch; subscribers receive a post-mutation snapshot per dispatch.
type Store struct {
	mu       sync.Mutex
	state    State
	notifier *Notifier
	logger   *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")
	return &Store{
		notifier: NewNotifier(logger),
		logger:   logger,
	}
}

// Dispatch applies an action and notifies all current subscribers
// exactly once with the post-mutation snapshot.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(action)

	// Published under the lock so subscribers observe snapshots in
	// dispatch order. Publish never blocks, so this cannot deadlock.
	s.notifier.Publish(s.state.clone())
}

// apply mutates state. Caller holds the lock.
func (s *Store) apply(action Action) {
	switch a := action.(type) {
	case SetSession:
		s.state.Session = a.Session

	case AddMessage:
		s.state.Messages = append(s.state.Messages, a.Message.clone())

	case UpdateMessage:
		idx := -1
		for i := range s.state.Messages {
			if s.state.Messages[i].ID == a.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.logger.Debug("update for unknown message ignored", "message_id", a.ID)
			return
		}
		patchMessage(&s.state.Messages[idx], a.Patch)

	case SetLoading:
		s.state.Loading = a.Loading

	case SetStreaming:
		s.state.Streaming = a.Streaming

	case SetError:
		s.state.Err = a.Err

	case ClearMessages:
		s.state.Messages = nil

	case ResetState:
		s.state = State{}
	}
}

func patchMessage(m *Message, p MessagePatch) {
	if p.AppendContent != nil {
		m.Content += *p.AppendContent
	}
	if p.SetContent != nil {
		m.Content = *p.SetContent
	}
	if p.AppendBlock != nil {
		m.JSONBlocks = append(m.JSONBlocks, append(json.RawMessage(nil), p.AppendBlock...))
	}
	if p.AppendMarker != nil {
		m.Markers = append(m.Markers, *p.AppendMarker)
	}
	if p.SetType != nil {
		m.Type = *p.SetType
	}
	if p.SetStreaming != nil {
		m.IsStreaming = *p.SetStreaming
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Messages {
		if s.state.Messages[i].ID == id {
			return s.state.Messages[i].clone(), true
		}
	}
	return Message{}, false
}

// Subscribe registers a listener for post-mutation snapshots. The
// subscription is removed when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, string) {
	return s.notifier.Subscribe(ctx)
}

// Unsubscribe removes a subscription by id.
func (s *Store) Unsubscribe(subID string) {
	s.notifier.Unsubscribe(subID)
}

// Close shuts down the store's notifier.
func (s *Store) Close() {
	s.notifier.Close()
}
