// ABOUTME: Core data model for chat sessions and messages
// ABOUTME: Defines Session, Message, and the enums shared across the module

package session

import (
	"encoding/json"
	"time"
)

// SystemType identifies which assistant system a session is bound to.
type SystemType string

const (
	SystemBrain   SystemType = "brain"
	SystemCode    SystemType = "code"
	SystemWriting SystemType = "writing"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleSystem      Role = "system"
	RoleError       Role = "error"
	RoleModelChange Role = "model-change"
)

// MessageType distinguishes plain text messages from ones carrying
// structured JSON card payloads.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeJSONCard MessageType = "json_card"
)

// Session is one conversation context bound to a work unit. It is
// created by the external session service and held here by reference.
type Session struct {
	ID         string     `json:"session_id"`
	WorkID     string     `json:"work_id"`
	SystemType SystemType `json:"system_type"`
	Title      string     `json:"title,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Marker records an xml_open/xml_close boundary in arrival order.
// Offset is the content length at the moment the marker arrived; the
// markers are opaque to this layer and interpreted by the renderer.
type Marker struct {
	Open   bool `json:"open"`
	Offset int  `json:"offset"`
}

// Message is a single entry in a session's ordered message list.
// While IsStreaming is true the content grows by concatenation only;
// once a terminal event arrives the message is frozen.
type Message struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	JSONBlocks  []json.RawMessage `json:"json_blocks,omitempty"`
	Markers     []Marker          `json:"markers,omitempty"`
	Type        MessageType       `json:"message_type"`
	IsStreaming bool              `json:"is_streaming"`
	CreatedAt   time.Time         `json:"created_at"`
}

// clone returns a deep copy of the message so snapshots cannot be
// mutated out from under the store.
func (m Message) clone() Message {
	out := m
	if m.JSONBlocks != nil {
		out.JSONBlocks = make([]json.RawMessage, len(m.JSONBlocks))
		for i, b := range m.JSONBlocks {
			out.JSONBlocks[i] = append(json.RawMessage(nil), b...)
		}
	}
	if m.Markers != nil {
		out.Markers = append([]Marker(nil), m.Markers...)
	}
	return out
}

// State is the full session view held by the store. Snapshots handed
// to subscribers are deep copies.
type State struct {
	Session   *Session  `json:"session,omitempty"`
	Messages  []Message `json:"messages"`
	Loading   bool      `json:"loading"`
	Streaming bool      `json:"streaming"`
	Err       string    `json:"error,omitempty"`
}

func (s State) clone() State {
	out := s
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.clone()
		}
	}
	return out
}
