// ABOUTME: Frame codec for the per-work streaming endpoint
// ABOUTME: Decodes inbound JSON frames into tagged Events and builds outbound frames

package wire

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of a decoded stream event.
type Kind int

const (
	KindStart Kind = iota
	KindContent
	KindJSONBlock
	KindXMLOpen
	KindXMLClose
	KindComplete
	KindError
	KindPing
	KindPong
)

// String returns the wire-level type string for the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindContent:
		return "content"
	case KindJSONBlock:
		return "json_block"
	case KindXMLOpen:
		return "xml_open"
	case KindXMLClose:
		return "xml_close"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Event is a decoded inbound frame. Only the fields relevant to the
// Kind are populated: Text for KindContent, Block for KindJSONBlock,
// ErrorMessage for KindError.
type Event struct {
	Kind         Kind
	Text         string
	Block        json.RawMessage
	ErrorMessage string
}

// ProtocolError indicates a frame that could not be decoded. It is
// never fatal to the session: callers log it and skip the frame.
type ProtocolError struct {
	Reason string
	Frame  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (frame: %s)", e.Reason, e.Frame)
}

// frameExcerptLen bounds how much of a bad frame is carried in the error.
const frameExcerptLen = 120

func excerpt(raw []byte) string {
	if len(raw) > frameExcerptLen {
		return string(raw[:frameExcerptLen]) + "..."
	}
	return string(raw)
}

// inboundFrame is the superset of all inbound frame shapes.
type inboundFrame struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Block   json.RawMessage `json:"block,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Decode parses a single inbound frame. A frame that fails to parse,
// or whose type is unknown, yields a *ProtocolError.
func Decode(raw []byte) (Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, &ProtocolError{Reason: err.Error(), Frame: excerpt(raw)}
	}

	switch frame.Type {
	case "start":
		return Event{Kind: KindStart}, nil
	case "content":
		return Event{Kind: KindContent, Text: frame.Content}, nil
	case "json_block":
		if len(frame.Block) == 0 {
			return Event{}, &ProtocolError{Reason: "json_block frame missing block", Frame: excerpt(raw)}
		}
		return Event{Kind: KindJSONBlock, Block: frame.Block}, nil
	case "xml_open":
		return Event{Kind: KindXMLOpen}, nil
	case "xml_close":
		return Event{Kind: KindXMLClose}, nil
	case "complete":
		return Event{Kind: KindComplete}, nil
	case "error":
		return Event{Kind: KindError, ErrorMessage: frame.Message}, nil
	case "ping":
		return Event{Kind: KindPing}, nil
	case "pong":
		return Event{Kind: KindPong}, nil
	case "":
		return Event{}, &ProtocolError{Reason: "frame missing type", Frame: excerpt(raw)}
	default:
		return Event{}, &ProtocolError{Reason: fmt.Sprintf("unknown frame type %q", frame.Type), Frame: excerpt(raw)}
	}
}

// authFrame is the first outbound frame on every connection.
type authFrame struct {
	Token string `json:"token"`
}

// problemFrame carries a user message to the backend.
type problemFrame struct {
	Problem string `json:"problem"`
	Model   string `json:"model,omitempty"`
}

// pingFrame is the heartbeat probe.
type pingFrame struct {
	Type string `json:"type"`
}

// AuthFrame builds the authentication frame carrying the credential token.
func AuthFrame(token string) ([]byte, error) {
	return json.Marshal(authFrame{Token: token})
}

// ProblemFrame builds a user-message frame. Model is omitted when empty.
func ProblemFrame(problem, model string) ([]byte, error) {
	return json.Marshal(problemFrame{Problem: problem, Model: model})
}

// PingFrame builds a heartbeat frame.
func PingFrame() ([]byte, error) {
	return json.Marshal(pingFrame{Type: "ping"})
}
