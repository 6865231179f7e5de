// ABOUTME: Reduces decoded stream events into session store actions
// ABOUTME: Reconstructs one logical assistant message from interleaved deltas

package assemble

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/loom/internal/session"
	"github.com/2389/loom/internal/wire"
)

// Assembler applies a session's inbound event sequence to its store.
// One assistant message streams at a time: start opens it, content and
// json_block grow it, complete or error freezes it. Events that arrive
// with no open message are logged and dropped, so a stray delta can
// never mutate a finished message.
type Assembler struct {
	store  *session.Store
	logger *slog.Logger

	// id of the message currently streaming; empty when none is open.
	currentID string
}

// New creates an assembler bound to a store. Pass nil logger for default.
func New(store *session.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:  store,
		logger: logger.With("component", "assembler"),
	}
}

// StreamingMessageID returns the id of the open assistant message, or
// empty when no stream is open.
func (a *Assembler) StreamingMessageID() string {
	return a.currentID
}

// Apply reduces one event onto the store. Apply is not safe for
// concurrent use; the connection read loop is its only caller.
func (a *Assembler) Apply(ev wire.Event) {
	switch ev.Kind {
	case wire.KindStart:
		a.start()
	case wire.KindContent:
		a.appendContent(ev.Text)
	case wire.KindJSONBlock:
		a.appendBlock(ev)
	case wire.KindXMLOpen:
		a.appendMarker(true)
	case wire.KindXMLClose:
		a.appendMarker(false)
	case wire.KindComplete:
		a.finish(false, "")
	case wire.KindError:
		a.finish(true, ev.ErrorMessage)
	default:
		// ping/pong are consumed by the connection layer and should
		// never reach the assembler.
		a.logger.Warn("unexpected event kind", "kind", ev.Kind.String())
	}
}

func (a *Assembler) start() {
	if a.currentID != "" {
		// A new start before the previous terminal: freeze the old
		// message rather than interleaving two streams into it.
		a.logger.Warn("start event while message still streaming", "message_id", a.currentID)
		a.closeCurrent()
	}

	msg := session.Message{
		ID:          uuid.New().String(),
		Role:        session.RoleAssistant,
		Type:        session.TypeText,
		IsStreaming: true,
		CreatedAt:   time.Now(),
	}
	a.currentID = msg.ID
	a.store.Dispatch(session.AddMessage{Message: msg})
	a.store.Dispatch(session.SetStreaming{Streaming: true})
}

func (a *Assembler) appendContent(text string) {
	if a.currentID == "" {
		a.logger.Debug("content event with no open message dropped")
		return
	}
	a.store.Dispatch(session.UpdateMessage{
		ID:    a.currentID,
		Patch: session.MessagePatch{AppendContent: &text},
	})
}

func (a *Assembler) appendBlock(ev wire.Event) {
	if a.currentID == "" {
		a.logger.Debug("json_block event with no open message dropped")
		return
	}
	cardType := session.TypeJSONCard
	a.store.Dispatch(session.UpdateMessage{
		ID: a.currentID,
		Patch: session.MessagePatch{
			AppendBlock: ev.Block,
			SetType:     &cardType,
		},
	})
}

// appendMarker records an xml boundary at the current content offset.
// Open/close balance is deliberately not enforced; the markers are
// opaque to this layer and the renderer owns their interpretation.
func (a *Assembler) appendMarker(open bool) {
	if a.currentID == "" {
		a.logger.Debug("xml marker with no open message dropped")
		return
	}
	offset := 0
	if msg, ok := a.store.Message(a.currentID); ok {
		offset = len(msg.Content)
	}
	a.store.Dispatch(session.UpdateMessage{
		ID:    a.currentID,
		Patch: session.MessagePatch{AppendMarker: &session.Marker{Open: open, Offset: offset}},
	})
}

// finish ends the open stream. An error terminal replaces the message
// content with a human-readable error string, even when the server
// sent no message text; a complete terminal leaves the content as
// assembled.
func (a *Assembler) finish(failed bool, errMessage string) {
	if a.currentID == "" {
		a.logger.Debug("terminal event with no open message dropped")
		return
	}

	patch := session.MessagePatch{SetStreaming: boolPtr(false)}
	if failed {
		content := fmt.Sprintf("Error: %s", errMessage)
		patch.SetContent = &content
	}
	a.store.Dispatch(session.UpdateMessage{ID: a.currentID, Patch: patch})
	a.currentID = ""
	a.store.Dispatch(session.SetStreaming{Streaming: false})
}

// closeCurrent freezes the open message without touching its content.
func (a *Assembler) closeCurrent() {
	a.store.Dispatch(session.UpdateMessage{
		ID:    a.currentID,
		Patch: session.MessagePatch{SetStreaming: boolPtr(false)},
	})
	a.currentID = ""
}

func boolPtr(b bool) *bool { return &b }
