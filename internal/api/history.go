// ABOUTME: History retrieval from the collaborator REST API
// ABOUTME: Returns a session's ordered past messages for replay into the store

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/loom/internal/session"
)

type historyResponse struct {
	Messages []session.Message `json:"messages"`
}

// History fetches a session's ordered past messages. Replayed
// messages are terminal by definition; any streaming flag the server
// left set is cleared before they are handed to the caller.
func (c *Client) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	var resp historyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	for i := range resp.Messages {
		resp.Messages[i].IsStreaming = false
	}
	c.logger.Debug("history fetched", "session_id", sessionID, "messages", len(resp.Messages))
	return resp.Messages, nil
}

// Replay dispatches past messages into the store in their stored
// order, preceded by a loading toggle so observers can distinguish
// replay from live traffic.
func Replay(store *session.Store, messages []session.Message) {
	store.Dispatch(session.SetLoading{Loading: true})
	for _, msg := range messages {
		store.Dispatch(session.AddMessage{Message: msg})
	}
	store.Dispatch(session.SetLoading{Loading: false})
}
