// ABOUTME: Session management calls against the collaborator REST API
// ABOUTME: Create, title update, reset, and delete for one session

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/loom/internal/session"
)

type createSessionRequest struct {
	WorkID     string             `json:"work_id"`
	SystemType session.SystemType `json:"system_type"`
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

// CreateSession asks the session service for a new session bound to
// the given work unit and system type.
func (c *Client) CreateSession(ctx context.Context, workID string, systemType session.SystemType) (*session.Session, error) {
	var sess session.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/sessions", createSessionRequest{
		WorkID:     workID,
		SystemType: systemType,
	}, &sess)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	c.logger.Info("session created", "session_id", sess.ID, "work_id", workID)
	return &sess, nil
}

// UpdateTitle renames a session.
func (c *Client) UpdateTitle(ctx context.Context, sessionID, title string) error {
	err := c.doJSON(ctx, http.MethodPatch, "/api/sessions/"+sessionID+"/title", updateTitleRequest{Title: title}, nil)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return nil
}

// ResetSession clears a session's server-side history.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/reset", nil, nil); err != nil {
		return fmt.Errorf("resetting session: %w", err)
	}
	return nil
}

// DeleteSession destroys a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
