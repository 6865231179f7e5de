// ABOUTME: REST client for the collaborator services around the streaming core
// ABOUTME: Session creation, history retrieval, and session management calls

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/loom/internal/auth"
)

// defaultTimeout bounds a single collaborator request.
const defaultTimeout = 30 * time.Second

// Client calls the REST collaborator services. These services are
// external to the streaming core: the core only consumes their
// results (session metadata, past messages).
type Client struct {
	baseURL string
	httpc   *http.Client
	cred    *auth.Credential
	logger  *slog.Logger
}

// New creates a collaborator client. Pass nil logger for default.
func New(baseURL string, cred *auth.Credential, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		cred:    cred,
		logger:  logger.With("component", "api"),
	}
}

// doJSON performs one authenticated request. A non-nil out receives
// the decoded response body. 401 responses map to auth.ErrAuthRejected.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.Token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s %s returned 401", auth.ErrAuthRejected, method, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, excerpt)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
