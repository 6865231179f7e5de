// ABOUTME: SQLite transcript archive using modernc.org/sqlite
// ABOUTME: Observes store snapshots and persists terminal messages for later replay

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/loom/internal/session"
)

// Archive persists a session's completed messages locally. It is an
// optional observer: write failures are logged and never reach the
// streaming core, and the core's ordering guarantees do not depend on
// it.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates an archive at the given path. The schema is created if
// it doesn't exist; parent directories are created if needed.
func Open(path string) (*Archive, error) {
	logger := slog.Default().With("component", "archive")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript archive opened", "path", path)
	return a, nil
}

// createSchema creates the archive tables if they don't exist
func (a *Archive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			session_id   TEXT NOT NULL,
			id           TEXT NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			json_blocks  TEXT,
			message_type TEXT NOT NULL,
			created_at   DATETIME NOT NULL,
			PRIMARY KEY (session_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Attach subscribes the archive to a store and persists terminal
// messages from every snapshot until ctx is cancelled. Streaming
// messages are skipped: they are persisted once frozen.
func (a *Archive) Attach(ctx context.Context, store *session.Store) {
	snapshots, _ := store.Subscribe(ctx)

	go func() {
		for state := range snapshots {
			if state.Session == nil {
				continue
			}
			for _, msg := range state.Messages {
				if msg.IsStreaming {
					continue
				}
				if err := a.upsert(ctx, state.Session.ID, msg); err != nil {
					a.logger.Warn("archiving message failed",
						"session_id", state.Session.ID,
						"message_id", msg.ID,
						"error", err)
				}
			}
		}
	}()
}

// upsert writes one terminal message, replacing any earlier row for
// the same (session, message) pair.
func (a *Archive) upsert(ctx context.Context, sessionID string, msg session.Message) error {
	var blocks sql.NullString
	if len(msg.JSONBlocks) > 0 {
		encoded, err := json.Marshal(msg.JSONBlocks)
		if err != nil {
			return fmt.Errorf("encoding json blocks: %w", err)
		}
		blocks = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, id, role, content, json_blocks, message_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, id) DO UPDATE SET
			content = excluded.content,
			json_blocks = excluded.json_blocks,
			message_type = excluded.message_type`,
		sessionID, msg.ID, string(msg.Role), msg.Content, blocks, string(msg.Type), msg.CreatedAt.UTC())
	return err
}

// Replay returns a session's archived messages in creation order.
func (a *Archive) Replay(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, role, content, json_blocks, message_type, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var messages []session.Message
	for rows.Next() {
		var (
			msg       session.Message
			role      string
			blocks    sql.NullString
			msgType   string
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &blocks, &msgType, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning archived message: %w", err)
		}
		msg.Role = session.Role(role)
		msg.Type = session.MessageType(msgType)
		msg.CreatedAt = createdAt
		if blocks.Valid {
			if err := json.Unmarshal([]byte(blocks.String), &msg.JSONBlocks); err != nil {
				return nil, fmt.Errorf("decoding json blocks: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
