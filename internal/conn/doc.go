// Package conn manages the lifecycle of a streaming connection.
//
// # Overview
//
// The conn package owns the websocket to the collaborator's streaming
// endpoint: dialing, authentication, heartbeat, reconnection with
// exponential backoff, and delivery of decoded events. Callers see a
// single Manager; the underlying connection may come and go without
// the caller's involvement.
//
// # Manager
//
// A Manager is created with a resolved endpoint URL and a credential:
//
//	mgr := conn.NewManager(cfg, conn.NewWebSocketTransport(cfg.ConnectTimeout), cred, logger)
//	if err := mgr.Connect(ctx); err != nil { ... }
//
// Key operations:
//
//   - Connect(ctx): dial, authenticate, and flush the outbound queue
//   - Send(content, model): enqueue a problem and flush if connected
//   - Events(): decoded inbound events, in arrival order; the channel
//     closes when the manager reaches a terminal state
//   - Disconnects(): terminal failures (auth rejection, retries exhausted)
//   - Disconnect(): voluntary teardown; the outbound queue is discarded
//
// # Reconnection
//
// An involuntary drop schedules a redial after base<<(attempt-1),
// capped at BackoffMax. A successful connection resets the attempt
// counter. After MaxAttempts consecutive failures the manager closes
// and reports ErrRetriesExhausted on Disconnects. Messages sent while
// disconnected stay queued and flush in order on reconnect.
//
// # Heartbeat
//
// While connected, the manager sends a ping every HeartbeatInterval.
// A failed ping drops the connection and triggers the reconnect path.
// Pong frames are consumed here and never reach Events.
package conn
