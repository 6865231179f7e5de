// ABOUTME: Connection lifecycle state machine for one session's stream
// ABOUTME: Handles connect, auth, queue flush, heartbeat, and capped backoff reconnect

package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/loom/internal/auth"
	"github.com/2389/loom/internal/queue"
	"github.com/2389/loom/internal/wire"
)

// eventBufferSize is the inbound event channel buffer. The read loop
// blocks rather than drop when the consumer falls this far behind.
const eventBufferSize = 256

// Manager drives one session's physical connection: it dials,
// authenticates, flushes the outbound queue, keeps the link alive with
// heartbeats, and schedules reconnects with capped exponential backoff
// after involuntary drops. At most one physical connection is open at
// any instant.
//
// Disconnect is terminal: it cancels all timers, discards the queue,
// and invalidates any in-flight reconnect. A new Manager is created
// per session when the caller wants to reconnect after that.
type Manager struct {
	cfg       Config
	transport Transport
	cred      *auth.Credential
	queue     *queue.Queue
	logger    *slog.Logger

	mu             sync.Mutex
	state          StateName
	conn           Conn
	gen            uint64 // bumped on Disconnect; stale generations are discarded
	attempts       int
	reconnectTimer *time.Timer
	heartbeatDone  chan struct{}
	terminated     bool

	// wmu serializes frame writes onto the transport.
	wmu sync.Mutex

	events      chan wire.Event
	disconnects chan error
	closeOnce   sync.Once
	closedCh    chan struct{}

	// evMu guards the close of events against an in-flight read loop
	// send. Senders hold the read side across the send.
	evMu     sync.RWMutex
	evClosed bool
}

// NewManager creates a manager for one session. Pass nil logger for
// default.
func NewManager(cfg Config, transport Transport, cred *auth.Credential, logger *slog.Logger) *Manager {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		transport:   transport,
		cred:        cred,
		queue:       queue.New(),
		logger:      logger.With("component", "conn"),
		events:      make(chan wire.Event, eventBufferSize),
		disconnects: make(chan error, 1),
		closedCh:    make(chan struct{}),
	}
}

// Events returns decoded inbound stream events. Heartbeat pongs are
// consumed internally and never appear here. The channel is closed
// when the manager reaches a terminal state: explicit Disconnect,
// retries exhausted, or auth rejection.
func (m *Manager) Events() <-chan wire.Event {
	return m.events
}

// Disconnects delivers the terminal error when reconnect attempts are
// exhausted or authentication is rejected. Explicit Disconnect does
// not produce a notification.
func (m *Manager) Disconnects() <-chan error {
	return m.disconnects
}

// State returns the current lifecycle state.
func (m *Manager) State() StateName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether an authenticated connection is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// QueuedCount returns the number of outbound messages awaiting a
// connection.
func (m *Manager) QueuedCount() int {
	return m.queue.Len()
}

// Connect performs one connect attempt: dial, authenticate, flush the
// outbound queue, then start the heartbeat and read loop. A failed
// attempt schedules a reconnect with backoff before returning the
// error. A credential that is already expired fails immediately with
// no retry.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.cred.Validate(time.Now()); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrAuthRejected, err)
	}

	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.state = StateConnecting
	m.mu.Unlock()

	return m.connectOnce(ctx, gen)
}

// connectOnce runs a single attempt for the given generation.
func (m *Manager) connectOnce(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	c, err := m.transport.Dial(dialCtx, m.cfg.URL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		m.failAttempt(gen)
		return err
	}

	authFrame, err := wire.AuthFrame(m.cred.Token())
	if err != nil {
		_ = c.Close()
		m.failAttempt(gen)
		return fmt.Errorf("building auth frame: %w", err)
	}
	if err := c.WriteMessage(authFrame); err != nil {
		_ = c.Close()
		m.logger.Warn("auth frame send failed", "error", err)
		m.failAttempt(gen)
		return fmt.Errorf("sending auth frame: %w", err)
	}

	m.mu.Lock()
	if gen != m.gen || m.terminated {
		// Disconnect happened while we were dialing; a late connect
		// must never reopen the session.
		m.mu.Unlock()
		_ = c.Close()
		return ErrManagerClosed
	}
	m.conn = c
	m.state = StateConnected
	m.attempts = 0
	hbDone := make(chan struct{})
	m.heartbeatDone = hbDone
	m.mu.Unlock()

	m.logger.Info("connected", "url", m.cfg.URL, "queued", m.queue.Len())

	if err := m.flushQueue(); err != nil {
		m.logger.Warn("queue flush failed after connect", "error", err)
		m.dropConnection(gen, err)
		return err
	}

	go m.readLoop(c, gen)
	go m.heartbeat(gen, hbDone)
	return nil
}

// Send submits a user message. While disconnected the message is
// queued for the next authenticated connection; while connected it is
// appended to the queue and the queue is flushed immediately, which
// serializes concurrent senders and keeps submission order.
func (m *Manager) Send(content, model string) error {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.queue.Enqueue(queue.Item{Content: content, Model: model})
	connected := m.state == StateConnected
	gen := m.gen
	m.mu.Unlock()

	if !connected {
		m.logger.Debug("message queued while disconnected", "queued", m.queue.Len())
		return nil
	}

	if err := m.flushQueue(); err != nil {
		m.dropConnection(gen, err)
		return err
	}
	return nil
}

// flushQueue drains the outbound queue through the open connection.
// The failed item and unsent suffix stay queued for the next attempt.
func (m *Manager) flushQueue() error {
	return m.queue.Flush(func(item queue.Item) error {
		raw, err := wire.ProblemFrame(item.Content, item.Model)
		if err != nil {
			return fmt.Errorf("building problem frame: %w", err)
		}
		return m.writeFrame(raw)
	})
}

// writeFrame serializes one frame onto the current connection.
func (m *Manager) writeFrame(raw []byte) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	m.wmu.Lock()
	defer m.wmu.Unlock()
	return c.WriteMessage(raw)
}

// readLoop decodes inbound frames until the connection drops. A frame
// that fails to decode is logged and skipped; it never ends the
// session. Pongs confirm liveness and are consumed here.
func (m *Manager) readLoop(c Conn, gen uint64) {
	for {
		data, err := c.ReadMessage()
		if err != nil {
			m.mu.Lock()
			deliberate := gen != m.gen || m.terminated || m.state == StateClosing || m.state == StateClosed
			m.mu.Unlock()
			if deliberate {
				return
			}
			if isAuthRejection(err) {
				m.fatal(gen, fmt.Errorf("%w: %v", auth.ErrAuthRejected, err))
				return
			}
			m.logger.Warn("read failed, connection dropped", "error", err)
			m.dropConnection(gen, err)
			return
		}

		ev, derr := wire.Decode(data)
		if derr != nil {
			m.logger.Warn("skipping malformed frame", "error", derr)
			continue
		}
		if ev.Kind == wire.KindPong {
			m.logger.Debug("pong received")
			continue
		}

		if !m.deliverEvent(ev) {
			return
		}
	}
}

// deliverEvent forwards one event to the consumer, blocking while the
// consumer is behind. Reports false once the event stream has closed.
func (m *Manager) deliverEvent(ev wire.Event) bool {
	m.evMu.RLock()
	defer m.evMu.RUnlock()
	if m.evClosed {
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-m.closedCh:
		return false
	}
}

// closeEventStream ends the Events stream. closedCh closes first so a
// read loop blocked on a full event channel unblocks and releases its
// read lock before the channel itself is closed.
func (m *Manager) closeEventStream() {
	m.closeOnce.Do(func() { close(m.closedCh) })
	m.evMu.Lock()
	defer m.evMu.Unlock()
	if !m.evClosed {
		m.evClosed = true
		close(m.events)
	}
}

// heartbeat emits a ping every interval while the generation's
// connection is up. A failed ping drops the connection immediately.
func (m *Manager) heartbeat(gen uint64, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			raw, err := wire.PingFrame()
			if err != nil {
				m.logger.Error("building ping frame", "error", err)
				return
			}
			if err := m.writeFrame(raw); err != nil {
				m.logger.Warn("heartbeat send failed", "error", err)
				m.dropConnection(gen, err)
				return
			}
		}
	}
}

// failAttempt records a failed connect attempt and schedules the next
// one, unless the manager was disconnected in the meantime.
func (m *Manager) failAttempt(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.terminated {
		return
	}
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
}

// dropConnection tears down the current connection after an
// involuntary failure and schedules a reconnect. The outbound queue is
// preserved.
func (m *Manager) dropConnection(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.terminated || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	c := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.stopHeartbeatLocked()
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}
	m.logger.Info("connection dropped", "error", err, "queued", m.queue.Len())
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Caller holds the lock.
func (m *Manager) scheduleReconnectLocked() {
	m.attempts++
	if m.attempts > m.cfg.MaxAttempts {
		m.state = StateClosed
		m.logger.Error("reconnect attempts exhausted", "attempts", m.attempts-1)
		m.notifyDisconnect(ErrRetriesExhausted)
		m.closeEventStream()
		return
	}

	delay := m.backoffDelay(m.attempts)
	gen := m.gen
	m.logger.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.gen || m.terminated || m.state != StateDisconnected {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()
		_ = m.connectOnce(context.Background(), gen)
	})
}

// backoffDelay computes base * 2^(attempt-1) capped at BackoffMax.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.BackoffBase << (attempt - 1)
	if delay <= 0 || delay > m.cfg.BackoffMax {
		return m.cfg.BackoffMax
	}
	return delay
}

// fatal closes the manager on a non-retriable failure (auth rejection)
// and surfaces the error on Disconnects.
func (m *Manager) fatal(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.terminated {
		m.mu.Unlock()
		return
	}
	c := m.conn
	m.conn = nil
	m.stopHeartbeatLocked()
	m.stopReconnectLocked()
	m.state = StateClosed
	m.notifyDisconnect(err)
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}
	m.closeEventStream()
	m.logger.Error("connection closed permanently", "error", err)
}

// Disconnect closes the connection deliberately: all timers are
// cancelled, any in-flight reconnect is invalidated, the outbound
// queue is discarded, and the Events stream is closed. No reconnect
// follows and no disconnect notification is emitted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.terminated = true
	m.gen++
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	c := m.conn
	m.conn = nil
	m.queue.Clear()
	m.state = StateClosed
	m.mu.Unlock()

	m.closeEventStream()
	if c != nil {
		_ = c.Close()
	}
	m.logger.Info("disconnected")
}

// stopHeartbeatLocked stops the heartbeat goroutine. Caller holds the lock.
func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatDone != nil {
		close(m.heartbeatDone)
		m.heartbeatDone = nil
	}
}

// stopReconnectLocked cancels any pending reconnect timer. Caller holds the lock.
func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// notifyDisconnect surfaces a terminal error to the caller without
// blocking. Caller holds the lock.
func (m *Manager) notifyDisconnect(err error) {
	select {
	case m.disconnects <- err:
	default:
	}
}
