// Package session holds the client-side session state and its store.
//
// # Overview
//
// The session package models a chat session (the session record, its
// messages, and transient flags like loading and streaming) and wraps
// it in a Store that changes only through dispatched actions. Every
// dispatch produces an immutable snapshot that is published to
// subscribers in dispatch order.
//
// # Store
//
//	store := session.NewStore(logger)
//	store.Dispatch(session.AddMessage{Message: msg})
//	state := store.Snapshot()
//
// Actions are a closed set: SetSession, AddMessage, UpdateMessage,
// SetLoading, SetStreaming, SetError, ClearMessages, and ResetState.
// UpdateMessage patches one message by ID; an unknown ID is a logged
// no-op.
//
// # Subscriptions
//
// Subscribe returns a buffered channel of State snapshots:
//
//	snapshots, id := store.Subscribe(ctx)
//
// Publishing never blocks: a subscriber that falls behind misses
// intermediate snapshots rather than stalling dispatch. Cancelling
// ctx unsubscribes automatically.
package session
