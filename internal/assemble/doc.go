// Package assemble turns stream events into store actions.
//
// The Assembler reduces the inbound event sequence (start, content
// and block deltas, markers, completion, error) into a growing
// assistant message in the session store. At most one message is
// streaming at a time: a start event while one is open freezes the
// prior message first, and deltas that arrive with no open message
// are dropped.
package assemble
