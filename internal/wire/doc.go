// Package wire defines the JSON frame protocol for the stream.
//
// Inbound frames are JSON objects tagged with a "type" field and
// decode into Event values; malformed or unknown frames produce a
// ProtocolError so the caller can skip them without dropping the
// connection. Outbound frames (auth, problem, ping) are built by the
// *Frame helpers.
package wire
