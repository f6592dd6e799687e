// Package audit relays client-side authentication events to a sink without
// blocking the caller.
//
// # Components
//
//   - [Sink] consumes events (channel, JSON lines, slog, no-op).
//   - [Dispatcher] is a buffered relay that either drops or blocks when full.
//   - [Event] is one record: type, user, outcome, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the controller does that.
//   - Carry secrets, tokens or codes in events.
package audit
