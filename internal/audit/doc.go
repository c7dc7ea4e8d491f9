// Package audit implements async event dispatching for security-relevant
// operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay. Drop-if-full mode still waits for
//     must-deliver event types such as refresh reuse; drops are counted and
//     logged, and a panicking sink does not stop delivery.
//   - [Event]: structured audit record with timestamp, type, account, actor, IP, metadata.
//
// This package owns buffering and sink delivery. It does not decide which
// events to emit; the engine does.
package audit
