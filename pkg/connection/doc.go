// Package connection provides the resilient client connection for resock.
//
// This package handles:
//   - The connection state machine (Connection)
//   - Exponential backoff with jitter for reconnection attempts (Policy)
//   - Classification of close codes into retryable and terminal
//   - Buffering of outbound messages while disconnected (Queue)
//
// # States
//
//	None ──Connect──▶ Connecting ──open──▶ Connected
//	                     │  ▲                  │ close(code)
//	          dial error │  │ timer            ▼
//	                     ▼  │             Disconnected
//	                 Reconnecting ◀─eligible───┘
//	                                           │ denied / exhausted
//	                                           ▼
//	                                      Terminated
//
// Close() moves any non-terminal state to Closed without consulting the
// classifier. A malformed inbound frame moves the connection to Error and
// then Terminated.
//
// # Reconnection Strategy
//
// Delays grow geometrically from the base delay and are capped:
//
//	delay = min(MaxDelay, BaseDelay * DecayFactor^attempt)
//
// With the defaults (1s, 1.5, 30s) the un-jittered sequence is 1s, 1.5s,
// 2.25s, 3.375s, ... 30s. The attempt counter resets only when a connection
// reaches Connected.
//
// # Jitter
//
// To prevent thundering herd when many clients reconnect at once:
//
//	actual_delay = delay * uniform(1 - JitterFraction, 1 + JitterFraction)
//
// clamped to [0, MaxDelay].
//
// # Ordering
//
// Messages sent while not connected are queued and delivered in enqueue
// order, one at a time, before any message sent after the connection
// (re)opened.
package connection
