// Package transport defines the socket abstraction used by connections and
// servers, together with WebSocket implementations of it.
//
// A Transport is one established socket. It reports everything it observes
// to a Listener: the open, each inbound message, errors, and exactly one
// close with a WebSocket close code. Dialers create client transports.
//
// # Implementations
//
//   - GorillaDialer and NewGorillaTransport use github.com/gorilla/websocket.
//     The server side wraps upgraded sockets with NewGorillaTransport.
//   - CoderDialer uses github.com/coder/websocket.
//
// # Keep-Alive
//
// Gorilla transports can run a KeepAlive monitor. Pings carry a sequence
// number; a pong echoing the pending sequence clears the missed counter.
// After MaxMissedPongs consecutive misses the socket is dropped and the
// listener sees close code 1006 (abnormal closure).
//
// Defaults:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport
