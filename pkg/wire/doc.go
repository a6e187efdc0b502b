// Package wire defines the vocabulary shared by resock clients and servers.
//
// It contains three things:
//   - Close codes: the RFC 6455 codes 1000-1015 plus the private (3000-3005)
//     and application (4000+) ranges used by resock.
//   - Connection events: the tagged union broadcast to lifecycle observers
//     and pushed from servers to clients.
//   - Frames: the unit carried by a transport message, either opaque data or
//     a connection event, encoded by a Codec.
//
// # Frame Encoding
//
// The default CBORCodec encodes frames as CBOR (RFC 8949) maps with integer
// keys:
//
//	{1: kind, 2: payload, 3: event}
//
// RawCodec skips framing entirely and treats every transport message as a
// data frame. It never reports malformed frames.
package wire
