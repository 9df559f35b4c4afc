// Package base provides the protocol-independent part of the stream based
// transports (tcp, unix). Connectors supply the protocol specifics.
//
// Requests and responses travel as frames:
//
//	[shard id u64][request id u64][length u32][payload]
//
// The client multiplexes concurrent requests over a small pool of connections
// and correlates responses by request id, so responses may arrive out of
// order. The server reads frames sequentially per connection and processes up
// to a fixed number of them concurrently, writing responses as they complete.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: protocol-specific dialing, listening
//     and socket options.
//
//   - clientTransport: round-robin over the pooled connections, retries with
//     exponential backoff and reconnects connections that fail.
//
//   - serverTransport: accepts connections, routes each frame to the
//     registered handler and tracks open connections so Close can end them.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
