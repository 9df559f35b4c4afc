// Package transport defines the interfaces between the RPC layer and the
// network. A server transport receives (shard id, request bytes) pairs and
// hands them to a registered handler, a client transport sends them and
// returns the response bytes. Serialization is not a transport concern.
//
// Implementations:
//
//   - http: one POST request per call, plus a Prometheus /metrics endpoint
//   - tcp: framed requests multiplexed over pooled connections (see base)
//   - unix: like tcp, over Unix domain sockets
package transport
