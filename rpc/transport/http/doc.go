// Package http carries sKV RPC messages over plain HTTP/1.1.
//
// Every request is a POST to /{shardId} whose body is the serialized message;
// the response body is the serialized reply. Transport failures map to
// non-200 status codes, store failures travel inside the reply. The server
// also answers GET /metrics with all VictoriaMetrics counters of the process
// in the Prometheus text format, so no separate metrics listener is needed.
//
// The client accepts endpoints with or without a scheme ("localhost:8080" is
// read as "http://localhost:8080"), picks endpoints round-robin and retries a
// failed request on the next endpoint. It is safe for concurrent use.
//
// With --log-level=debug the server logs every request with its duration.
package http
