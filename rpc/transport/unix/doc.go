// Package unix runs the framed base transport over Unix domain sockets, for
// clients on the same machine as the server.
//
// The endpoint is the socket path. A stale socket file left by an earlier run
// is removed before listening. There are no socket options to set, so both
// connectors only dial or listen and leave everything else to package base.
package unix
