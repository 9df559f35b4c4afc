// Package tcp implements the TCP socket transport of the sKV RPC system. It
// provides the TCP specific connectors for the base package, which carries
// the framing, connection pooling and request correlation.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides disable Nagle's algorithm and enable keep-alive. The server
// buffer size is 512 KB.
package tcp
