// Package common provides the data structures shared by the RPC server, the
// RPC clients and the command line tools.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation plugged into dragonboat's logger registry
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to the operation. Includes factory methods for the
//     request and response of every operation.
//
//   - MessageType: Enumeration of the supported operations. SetData is executed
//     as an update turn, GetData and Info as query turns.
//
//   - ServerConfig: Configuration of a server, including the memory region
//     backing it and the mapping of shard ids to memory manager buckets.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with dragonboat's
//     logger package while providing consistent formatting across the application.
package common
