// Package server implements the sKV RPC server. It owns the process state
// (memory region, memory manager and stores) and exposes the stores of the
// configured shards over a transport.
//
// The package focuses on:
//   - Mapping shard ids, as used by clients, to memory manager buckets
//   - Translating requests into state turns: SetData runs as an update turn,
//     GetData and Info run as query turns
//   - Decoupling the request handling from the transport and the serializer
//
// Key Components:
//
//   - IShard: executes turns against the store of one shard.
//
//   - IRPCServerAdapter: translates a request into turns against a shard.
//     NewIStoreServerAdapter is the adapter for the principal store.
//
//   - RPCServer: created with NewRPCServer. Serve opens the memory region
//     named by the configuration, attaches the process state and blocks
//     while the transport serves requests. Close stops the transport and
//     the state executor and releases the region.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards:   []common.ServerShard{{ShardID: 100, Bucket: 0}},
//	  Memory:   common.MemoryFile,
//	  MemoryFile: "skv.mem",
//	  Endpoint: ":8080",
//	  LogLevel: "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatal(err)
//	}
//
// The http transport additionally serves GET /metrics in the Prometheus text
// format, including the engine counters of the btree and memmgr packages.
package server
