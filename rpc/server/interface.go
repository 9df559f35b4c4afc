package server

import (
	"context"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

// IShard executes turns against the store of one shard.
type IShard interface {
	// Update runs fn as an update turn.
	Update(ctx context.Context, fn func(store.IStore) error) error
	// Query runs fn as a query turn.
	Query(ctx context.Context, fn func(store.IReader) error) error
	// Info describes the shard.
	Info(ctx context.Context) (common.ShardInfo, error)
}

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request against shard and returns a response.
	// If an error occurs, it should be set in the response
	Handle(ctx context.Context, req *common.Message, shard IShard) (resp *common.Message)
}
