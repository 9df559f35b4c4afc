package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// The returned store implements store.IStore
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCStore forwards store operations to a server.
type RPCStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *RPCStore) SetDataForPrincipal(p principal.Principal, data string) error {
	_, err := i.invoke(common.NewSetDataRequest(p.String(), data))
	return err
}

func (i *RPCStore) GetDataForPrincipal(p principal.Principal) (string, error) {
	resp, err := i.invoke(common.NewGetDataRequest(p.String()))
	if err != nil {
		return "", err
	}
	return string(resp.Value), nil
}

func (i *RPCStore) GetDBInfo() (db.DatabaseInfo, error) {
	info, err := i.Info()
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	return info.Store, nil
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Info returns the memory manager and store information of the shard.
func (i *RPCStore) Info() (common.ShardInfo, error) {
	resp, err := i.invoke(common.NewInfoRequest())
	if err != nil {
		return common.ShardInfo{}, err
	}
	var info common.ShardInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return common.ShardInfo{}, fmt.Errorf("RPC IStoreAdapter - invalid info payload: %w", err)
	}
	return info, nil
}

// Close closes the underlying transport.
func (i *RPCStore) Close() error {
	return i.transport.Close()
}
