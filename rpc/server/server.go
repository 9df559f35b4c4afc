package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/state"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

var (
	requestsTotal = metrics.NewCounter(`skv_rpc_requests_total`)
	requestErrors = metrics.NewCounter(`skv_rpc_request_errors_total`)
)

// serverShard is a struct that represents a shard in the RPC server
// It binds a shard id to a bucket of the process state and holds the adapter
// that handles requests for it
type serverShard struct {
	ID      uint64
	Bucket  memmgr.BucketID
	State   *state.State
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves the stores of one process state over a transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	mu     sync.Mutex
	closed bool
	region memory.IMemory
	state  *state.State
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		requestsTotal.Inc()
		respMsg := s.handle(shardId, req)
		if respMsg.MsgType == common.MsgTError || respMsg.Err != "" {
			requestErrors.Inc()
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

func (s *RPCServer) handle(shardId uint64, req []byte) *common.Message {
	shard, ok := s.shards.Load(shardId)
	if !ok {
		return common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	}

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	}

	ctx := context.Background()
	if s.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
		defer cancel()
	}
	return shard.Adapter.Handle(ctx, &msg, shard)
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof(s.config.String())

	for _, shardConfig := range s.config.Shards {
		if int(shardConfig.Bucket) >= memmgr.MaxBuckets {
			return fmt.Errorf("shard %d: bucket %d out of range (max %d)", shardConfig.ShardID, shardConfig.Bucket, memmgr.MaxBuckets-1)
		}
	}

	region, err := openRegion(s.config)
	if err != nil {
		return err
	}
	st, err := state.New(region)
	if err != nil {
		closeRegion(region)
		return err
	}
	s.region, s.state = region, st

	for _, shardConfig := range s.config.Shards {
		s.shards.Store(shardConfig.ShardID, serverShard{
			ID:      shardConfig.ShardID,
			Bucket:  memmgr.BucketID(shardConfig.Bucket),
			State:   st,
			Adapter: NewIStoreServerAdapter(),
		})
		Logger.Infof("serving shard %d from bucket %d", shardConfig.ShardID, shardConfig.Bucket)
	}

	Logger.Infof("sKV setup completed successfully")
	s.registerTransportHandler()
	return nil
}

// Serve initializes the process state and the shards and serves requests
// until Close is called.
func (s *RPCServer) Serve() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	err := s.init()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, the state executor and releases the region.
func (s *RPCServer) Close() error {
	err := s.transport.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.state != nil {
		s.state.Close()
	}
	if s.region != nil {
		closeRegion(s.region)
	}
	s.state, s.region = nil, nil
	return err
}

// --------------------------------------------------------------------------
// Shard turns (docu see IShard)
// --------------------------------------------------------------------------

func (sh serverShard) Update(ctx context.Context, fn func(store.IStore) error) error {
	return sh.State.Update(ctx, sh.Bucket, fn)
}

func (sh serverShard) Query(ctx context.Context, fn func(store.IReader) error) error {
	return sh.State.Query(ctx, sh.Bucket, fn)
}

func (sh serverShard) Info(ctx context.Context) (common.ShardInfo, error) {
	info, err := sh.State.Info(ctx)
	if err != nil {
		return common.ShardInfo{}, err
	}
	shardInfo := common.ShardInfo{ShardID: sh.ID, Bucket: uint8(sh.Bucket), Memory: info.Memory}
	if dbInfo, ok := info.Stores[sh.Bucket]; ok {
		shardInfo.Store = dbInfo
	} else {
		shardInfo.Store, _ = store.EmptyReader().GetDBInfo()
	}
	return shardInfo, nil
}

// --------------------------------------------------------------------------
// Memory region
// --------------------------------------------------------------------------

func openRegion(config common.ServerConfig) (memory.IMemory, error) {
	switch config.Memory {
	case common.MemoryVector, "":
		return memory.NewVectorMemory(config.MaxPages), nil
	case common.MemoryFile:
		if config.MemoryFile == "" {
			return nil, fmt.Errorf("file memory requires a memory file")
		}
		return memory.OpenFileMemory(config.MemoryFile, config.MaxPages)
	default:
		return nil, fmt.Errorf("unknown memory type %q", config.Memory)
	}
}

func closeRegion(region memory.IMemory) {
	if f, ok := region.(*memory.FileMemory); ok {
		if err := f.Close(); err != nil {
			Logger.Errorf("failed to close memory file: %v", err)
		}
	}
}
