package client_test

import (
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/server"
	"github.com/ValentinKolb/sKV/rpc/transport"
	"github.com/ValentinKolb/sKV/rpc/transport/http"
	"github.com/ValentinKolb/sKV/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shardA = uint64(100)
	shardB = uint64(101)
)

type setup struct {
	name            string
	serverTransport func() transport.IRPCServerTransport
	clientTransport func() transport.IRPCClientTransport
	endpoint        func(t *testing.T) string
}

var setups = []setup{
	{
		name:            "unix",
		serverTransport: unix.NewUnixServerTransport,
		clientTransport: unix.NewUnixClientTransport,
		endpoint: func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "skv.sock")
		},
	},
	{
		name:            "http",
		serverTransport: http.NewHttpServerTransport,
		clientTransport: http.NewHttpClientTransport,
		endpoint: func(t *testing.T) string {
			l, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			addr := l.Addr().String()
			require.NoError(t, l.Close())
			return addr
		},
	},
}

// startServer serves two shards from a fresh vector region and returns a
// client store for each of them.
func startServer(t *testing.T, su setup, ser serializer.IRPCSerializer, memFile string) (map[uint64]*client.RPCStore, common.ClientConfig, func()) {
	t.Helper()

	config := common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: shardA, Bucket: 0}, {ShardID: shardB, Bucket: 3}},
		Memory:        common.MemoryVector,
		TimeoutSecond: 5,
		Endpoint:      su.endpoint(t),
		LogLevel:      "error",
	}
	if memFile != "" {
		config.Memory = common.MemoryFile
		config.MemoryFile = memFile
	}

	srv := server.NewRPCServer(config, su.serverTransport(), ser)
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	clientConfig := common.ClientConfig{
		Endpoints:     []string{config.Endpoint},
		TimeoutSecond: 5,
		RetryCount:    3,
	}

	stores := make(map[uint64]*client.RPCStore)
	for _, shard := range []uint64{shardA, shardB} {
		var s *client.RPCStore
		require.Eventually(t, func() bool {
			c, err := client.NewRPCStore(shard, clientConfig, su.clientTransport(), ser)
			if err != nil {
				return false
			}
			// the http transport connects lazily
			if _, err := c.Info(); err != nil {
				_ = c.Close()
				return false
			}
			s = c
			return true
		}, 5*time.Second, 20*time.Millisecond)
		stores[shard] = s
	}

	stop := func() {
		for _, s := range stores {
			_ = s.Close()
		}
		assert.NoError(t, srv.Close())
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	}
	return stores, clientConfig, stop
}

func TestRoundTrip(t *testing.T) {
	for _, su := range setups {
		for name, ser := range map[string]serializer.IRPCSerializer{
			"binary": serializer.NewBinarySerializer(),
			"json":   serializer.NewJSONSerializer(),
			"gob":    serializer.NewGOBSerializer(),
		} {
			t.Run(fmt.Sprintf("%s/%s", su.name, name), func(t *testing.T) {
				stores, _, stop := startServer(t, su, ser, "")
				defer stop()

				alice := principal.MustFromText("2vxsx-fae")
				bob := principal.Management()

				// unknown principal
				data, err := stores[shardA].GetDataForPrincipal(alice)
				require.NoError(t, err)
				assert.Equal(t, store.NoDataFound, data)

				// set, get and overwrite
				require.NoError(t, stores[shardA].SetDataForPrincipal(alice, "hello"))
				require.NoError(t, stores[shardA].SetDataForPrincipal(bob, ""))
				data, err = stores[shardA].GetDataForPrincipal(alice)
				require.NoError(t, err)
				assert.Equal(t, "hello", data)
				data, err = stores[shardA].GetDataForPrincipal(bob)
				require.NoError(t, err)
				assert.Equal(t, "", data)

				require.NoError(t, stores[shardA].SetDataForPrincipal(alice, "world"))
				data, err = stores[shardA].GetDataForPrincipal(alice)
				require.NoError(t, err)
				assert.Equal(t, "world", data)

				// shards are isolated
				data, err = stores[shardB].GetDataForPrincipal(alice)
				require.NoError(t, err)
				assert.Equal(t, store.NoDataFound, data)

				infoA, err := stores[shardA].Info()
				require.NoError(t, err)
				assert.Equal(t, shardA, infoA.ShardID)
				assert.EqualValues(t, 0, infoA.Bucket)
				assert.EqualValues(t, 2, infoA.Store.Entries)

				infoB, err := stores[shardB].Info()
				require.NoError(t, err)
				assert.EqualValues(t, 3, infoB.Bucket)
				assert.EqualValues(t, 0, infoB.Store.Entries)

				dbInfo, err := stores[shardA].GetDBInfo()
				require.NoError(t, err)
				assert.Equal(t, infoA.Store.Entries, dbInfo.Entries)
			})
		}
	}
}

func TestRemoteErrors(t *testing.T) {
	su := setups[0]
	stores, _, stop := startServer(t, su, serializer.NewBinarySerializer(), "")
	defer stop()

	// invalid UTF-8 is rejected by the store and keeps its code on the client
	err := stores[shardA].SetDataForPrincipal(principal.Anonymous(), "\xff\xfe")
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCInvalidData, storeErr.Code)

	data, err := stores[shardA].GetDataForPrincipal(principal.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, store.NoDataFound, data)
}

func TestUnknownShard(t *testing.T) {
	su := setups[0]
	_, clientConfig, stop := startServer(t, su, serializer.NewBinarySerializer(), "")
	defer stop()

	c, err := client.NewRPCStore(999, clientConfig, su.clientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetDataForPrincipal(principal.Anonymous())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard 999 not found")

	_, err = client.NewRPCStore(999, common.ClientConfig{}, su.clientTransport(), serializer.NewBinarySerializer())
	assert.Error(t, err, "no endpoints")
}

func TestRestartWithFileMemory(t *testing.T) {
	su := setups[0]
	memFile := filepath.Join(t.TempDir(), "region.bin")
	p := principal.MustFromText("2vxsx-fae")

	stores, _, stop := startServer(t, su, serializer.NewBinarySerializer(), memFile)
	for i := 0; i < 100; i++ {
		require.NoError(t, stores[shardB].SetDataForPrincipal(p, fmt.Sprintf("value-%d", i)))
	}
	stop()

	stores, _, stop = startServer(t, su, serializer.NewBinarySerializer(), memFile)
	defer stop()

	data, err := stores[shardB].GetDataForPrincipal(p)
	require.NoError(t, err)
	assert.Equal(t, "value-99", data)

	data, err = stores[shardA].GetDataForPrincipal(p)
	require.NoError(t, err)
	assert.Equal(t, store.NoDataFound, data)
}

func TestMetricsEndpoint(t *testing.T) {
	su := setups[1]
	stores, clientConfig, stop := startServer(t, su, serializer.NewJSONSerializer(), "")
	defer stop()

	require.NoError(t, stores[shardA].SetDataForPrincipal(principal.Anonymous(), "x"))

	resp, err := nethttp.Get("http://" + clientConfig.Endpoints[0] + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `skv_state_turns_total{kind="update"}`)
	assert.Contains(t, string(body), "skv_rpc_requests_total")
	assert.Contains(t, string(body), "skv_btree_commits_total")
}
