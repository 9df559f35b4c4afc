// Package client implements the RPC client of sKV. RPCStore implements
// store.IStore and forwards every call to a server via the configured
// transport and serializer.
//
// The package focuses on:
//   - Transparent RPC access to a remote store
//   - Integration with the transport and serialization layers
//   - Error conversion: failures reported by the remote store arrive as
//     *store.Error with their original return code
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	s, err := client.NewRPCStore(100, config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Close()
//
//	p := principal.MustFromText("2vxsx-fae")
//	if err := s.SetDataForPrincipal(p, "hello"); err != nil {
//	  log.Fatal(err)
//	}
//	data, err := s.GetDataForPrincipal(p) // "hello"
package client
