package data

import (
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore *client.RPCStore

	// DataCommands represents the data command group
	DataCommands = &cobra.Command{
		Use:               "data",
		Short:             "Read and write the data stored for principals",
		PersistentPreRunE: setupDataClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the data command
	util.SetupRPCClientFlags(DataCommands)

	// Add subcommands
	DataCommands.AddCommand(setCmd)
	DataCommands.AddCommand(getCmd)
	DataCommands.AddCommand(infoCmd)
	DataCommands.AddCommand(perfTestCmd)
}

// setupDataClient initializes the RPC store client
func setupDataClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	shardId := util.GetShardID()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(
		shardId,
		*config,
		t,
		s,
	)

	return err
}
