package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sKV server",
		Long:    `Start the sKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SKV_<flag> (e.g. SKV_MEMORY_FILE=/var/lib/skv/region)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=0", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=BUCKET where BUCKET is the memory manager bucket (0-15) holding the shard's data"))

	key = "memory"
	ServeCmd.PersistentFlags().String(key, string(common.MemoryVector), cmdUtil.WrapString("The memory region backing all shards (vector: in process memory, lost on exit; file: persisted to --memory-file)"))

	key = "memory-file"
	ServeCmd.PersistentFlags().String(key, "skv.region", cmdUtil.WrapString("Path of the region file (only for --memory=file)"))

	key = "max-pages"
	ServeCmd.PersistentFlags().Uint64(key, 0, cmdUtil.WrapString("Upper bound of the region size in 4 KiB pages (0 = unlimited)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a single request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/skv.sock, ...)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := common.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	switch memory := common.MemoryType(viper.GetString("memory")); memory {
	case common.MemoryVector, common.MemoryFile:
		serveCmdConfig.Memory = memory
	default:
		return fmt.Errorf("invalid memory type %s (expected vector or file)", memory)
	}

	serveCmdConfig.MemoryFile = viper.GetString("memory-file")
	serveCmdConfig.MaxPages = viper.GetUint64("max-pages")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	return nil
}

// run starts the sKV server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	// the region file is synced and closed on shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		_ = serv.Close()
		return err
	case sig := <-sigCh:
		server.Logger.Infof("received %s, shutting down", sig)
		closeErr := serv.Close()
		if err := <-errCh; err != nil {
			return err
		}
		return closeErr
	}
}
