package data

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [principal] [data]",
		Short: "Stores the data for a principal, replacing any earlier data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := principal.FromText(args[0])
			if err != nil {
				return err
			}
			if err := rpcStore.SetDataForPrincipal(p, args[1]); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [principal]",
		Short: "Reads the data stored for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := principal.FromText(args[0])
			if err != nil {
				return err
			}
			data, err := rpcStore.GetDataForPrincipal(p)
			if err != nil {
				return err
			}
			fmt.Println(data)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the memory and store information of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.Info()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)
