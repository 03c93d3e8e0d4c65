package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casperlabs/casper-node/config"
)

func validateConfigCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check a configuration file without starting the node",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: chain %q, protocol %s, %d genesis accounts\n",
				cfg.Consensus.ChainName, cfg.Protocol.Version, len(cfg.Genesis.Accounts))
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file")
	cmd.MarkFlagRequired("config")

	return cmd
}
