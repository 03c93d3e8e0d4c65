package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casperlabs/casper-node/config"
	"github.com/casperlabs/casper-node/genesis"
	"github.com/casperlabs/casper-node/state"
)

// dumpGenesisCmd runs genesis offline and prints the resulting effects in
// their deterministic order, for chainspec debugging.
func dumpGenesisCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "dump-genesis",
		Short: "Run genesis against an empty state and print the effects",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			gs := state.NewInMemoryGlobalState()
			postState, effect, err := genesis.Run(
				gs, cfg.Genesis.Hash(), cfg.Protocol.Version, cfg.Genesis,
			)
			if err != nil {
				return err
			}
			fmt.Printf("post state hash: %s\n", postState)
			for _, key := range effect.Keys {
				fmt.Printf("%-9s %s\n", transformName(effect.Transforms[key]), key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file")
	cmd.MarkFlagRequired("config")

	return cmd
}

func transformName(t state.Transform) string {
	switch t.Kind {
	case state.TransformWrite:
		return "write"
	case state.TransformAddUInt64, state.TransformAddU512:
		return "add"
	case state.TransformAddKeys:
		return "add-keys"
	default:
		return "identity"
	}
}
