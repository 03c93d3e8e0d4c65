// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/casperlabs/casper-node/cmd/run"
)

var rootCmd = &cobra.Command{
	Use:          "casper-node",
	Short:        "Casper Node is a validator node for the Casper proof-of-stake network",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(validateConfigCmd())
	rootCmd.AddCommand(dumpGenesisCmd())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
