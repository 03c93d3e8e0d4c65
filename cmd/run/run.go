// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package run

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/casperlabs/casper-node/config"
	"github.com/casperlabs/casper-node/node"
)

var configFile string

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the node",
		Args:  cobra.ExactArgs(0),
		RunE:  run,
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(_ *cobra.Command, _ []string) error {
	stdlog.SetOutput(logrus.WithFields(logrus.Fields{"logger": "stdlib"}).WriterLevel(logrus.InfoLevel))
	logrus.SetLevel(logrus.DebugLevel)

	logrus.Info("Casper node started up")

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	// Ensure clean termination upon SIGINT, SIGTERM
	eg.Go(func() error {
		notify := make(chan os.Signal, 1)
		signal.Notify(notify, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-notify:
			logrus.WithField("signal", sig.String()).Info("Received signal")
			cancel()
		}

		return nil
	})

	if err := n.Start(ctx, eg); err != nil {
		logrus.WithError(err).Fatal("Unhandled error")
		cancel()
		return err
	}

	if err := eg.Wait(); err != nil && err != context.Canceled {
		logrus.WithError(err).Fatal("Unhandled error")
		return err
	}

	return nil
}
