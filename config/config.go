// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/casperlabs/casper-node/consensus"
	"github.com/casperlabs/casper-node/genesis"
	"github.com/casperlabs/casper-node/types"
)

// Config is the node's full configuration: local node settings plus the
// chainspec sections. Chainspec version subdirectories on disk are named
// major_minor_patch.
type Config struct {
	Node      NodeConfig         `mapstructure:"node"`
	Protocol  ProtocolConfig     `mapstructure:"protocol"`
	Genesis   genesis.ExecConfig `mapstructure:"genesis"`
	Consensus consensus.Config   `mapstructure:"consensus"`
}

type NodeConfig struct {
	DataDir          string `mapstructure:"data-dir"`
	ValidatorKey     string `mapstructure:"validator-key"`
	ValidatorKeyFile string `mapstructure:"validator-key-file"`
}

type ProtocolConfig struct {
	Version         types.ProtocolVersion `mapstructure:"version"`
	ActivationPoint types.EraID           `mapstructure:"activation-point"`
}

// Load reads and decodes a config file. Amounts may be given as decimal
// strings and durations in Go duration syntax.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToMotesHook(),
		stringToTimeDiffHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Account hashes are derived, never configured.
	for i := range config.Genesis.Accounts {
		account := &config.Genesis.Accounts[i]
		if account.PublicKey != nil {
			account.AccountHash = account.PublicKey.AccountHash()
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configs that cannot produce a working chain.
func (c *Config) Validate() error {
	if c.Consensus.ChainName == "" {
		return fmt.Errorf("consensus.chain-name must be set")
	}
	if c.Genesis.ValidatorSlots == 0 {
		return fmt.Errorf("genesis.validator-slots must be positive")
	}
	if c.Genesis.RoundSeigniorageRate.Denom == 0 {
		return fmt.Errorf("genesis.round-seigniorage-rate.denom must be positive")
	}
	if pct := c.Consensus.FinalityThresholdPercent; pct == 0 || pct >= 100 {
		return fmt.Errorf("consensus.finality-threshold-percent must be in (0, 100)")
	}
	validators := 0
	for _, account := range c.Genesis.Accounts {
		if account.IsGenesisValidator() {
			validators++
		}
	}
	if validators == 0 {
		return fmt.Errorf("genesis must name at least one validator")
	}
	return nil
}

func stringToMotesHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(types.Motes{}) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return types.MotesFromString(value)
		case int:
			return types.NewMotes(uint64(value)), nil
		case int64:
			return types.NewMotes(uint64(value)), nil
		case uint64:
			return types.NewMotes(value), nil
		case float64:
			return types.NewMotes(uint64(value)), nil
		default:
			return data, nil
		}
	}
}

func stringToTimeDiffHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(types.TimeDiff(0)) {
			return data, nil
		}
		if value, ok := data.(string); ok {
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, err
			}
			return types.TimeDiffFromDuration(d), nil
		}
		return data, nil
	}
}
