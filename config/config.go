// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the settings of the sprites command line tool.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/client/sim"
	"perun.network/perun-sprites-backend/wallet"
)

const (
	DefaultRPCURL       = "http://127.0.0.1:8545"
	DefaultDelta        = sim.DefaultDelta
	DefaultPollInterval = time.Second
	DefaultLogLevel     = "info"
	DefaultSimListen    = "127.0.0.1:8545"
	DefaultSimBlockTime = time.Second
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Receipt configures how long transaction receipts are polled for.
type Receipt struct {
	Attempts int           `long:"attempts" description:"Number of receipt lookups before a transaction is given up on"`
	Backoff  time.Duration `long:"backoff" description:"Delay between receipt lookups"`
}

// Sim configures the simulated ledger node.
type Sim struct {
	Listen    string        `long:"listen" description:"Address the JSON-RPC endpoint listens on"`
	BlockTime time.Duration `long:"blocktime" description:"Interval in which blocks are mined"`
	Players   []string      `long:"player" description:"Address of a channel player, given twice per channel to open at startup"`
}

// Config is the global configuration shared by all commands.
type Config struct {
	ConfigFile   string        `short:"C" long:"configfile" description:"Path to an ini configuration file"`
	RPCURL       string        `long:"rpcurl" env:"SPRITES_RPCURL" description:"JSON-RPC endpoint of the ledger"`
	Account      string        `long:"account" env:"SPRITES_ACCOUNT" description:"Hex encoded private key of the transacting account"`
	Channel      int64         `long:"channel" description:"Id of the channel to operate on"`
	Delta        int64         `long:"delta" description:"Dispute period of the simulated ledger in blocks"`
	PollInterval time.Duration `long:"pollinterval" description:"Interval in which the ledger is polled"`
	LogLevel     string        `long:"loglevel" description:"Logging level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error"`

	Receipt *Receipt `group:"Receipt polling" namespace:"receipt"`
	Sim     *Sim     `group:"Simulated ledger" namespace:"sim"`
}

// DefaultConfig returns a configuration with all defaults set.
func DefaultConfig() Config {
	return Config{
		RPCURL:       DefaultRPCURL,
		Delta:        DefaultDelta,
		PollInterval: DefaultPollInterval,
		LogLevel:     DefaultLogLevel,
		Receipt: &Receipt{
			Attempts: client.DefaultReceiptAttempts,
			Backoff:  client.DefaultReceiptBackoff,
		},
		Sim: &Sim{
			Listen:    DefaultSimListen,
			BlockTime: DefaultSimBlockTime,
		},
	}
}

// Load parses the global options in args up to the first non-option, which
// starts the command. Options from the config file are overridden by the
// command line. It returns the validated configuration and the command with
// its arguments.
//
// The configuration proceeds as follows:
//  1. Start with the defaults
//  2. Pre-parse the command line to find a config file
//  3. Load the config file
//  4. Parse the command line again so that it takes precedence
func Load(args []string) (*Config, []string, error) {
	opts := flags.Options(flags.HelpFlag | flags.PassDoubleDash | flags.PassAfterNonOption)

	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, opts|flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, nil, err
	}

	cfg := DefaultConfig()
	parser := flags.NewParser(&cfg, opts)
	if preCfg.ConfigFile != "" {
		if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
			return nil, nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, rest, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Delta <= 0:
		return fmt.Errorf("%w: delta must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: pollinterval must be positive", ErrInvalidConfig)
	case c.Receipt.Attempts <= 0:
		return fmt.Errorf("%w: receipt.attempts must be positive", ErrInvalidConfig)
	case c.Receipt.Backoff < 0:
		return fmt.Errorf("%w: receipt.backoff must not be negative", ErrInvalidConfig)
	case c.Channel < 0:
		return fmt.Errorf("%w: channel must not be negative", ErrInvalidConfig)
	case len(c.Sim.Players)%2 != 0:
		return fmt.Errorf("%w: sim.player must be given in pairs", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// RetryPolicy returns the receipt polling policy.
func (c *Config) RetryPolicy() client.RetryPolicy {
	return client.RetryPolicy{Attempts: c.Receipt.Attempts, Backoff: c.Receipt.Backoff}
}

// ChannelID returns the configured channel id.
func (c *Config) ChannelID() *big.Int {
	return big.NewInt(c.Channel)
}

// LoadAccount returns the configured account.
func (c *Config) LoadAccount() (*wallet.Account, error) {
	if c.Account == "" {
		return nil, fmt.Errorf("%w: account is required", ErrInvalidConfig)
	}
	return wallet.AccountFromHex(strings.TrimPrefix(c.Account, "0x"))
}
