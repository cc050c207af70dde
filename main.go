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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"perun.network/go-perun/log"
	plogrus "perun.network/go-perun/log/logrus"

	"perun.network/perun-sprites-backend/config"
)

// command is a subcommand of the sprites tool.
type command interface {
	flags.Commander
	Register(parser *flags.Parser) error
}

func main() {
	cfg, rest, err := config.Load(os.Args[1:])
	if err != nil {
		exit(err)
	}
	level, _ := cfg.Level() // validated by config.Load
	plogrus.Set(level, &logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &app{cfg: cfg, ctx: ctx}
	parser := flags.NewParser(&struct{}{}, flags.Default)
	commands := []command{
		&statusCommand{app: app},
		&depositCommand{app: app},
		&triggerCommand{app: app},
		&updateCommand{app: app},
		&finalizeCommand{app: app},
		&withdrawCommand{app: app},
		&revealCommand{app: app},
		&settleCommand{app: app},
		&watchCommand{app: app},
		&simnetCommand{app: app},
	}
	for _, c := range commands {
		if err := c.Register(parser); err != nil {
			log.Panicf("registering command: %v", err)
		}
	}

	// The parser prints errors itself, including those of the commands.
	if _, err := parser.ParseArgs(rest); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func exit(err error) {
	var flagErr *flags.Error
	if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
		fmt.Println(err)
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
