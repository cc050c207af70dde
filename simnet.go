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
	"net/http"
	"time"

	"github.com/creachadair/jrpc2/jhttp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/client/sim"
)

const shutdownTimeout = 5 * time.Second

type simnetCommand struct {
	app *app
}

func (x *simnetCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("simnet", "Run a simulated ledger",
		"Serve a simulated sprites ledger over JSON-RPC, mining blocks in the configured interval "+
			"and opening a channel for every pair of --sim.player addresses", x)
	return err
}

func (x *simnetCommand) Execute([]string) error {
	cfg := x.app.cfg
	ledger := sim.New(cfg.Delta)
	players := cfg.Sim.Players
	for i := 0; i+1 < len(players); i += 2 {
		if !common.IsHexAddress(players[i]) || !common.IsHexAddress(players[i+1]) {
			return errors.Errorf("invalid player pair %s, %s", players[i], players[i+1])
		}
		id := ledger.OpenChannel(common.HexToAddress(players[i]), common.HexToAddress(players[i+1]))
		log.Infof("Channel %v: %s <-> %s", id, players[i], players[i+1])
	}

	bridge := jhttp.NewBridge(ledger.Service(), nil)
	defer bridge.Close()
	srv := &http.Server{Addr: cfg.Sim.Listen, Handler: bridge, ReadHeaderTimeout: shutdownTimeout}

	ctx, cancel := context.WithCancel(x.app.ctx)
	defer cancel()
	go ledger.AutoMine(ctx, cfg.Sim.BlockTime)
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Errorf("Shutting down: %v", err)
		}
	}()

	log.Infof("Simulated ledger listening on %s, delta %d blocks", cfg.Sim.Listen, ledger.Delta())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "serving JSON-RPC")
	}
	return nil
}
