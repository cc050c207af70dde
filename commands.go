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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/channel"
	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/config"
	"perun.network/perun-sprites-backend/wire"
)

// app carries what the commands share.
type app struct {
	cfg *config.Config
	ctx context.Context
}

// ledger dials the configured endpoint, transacting as from.
func (a *app) ledger(from common.Address) (*client.RPCLedger, func() error) {
	return client.DialHTTP(a.cfg.RPCURL, from, a.cfg.RetryPolicy())
}

// adjudicator returns an adjudicator for the configured channel acting as the
// configured account.
func (a *app) adjudicator() (*channel.Adjudicator, func() error, error) {
	acc, err := a.cfg.LoadAccount()
	if err != nil {
		return nil, nil, err
	}
	l, closer := a.ledger(acc.Address())
	adj, err := channel.NewAdjudicator(a.ctx, l, channel.NewSigner(), a.cfg.ChannelID())
	if err != nil {
		closer()
		return nil, nil, err
	}
	adj.SetPollingInterval(a.cfg.PollInterval)
	return adj, closer, nil
}

// withAdjudicator runs fn with a fresh adjudicator.
func (a *app) withAdjudicator(fn func(adj *channel.Adjudicator) error) error {
	adj, closer, err := a.adjudicator()
	if err != nil {
		return err
	}
	defer closer()
	return fn(adj)
}

type statusCommand struct {
	app *app
}

func (x *statusCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("status", "Show the ledger record of the channel",
		"Print players, status, deadline, deposits, withdrawals and the best state of the channel", x)
	return err
}

func (x *statusCommand) Execute([]string) error {
	l, closer := x.app.ledger(common.Address{})
	defer closer()
	ctx, id := x.app.ctx, x.app.cfg.ChannelID()

	height, err := l.BlockHeight(ctx)
	if err != nil {
		return err
	}
	players, err := l.Players(ctx, id)
	if err != nil {
		return err
	}
	status, err := l.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	deadline, err := l.GetDeadline(ctx, id)
	if err != nil {
		return err
	}
	ws, err := l.GetState(ctx, id, wire.Left)
	if err != nil {
		return err
	}
	best := channel.FromWire(ws, wire.Left)

	fmt.Printf("channel %v at block %v: %v, deadline %v\n", id, height, status, deadline)
	fmt.Printf("best round %v\n", best.Round)
	for _, side := range []wire.Side{wire.Left, wire.Right} {
		withdrawn, err := l.GetWithdrawn(ctx, id, side)
		if err != nil {
			return err
		}
		fmt.Printf("%-5v %v deposit=%v credit=%v withdrawals=%v withdrawn=%v\n",
			side, players[side].Hex(), best.Deposits[side], best.Credits[side], best.Withdrawals[side], withdrawn)
	}
	if p := best.Payment; p.Active() {
		fmt.Printf("payment of %v to %v, hash %v, expiry %v\n", p.Amount, p.Recipient.Hex(), p.PreimageHash.Hex(), p.Expiry)
	}
	return nil
}

type depositCommand struct {
	app *app
}

func (x *depositCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("deposit", "Deposit funds into the channel",
		"Deposit the amount given as argument into the channel", x)
	return err
}

func (x *depositCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("expected the amount as single argument")
	}
	amount, ok := new(big.Int).SetString(args[0], 10)
	if !ok {
		return errors.Errorf("invalid amount %q", args[0])
	}
	acc, err := x.app.cfg.LoadAccount()
	if err != nil {
		return err
	}
	l, closer := x.app.ledger(acc.Address())
	defer closer()
	r, err := l.Deposit(x.app.ctx, x.app.cfg.ChannelID(), amount)
	if err != nil {
		return err
	}
	log.Infof("Deposited %v in block %d", amount, r.BlockNumber)
	return nil
}

type triggerCommand struct {
	app *app
}

func (x *triggerCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("trigger", "Start a dispute",
		"Start a dispute on the channel, setting the deadline", x)
	return err
}

func (x *triggerCommand) Execute([]string) error {
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		if err := adj.Trigger(x.app.ctx); err != nil {
			return err
		}
		deadline, err := adj.Deadline(x.app.ctx)
		if err != nil {
			return err
		}
		log.Infof("Dispute started, deadline at block %v", deadline)
		return nil
	})
}

type updateCommand struct {
	app *app
}

func (x *updateCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("update", "Register a state signed by the counterparty",
		"Submit the hex encoded signed update given as argument and start a dispute if none is running", x)
	return err
}

func (x *updateCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("expected the encoded update as single argument")
	}
	data, err := hexutil.Decode(args[0])
	if err != nil {
		return errors.WithMessage(err, "decoding update")
	}
	var u wire.Update
	if err := u.UnmarshalBinary(data); err != nil {
		return err
	}
	ss := channel.SignedState{
		State: channel.FromWire(wire.State{Message: u.Message}, wire.Left),
		Sig:   u.Sig,
	}
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		return adj.Register(x.app.ctx, ss)
	})
}

type finalizeCommand struct {
	app *app
}

func (x *finalizeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("finalize", "Close a disputed channel",
		"Wait for the dispute deadline and finalize the channel", x)
	return err
}

func (x *finalizeCommand) Execute([]string) error {
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		return adj.Finalize(x.app.ctx)
	})
}

type withdrawCommand struct {
	app *app
}

func (x *withdrawCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("withdraw", "Withdraw funds",
		"Withdraw what the ledger owes the account", x)
	return err
}

func (x *withdrawCommand) Execute([]string) error {
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		amount, err := adj.Withdraw(x.app.ctx)
		if err != nil {
			return err
		}
		fmt.Println("withdrew", amount)
		return nil
	})
}

type revealCommand struct {
	app *app
}

func (x *revealCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("reveal", "Reveal a payment preimage",
		"Submit the hex encoded 32 byte preimage given as argument to the preimage registry", x)
	return err
}

func (x *revealCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("expected the preimage as single argument")
	}
	preimage, err := parsePreimage(args[0])
	if err != nil {
		return err
	}
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		return adj.SubmitPreimage(x.app.ctx, preimage)
	})
}

type settleCommand struct {
	app       *app
	Preimages []string `long:"preimage" description:"Hex encoded preimage to reveal if it unlocks the payment in flight"`
}

func (x *settleCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("settle", "Run a complete dispute",
		"Trigger a dispute, reveal matching preimages, finalize and withdraw", x)
	return err
}

func (x *settleCommand) Execute([]string) error {
	preimages := make([]channel.Preimage, 0, len(x.Preimages))
	for _, s := range x.Preimages {
		p, err := parsePreimage(s)
		if err != nil {
			return err
		}
		preimages = append(preimages, p)
	}
	return x.app.withAdjudicator(func(adj *channel.Adjudicator) error {
		amount, err := adj.Settle(x.app.ctx, nil, preimages)
		if err != nil {
			return err
		}
		fmt.Println("withdrew", amount)
		return nil
	})
}

type watchCommand struct {
	app *app
}

func (x *watchCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand("watch", "Follow the dispute of the channel",
		"Print dispute events of the channel until interrupted", x)
	return err
}

func (x *watchCommand) Execute([]string) error {
	l, closer := x.app.ledger(common.Address{})
	defer closer()
	sub, err := channel.NewAdjudicatorSub(x.app.ctx, l, x.app.cfg.ChannelID())
	if err != nil {
		return err
	}
	defer sub.Close()
	for ev := sub.Next(); ev != nil; ev = sub.Next() {
		snap := ev.Snapshot()
		fmt.Printf("%v: status %v, deadline %v, round %v\n", ev.Type(), snap.Status, snap.Deadline, snap.Round)
	}
	return sub.Err()
}

func parsePreimage(s string) (channel.Preimage, error) {
	var p channel.Preimage
	b, err := hexutil.Decode(s)
	if err != nil {
		return p, errors.WithMessage(err, "decoding preimage")
	}
	if len(b) != channel.PreimageLength {
		return p, errors.Errorf("preimage must be %d bytes, got %d", channel.PreimageLength, len(b))
	}
	copy(p[:], b)
	return p, nil
}
