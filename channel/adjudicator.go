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

package channel

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/event"
	"perun.network/perun-sprites-backend/wire"
)

var (
	ErrChannelAlreadyFinalized = errors.New("channel is already finalized")
	ErrChannelNotDisputed      = errors.New("channel is not disputed")
	ErrNotAPlayer              = errors.New("account is not a player of the channel")
	ErrWrongChannel            = errors.New("state belongs to another channel")
)

// DefaultPollingInterval is the interval in which the ledger is polled while
// waiting for a block height.
var DefaultPollingInterval = time.Duration(1) * time.Second

// Adjudicator drives one channel through its dispute lifecycle on behalf of
// one player. The ledger's status is authoritative: Open, then Pending after a
// trigger, then Finalized.
type Adjudicator struct {
	log             log.Embedding
	ledger          client.Ledger
	signer          *Signer
	id              *big.Int
	side            Side
	players         [2]common.Address
	pollingInterval time.Duration
}

// NewAdjudicator returns an Adjudicator for channel id acting as the ledger's
// account.
func NewAdjudicator(ctx context.Context, ledger client.Ledger, signer *Signer, id *big.Int) (*Adjudicator, error) {
	players, err := ledger.Players(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading players of channel %v: %w", id, err)
	}
	a := &Adjudicator{
		log:             log.MakeEmbedding(log.Default()),
		ledger:          ledger,
		signer:          signer,
		id:              copyInt(id),
		players:         players,
		pollingInterval: DefaultPollingInterval,
	}
	switch ledger.Address() {
	case players[Left]:
		a.side = Left
	case players[Right]:
		a.side = Right
	default:
		return nil, fmt.Errorf("%w: %v", ErrNotAPlayer, ledger.Address())
	}
	return a, nil
}

// SetPollingInterval sets the interval used while waiting for the deadline.
func (a *Adjudicator) SetPollingInterval(d time.Duration) {
	a.pollingInterval = d
}

// ID returns the channel id.
func (a *Adjudicator) ID() *big.Int {
	return copyInt(a.id)
}

// Side returns the side the adjudicator acts for.
func (a *Adjudicator) Side() Side {
	return a.side
}

// Players returns the channel's players in canonical order.
func (a *Adjudicator) Players() [2]common.Address {
	return a.players
}

// Status returns the ledger status of the channel.
func (a *Adjudicator) Status(ctx context.Context) (wire.Status, error) {
	return a.ledger.GetStatus(ctx, a.id)
}

// Deadline returns the block height from which the channel can be finalized.
func (a *Adjudicator) Deadline(ctx context.Context) (*big.Int, error) {
	return a.ledger.GetDeadline(ctx, a.id)
}

// OnChainState returns the best state known to the ledger in canonical order.
func (a *Adjudicator) OnChainState(ctx context.Context) (State, error) {
	ws, err := a.ledger.GetState(ctx, a.id, a.side)
	if err != nil {
		return State{}, err
	}
	return FromWire(ws, a.side), nil
}

// Trigger starts a dispute. The ledger sets the deadline to the current block
// height plus its dispute period.
func (a *Adjudicator) Trigger(ctx context.Context) error {
	log.Println("Trigger called by Adjudicator")
	_, err := a.ledger.Trigger(ctx, a.id)
	return err
}

// Update submits ss, a state signed by the counterparty. Submissions that the
// ledger would certainly reject fail locally without a transaction. A ledger
// rejection is returned as a *client.TxFailedError.
func (a *Adjudicator) Update(ctx context.Context, ss SignedState) error {
	if ss.ChannelID == nil || ss.ChannelID.Cmp(a.id) != 0 {
		return fmt.Errorf("%w: %v", ErrWrongChannel, ss.ChannelID)
	}
	if err := a.signer.Verify(ss, a.players[a.side.Other()]); err != nil {
		return err
	}

	status, err := a.Status(ctx)
	if err != nil {
		return err
	}
	if status == wire.StatusFinalized {
		return ErrChannelAlreadyFinalized
	}
	best, err := a.OnChainState(ctx)
	if err != nil {
		return err
	}
	if copyInt(ss.Round).Cmp(best.Round) <= 0 {
		return newValidationError(ErrRoundNotAdvanced, "ledger has round %v, got %v", best.Round, ss.Round)
	}

	a.log.Log().Debugf("Submitting state of round %v", ss.Round)
	_, err = a.ledger.Update(ctx, a.id, ss.Update())
	return err
}

// SubmitPreimage reveals preimage to the ledger's preimage registry.
func (a *Adjudicator) SubmitPreimage(ctx context.Context, preimage Preimage) error {
	_, err := a.ledger.SubmitPreimage(ctx, preimage)
	return err
}

// WaitDeadline blocks until the dispute deadline has been reached or ctx is
// done.
func (a *Adjudicator) WaitDeadline(ctx context.Context) error {
	status, err := a.Status(ctx)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOpen:
		return ErrChannelNotDisputed
	case wire.StatusFinalized:
		return nil
	}
	deadline, err := a.Deadline(ctx)
	if err != nil {
		return err
	}
	timeout := event.NewBlockTimeout(a.ledger, deadline)
	timeout.PollInterval = a.pollingInterval
	return timeout.Wait(ctx)
}

// Finalize waits for the deadline of a pending dispute and closes the
// channel.
func (a *Adjudicator) Finalize(ctx context.Context) error {
	log.Println("Finalize called by Adjudicator")
	status, err := a.Status(ctx)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOpen:
		return ErrChannelNotDisputed
	case wire.StatusFinalized:
		return ErrChannelAlreadyFinalized
	}
	if err := a.WaitDeadline(ctx); err != nil {
		return err
	}
	_, err = a.ledger.Finalize(ctx, a.id)
	return err
}

// Withdraw pays out what the ledger owes the adjudicator's side and returns
// the amount. No transaction is sent if nothing is owed, so repeated calls
// are harmless.
func (a *Adjudicator) Withdraw(ctx context.Context) (*big.Int, error) {
	best, err := a.OnChainState(ctx)
	if err != nil {
		return nil, err
	}
	withdrawn, err := a.ledger.GetWithdrawn(ctx, a.id, a.side)
	if err != nil {
		return nil, err
	}
	due := new(big.Int).Sub(best.Withdrawals[a.side], withdrawn)
	if due.Sign() <= 0 {
		log.Println("Nothing to withdraw")
		return new(big.Int), nil
	}
	if _, err := a.ledger.Withdraw(ctx, a.id); err != nil {
		return nil, err
	}
	a.log.Log().Infof("Withdrew %v from channel %v", due, a.id)
	return due, nil
}

// Register puts ss on the ledger if it is newer than the ledger's best state
// and starts a dispute if none is running.
func (a *Adjudicator) Register(ctx context.Context, ss SignedState) error {
	log.Println("Register called")
	err := a.Update(ctx, ss)
	if err != nil && !errors.Is(err, ErrRoundNotAdvanced) {
		return fmt.Errorf("error while registering state: %w", err)
	}
	status, err := a.Status(ctx)
	if err != nil {
		return err
	}
	if status != wire.StatusOpen {
		return nil
	}
	if err := a.Trigger(ctx); err != nil {
		return fmt.Errorf("error while disputing channel: %w", err)
	}
	return nil
}

// Settle runs a complete dispute: it registers latest, if given, reveals the
// preimage of the payment in flight if it is among preimages, finalizes the
// channel and withdraws. It returns the amount withdrawn.
func (a *Adjudicator) Settle(ctx context.Context, latest *SignedState, preimages []Preimage) (*big.Int, error) {
	status, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status != wire.StatusFinalized {
		if latest != nil {
			err = a.Register(ctx, *latest)
		} else if status == wire.StatusOpen {
			err = a.Trigger(ctx)
		}
		if err != nil {
			return nil, err
		}
		if err := a.revealMatching(ctx, preimages); err != nil {
			return nil, err
		}
		if err := a.Finalize(ctx); err != nil && !errors.Is(err, ErrChannelAlreadyFinalized) {
			return nil, err
		}
	}
	return a.Withdraw(ctx)
}

func (a *Adjudicator) revealMatching(ctx context.Context, preimages []Preimage) error {
	best, err := a.OnChainState(ctx)
	if err != nil {
		return err
	}
	if !best.Payment.Active() {
		return nil
	}
	for _, p := range preimages {
		if best.Payment.Matches(p) {
			a.log.Log().Debugf("Revealing preimage of %v", best.Payment.PreimageHash)
			return a.SubmitPreimage(ctx, p)
		}
	}
	return nil
}

// Subscribe returns a subscription on the ledger record of the channel.
func (a *Adjudicator) Subscribe(ctx context.Context) (*AdjEventSub, error) {
	return NewAdjudicatorSub(ctx, a.ledger, a.id)
}
