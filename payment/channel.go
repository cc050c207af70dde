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

// Package payment implements the party side of a sprites channel: it builds,
// signs and checks the states exchanged with the peer and falls back to the
// adjudicator when the peer stops cooperating. Moving the signed states
// between the parties is left to the caller.
package payment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"perun.network/go-perun/log"
	"polycry.pt/poly-go/sync"

	"perun.network/perun-sprites-backend/channel"
	"perun.network/perun-sprites-backend/wallet"
)

var (
	ErrProposalPending  = errors.New("a proposal is awaiting the peer's signature")
	ErrNoProposal       = errors.New("no proposal is pending")
	ErrProposalMismatch = errors.New("countersigned state differs from the proposal")
	ErrNotPayer         = errors.New("payment in flight was not made by this party")
	ErrWrongRecipient   = errors.New("payment is not addressed to this party")
	ErrWrongAccount     = errors.New("account does not act for the adjudicator's side")
)

// Channel is one party's view of a payment channel. Proposals are serialized:
// while a proposal waits for the peer's signature, no other state is signed.
type Channel struct {
	log     log.Embedding
	mu      sync.Mutex
	adj     *channel.Adjudicator
	funder  *channel.Funder
	signer  *channel.Signer
	account *wallet.Account
	rng     io.Reader

	side      channel.Side
	peer      common.Address
	current   channel.State
	latest    *channel.SignedState // newest state signed by the peer
	pending   *channel.SignedState
	preimages map[common.Hash]channel.Preimage
}

// NewChannel returns the channel driven by adj, signing with acc.
func NewChannel(adj *channel.Adjudicator, funder *channel.Funder, signer *channel.Signer, acc *wallet.Account) (*Channel, error) {
	side := adj.Side()
	players := adj.Players()
	if acc.Address() != players[side] {
		return nil, fmt.Errorf("%w: %v", ErrWrongAccount, acc.Address())
	}
	return &Channel{
		log:       log.MakeEmbedding(log.WithField("side", side)),
		adj:       adj,
		funder:    funder,
		signer:    signer,
		account:   acc,
		rng:       rand.Reader,
		side:      side,
		peer:      players[side.Other()],
		current:   channel.NewInitialState(adj.ID()),
		preimages: make(map[common.Hash]channel.Preimage),
	}, nil
}

// SetRand sets the source of payment preimages.
func (c *Channel) SetRand(rng io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rng = rng
}

// Side returns the side this party plays.
func (c *Channel) Side() channel.Side {
	return c.side
}

// State returns the latest agreed state.
func (c *Channel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// Latest returns the newest state signed by the peer, or nil.
func (c *Channel) Latest() *channel.SignedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil
	}
	ss := channel.SignedState{State: c.latest.Unsigned(), Sig: c.latest.Sig}
	return &ss
}

// Fund deposits this party's share of left and right and waits for the peer's
// share. The deposits become part of the agreed state.
func (c *Channel) Fund(ctx context.Context, left, right *big.Int) error {
	req := channel.FundingReq{ID: c.adj.ID(), Side: c.side, Deposits: [2]*big.Int{left, right}}
	if err := c.funder.Fund(ctx, req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.WithDeposits(left, right)
	return nil
}

// ProposeConditional reserves amount for the peer, payable if the returned
// preimage is revealed on the ledger by block height expiry.
func (c *Channel) ProposeConditional(amount, expiry *big.Int) (channel.SignedState, channel.Preimage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	preimage, err := channel.GeneratePreimage(c.rng)
	if err != nil {
		return channel.SignedState{}, preimage, fmt.Errorf("generating preimage: %w", err)
	}
	next := c.current.ConditionalPaymentFrom(c.side, amount, c.peer, expiry, preimage)
	ss, err := c.propose(next, channel.Open)
	if err != nil {
		return ss, preimage, err
	}
	c.preimages[next.Payment.PreimageHash] = preimage
	return ss, preimage, nil
}

// ProposeComplete hands the payment in flight to the peer.
func (c *Channel) ProposeComplete() (channel.SignedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkPayer(); err != nil {
		return channel.SignedState{}, err
	}
	return c.propose(c.current.CompletePaymentFrom(c.side).NextRound(), channel.Complete)
}

// ProposeCancel returns the payment in flight to this party.
func (c *Channel) ProposeCancel() (channel.SignedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkPayer(); err != nil {
		return channel.SignedState{}, err
	}
	return c.propose(c.current.CancelPaymentFrom(c.side).NextRound(), channel.Cancel)
}

// ProposeWithdrawal raises the amount this party may withdraw from the
// ledger while the channel stays open.
func (c *Channel) ProposeWithdrawal(amount *big.Int) (channel.SignedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.current.NextRound()
	next.Withdrawals[c.side].Add(next.Withdrawals[c.side], amount)
	return c.propose(next, channel.PlainUpdate)
}

func (c *Channel) checkPayer() error {
	if c.current.Payment.Active() && c.current.Payment.Recipient != c.peer {
		return ErrNotPayer
	}
	return nil
}

func (c *Channel) propose(next channel.State, cmd channel.Command) (channel.SignedState, error) {
	if c.pending != nil {
		return channel.SignedState{}, ErrProposalPending
	}
	if err := c.current.ValidateFrom(c.side, next, cmd); err != nil {
		return channel.SignedState{}, err
	}
	ss, err := c.signer.Sign(next, c.account)
	if err != nil {
		return channel.SignedState{}, err
	}
	c.pending = &ss
	c.log.Log().Debugf("Proposed %v at round %v", cmd, next.Round)
	return ss, nil
}

// Accept completes the pending proposal with the peer's countersignature.
func (c *Channel) Accept(countersigned channel.SignedState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoProposal
	}
	if !countersigned.State.Equal(c.pending.State) {
		return ErrProposalMismatch
	}
	if err := c.signer.Verify(countersigned, c.peer); err != nil {
		return err
	}
	c.current = c.pending.Unsigned()
	c.latest = &countersigned
	c.pending = nil
	return nil
}

// Drop abandons the pending proposal.
func (c *Channel) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// Receive checks a state proposed by the peer with command cmd and returns
// this party's countersignature. The state becomes the agreed state.
func (c *Channel) Receive(proposal channel.SignedState, cmd channel.Command) (channel.SignedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return channel.SignedState{}, ErrProposalPending
	}
	if err := c.signer.Verify(proposal, c.peer); err != nil {
		return channel.SignedState{}, err
	}
	if err := c.checkRecipient(proposal.State, cmd); err != nil {
		return channel.SignedState{}, err
	}
	// Deposits are not signed, ours are authoritative.
	next := proposal.Unsigned().WithDeposits(c.current.Deposits[0], c.current.Deposits[1])
	if err := c.current.ValidateFrom(c.side.Other(), next, cmd); err != nil {
		return channel.SignedState{}, err
	}
	ss, err := c.signer.Sign(next, c.account)
	if err != nil {
		return channel.SignedState{}, err
	}
	c.current = next
	c.latest = &channel.SignedState{State: next.Clone(), Sig: proposal.Sig}
	c.log.Log().Debugf("Countersigned %v at round %v", cmd, next.Round)
	return ss, nil
}

func (c *Channel) checkRecipient(next channel.State, cmd channel.Command) error {
	var p channel.Payment
	switch cmd {
	case channel.Open:
		p = next.Payment
	case channel.Complete, channel.Cancel:
		p = c.current.Payment
	default:
		return nil
	}
	if p.Active() && p.Recipient != c.account.Address() {
		return fmt.Errorf("%w: %v", ErrWrongRecipient, p.Recipient)
	}
	return nil
}

// AddPreimage records a preimage to reveal if the channel is disputed.
func (c *Channel) AddPreimage(p channel.Preimage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preimages[crypto.Keccak256Hash(p[:])] = p
}

// Dispute settles the channel on the ledger with the newest state signed by
// the peer and withdraws this party's funds.
func (c *Channel) Dispute(ctx context.Context) (*big.Int, error) {
	latest := c.Latest()
	c.mu.Lock()
	preimages := make([]channel.Preimage, 0, len(c.preimages))
	for _, p := range c.preimages {
		preimages = append(preimages, p)
	}
	c.mu.Unlock()

	c.log.Log().Info("Disputing channel")
	paid, err := c.adj.Settle(ctx, latest, preimages)
	if err != nil {
		return nil, fmt.Errorf("settling channel: %w", err)
	}
	return paid, nil
}

// Withdraw pays out what the ledger already owes this party, such as
// agreed withdrawals from an open channel.
func (c *Channel) Withdraw(ctx context.Context) (*big.Int, error) {
	latest := c.Latest()
	if latest != nil {
		if err := c.adj.Update(ctx, *latest); err != nil && !errors.Is(err, channel.ErrRoundNotAdvanced) {
			return nil, err
		}
	}
	return c.adj.Withdraw(ctx)
}
