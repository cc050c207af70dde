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
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/wire"
)

// Side aliases wire.Side for callers of this package.
type Side = wire.Side

const (
	Left  = wire.Left
	Right = wire.Right
)

// State is an immutable snapshot of a channel at one round. Per-side arrays
// are in canonical order. Builders return deep copies, no big.Int is shared
// between two states.
type State struct {
	ChannelID   *big.Int
	Deposits    [2]*big.Int
	Credits     [2]*big.Int
	Withdrawals [2]*big.Int
	Round       *big.Int
	Payment     Payment
}

// NewInitialState returns the state of a freshly opened channel: everything
// zero and round -1.
func NewInitialState(id *big.Int) State {
	s := zeroState()
	s.ChannelID = copyInt(id)
	s.Round = big.NewInt(-1)
	return s
}

func zeroState() State {
	return State{
		ChannelID:   new(big.Int),
		Deposits:    [2]*big.Int{new(big.Int), new(big.Int)},
		Credits:     [2]*big.Int{new(big.Int), new(big.Int)},
		Withdrawals: [2]*big.Int{new(big.Int), new(big.Int)},
		Round:       new(big.Int),
		Payment:     Payment{Amount: new(big.Int), Expiry: new(big.Int)},
	}
}

// Clone returns a deep copy of s. Nil integers become zero.
func (s State) Clone() State {
	return State{
		ChannelID:   copyInt(s.ChannelID),
		Deposits:    copyPair(s.Deposits),
		Credits:     copyPair(s.Credits),
		Withdrawals: copyPair(s.Withdrawals),
		Round:       copyInt(s.Round),
		Payment:     s.Payment.Clone(),
	}
}

func (s State) WithRound(round *big.Int) State {
	c := s.Clone()
	c.Round = copyInt(round)
	return c
}

func (s State) WithDeposits(left, right *big.Int) State {
	c := s.Clone()
	c.Deposits = copyPair([2]*big.Int{left, right})
	return c
}

func (s State) WithCredits(left, right *big.Int) State {
	c := s.Clone()
	c.Credits = copyPair([2]*big.Int{left, right})
	return c
}

func (s State) WithWithdrawals(left, right *big.Int) State {
	c := s.Clone()
	c.Withdrawals = copyPair([2]*big.Int{left, right})
	return c
}

func (s State) WithPayment(p Payment) State {
	c := s.Clone()
	c.Payment = p.Clone()
	return c
}

// NextRound returns s with its round incremented.
func (s State) NextRound() State {
	c := s.Clone()
	c.Round.Add(c.Round, big.NewInt(1))
	return c
}

// Mirror returns s as seen from the other side, with the per-side arrays
// swapped.
func (s State) Mirror() State {
	c := s.Clone()
	c.Deposits[0], c.Deposits[1] = c.Deposits[1], c.Deposits[0]
	c.Credits[0], c.Credits[1] = c.Credits[1], c.Credits[0]
	c.Withdrawals[0], c.Withdrawals[1] = c.Withdrawals[1], c.Withdrawals[0]
	return c
}

// Equal compares all fields except the payment's command.
func (s State) Equal(t State) bool {
	return eqInt(s.ChannelID, t.ChannelID) &&
		eqPair(s.Deposits, t.Deposits) &&
		eqPair(s.Credits, t.Credits) &&
		eqPair(s.Withdrawals, t.Withdrawals) &&
		eqInt(s.Round, t.Round) &&
		s.Payment.Equal(t.Payment)
}

// Message returns the fields covered by a signature.
func (s State) Message() wire.Message {
	c := s.Clone()
	return wire.Message{
		ChannelID:    c.ChannelID,
		Credits:      c.Credits,
		Withdrawals:  c.Withdrawals,
		Round:        c.Round,
		PreimageHash: c.Payment.PreimageHash,
		Recipient:    c.Payment.Recipient,
		Amount:       c.Payment.Amount,
		Expiry:       c.Payment.Expiry,
	}
}

// Wire converts s to the ledger representation.
func (s State) Wire() wire.State {
	return wire.State{Message: s.Message(), Deposits: copyPair(s.Deposits)}
}

// FromWire converts a ledger state whose per-side fields have asSide first
// into a State in canonical order.
func FromWire(ws wire.State, asSide Side) State {
	c := ws.View(asSide) // a view is its own inverse
	return State{
		ChannelID:   c.ChannelID,
		Deposits:    c.Deposits,
		Credits:     c.Credits,
		Withdrawals: c.Withdrawals,
		Round:       c.Round,
		Payment: Payment{
			PreimageHash: c.PreimageHash,
			Recipient:    c.Recipient,
			Amount:       c.Amount,
			Expiry:       c.Expiry,
		},
	}
}

// ConditionalPayment is ConditionalPaymentFrom(Left, ...).
func (s State) ConditionalPayment(amount *big.Int, recipient common.Address, expiry *big.Int, preimage Preimage) State {
	return s.ConditionalPaymentFrom(Left, amount, recipient, expiry, preimage)
}

// ConditionalPaymentFrom returns the successor of s in which self reserves
// amount for a payment to recipient. Sufficiency is checked by Validate. An
// invalid self leaves s unchanged.
func (s State) ConditionalPaymentFrom(self Side, amount *big.Int, recipient common.Address, expiry *big.Int, preimage Preimage) State {
	if !self.Valid() {
		return s.Clone()
	}
	c := s.NextRound()
	c.Payment = MakePayment(amount, recipient, expiry, preimage)
	c.Payment.Command = Open
	c.Credits[self].Sub(c.Credits[self], c.Payment.Amount)
	return c
}

// CompletePayment is CompletePaymentFrom(Left).
func (s State) CompletePayment() State {
	return s.CompletePaymentFrom(Left)
}

// CompletePaymentFrom credits the payment in flight to the side opposite of
// self, the payer, and clears it. The round is left unchanged.
func (s State) CompletePaymentFrom(self Side) State {
	c := s.Clone()
	if !self.Valid() {
		return c
	}
	other := self.Other()
	c.Credits[other].Add(c.Credits[other], c.Payment.Amount)
	c.Payment = inactivePayment(Complete)
	return c
}

// CancelPayment is CancelPaymentFrom(Left).
func (s State) CancelPayment() State {
	return s.CancelPaymentFrom(Left)
}

// CancelPaymentFrom refunds the payment in flight to self, the payer, and
// clears it. The round is left unchanged.
func (s State) CancelPaymentFrom(self Side) State {
	c := s.Clone()
	if !self.Valid() {
		return c
	}
	c.Credits[self].Add(c.Credits[self], c.Payment.Amount)
	c.Payment = inactivePayment(Cancel)
	return c
}

func inactivePayment(cmd Command) Payment {
	return Payment{Amount: new(big.Int), Expiry: new(big.Int), Command: cmd}
}

func copyPair(p [2]*big.Int) [2]*big.Int {
	return [2]*big.Int{copyInt(p[0]), copyInt(p[1])}
}

func eqInt(a, b *big.Int) bool {
	return copyInt(a).Cmp(copyInt(b)) == 0
}

func eqPair(a, b [2]*big.Int) bool {
	return eqInt(a[0], b[0]) && eqInt(a[1], b[1])
}
