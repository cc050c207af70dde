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

package sim

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/wire"
)

// account is a view on the simulated ledger that transacts as one address.
type account struct {
	sim    *Ledger
	from   common.Address
	policy client.RetryPolicy
}

var _ client.Ledger = (*account)(nil)

func (a *account) Address() common.Address {
	return a.from
}

func (a *account) BlockHeight(context.Context) (*big.Int, error) {
	return a.sim.Height(), nil
}

func (a *account) Players(_ context.Context, id *big.Int) ([2]common.Address, error) {
	return a.sim.Players(id)
}

func (a *account) GetDeposit(_ context.Context, id *big.Int, side wire.Side) (*big.Int, error) {
	return a.sim.Deposit(id, side)
}

func (a *account) GetStatus(_ context.Context, id *big.Int) (wire.Status, error) {
	return a.sim.Status(id)
}

func (a *account) GetDeadline(_ context.Context, id *big.Int) (*big.Int, error) {
	return a.sim.Deadline(id)
}

func (a *account) GetWithdrawn(_ context.Context, id *big.Int, side wire.Side) (*big.Int, error) {
	return a.sim.Withdrawn(id, side)
}

func (a *account) GetState(_ context.Context, id *big.Int, asSide wire.Side) (wire.State, error) {
	return a.sim.State(id, asSide)
}

func (a *account) RevealedBefore(_ context.Context, hash common.Hash, height *big.Int) (bool, error) {
	return a.sim.RevealedBefore(hash, height), nil
}

func (a *account) Deposit(ctx context.Context, id, amount *big.Int) (*client.Receipt, error) {
	return a.wait(ctx, "deposit", a.sim.deposit(a.from, id, amount))
}

func (a *account) Withdraw(ctx context.Context, id *big.Int) (*client.Receipt, error) {
	return a.wait(ctx, "withdraw", a.sim.withdraw(a.from, id))
}

func (a *account) Trigger(ctx context.Context, id *big.Int) (*client.Receipt, error) {
	return a.wait(ctx, "trigger", a.sim.trigger(a.from, id))
}

func (a *account) Finalize(ctx context.Context, id *big.Int) (*client.Receipt, error) {
	return a.wait(ctx, "finalize", a.sim.finalize(a.from, id))
}

func (a *account) Update(ctx context.Context, id *big.Int, u wire.Update) (*client.Receipt, error) {
	return a.wait(ctx, "update", a.sim.update(a.from, id, u))
}

func (a *account) SubmitPreimage(ctx context.Context, preimage client.Preimage) (*client.Receipt, error) {
	return a.wait(ctx, "submitPreimage", a.sim.submitPreimage(a.from, preimage[:]))
}

func (a *account) wait(ctx context.Context, method string, tx common.Hash) (*client.Receipt, error) {
	r, err := a.policy.WaitReceipt(ctx, func(context.Context) (*client.Receipt, error) {
		return a.sim.receipt(tx)
	})
	if err != nil {
		return nil, err
	}
	return client.CheckReceipt(method, r)
}

// Players returns the addresses of the channel's players, left first.
func (l *Ledger) Players(id *big.Int) (players [2]common.Address, err error) {
	err = l.view(id, func(c *channelRecord) error {
		players = c.players
		return nil
	})
	return players, err
}

// Deposit returns the amount deposited by side.
func (l *Ledger) Deposit(id *big.Int, side wire.Side) (dep *big.Int, err error) {
	if err := checkSide(side); err != nil {
		return nil, err
	}
	err = l.view(id, func(c *channelRecord) error {
		dep = new(big.Int).Set(c.deposits[side])
		return nil
	})
	return dep, err
}

// Status returns the arbitration status of the channel.
func (l *Ledger) Status(id *big.Int) (status wire.Status, err error) {
	err = l.view(id, func(c *channelRecord) error {
		status = c.status
		return nil
	})
	return status, err
}

// Deadline returns the dispute deadline, zero while the channel is open.
func (l *Ledger) Deadline(id *big.Int) (deadline *big.Int, err error) {
	err = l.view(id, func(c *channelRecord) error {
		deadline = new(big.Int).Set(c.deadline)
		return nil
	})
	return deadline, err
}

// Withdrawn returns the amount side has withdrawn so far.
func (l *Ledger) Withdrawn(id *big.Int, side wire.Side) (w *big.Int, err error) {
	if err := checkSide(side); err != nil {
		return nil, err
	}
	err = l.view(id, func(c *channelRecord) error {
		w = new(big.Int).Set(c.withdrawn[side])
		return nil
	})
	return w, err
}

// State returns the best state with the per-side fields of asSide first.
func (l *Ledger) State(id *big.Int, asSide wire.Side) (s wire.State, err error) {
	if err := checkSide(asSide); err != nil {
		return wire.State{}, err
	}
	err = l.view(id, func(c *channelRecord) error {
		s = wire.State{Message: c.best, Deposits: c.deposits}.View(asSide)
		return nil
	})
	return s, err
}

// RevealedBefore reports whether the preimage of hash was submitted at or
// before height.
func (l *Ledger) RevealedBefore(hash common.Hash, height *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revealedBefore(hash, height)
}
