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
	"errors"
	"math/big"

	"github.com/creachadair/jrpc2/handler"
	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/wire"
)

// Service exposes the ledger as a sprites JSON-RPC node. Transactions are
// attributed to the From address of their arguments.
func (l *Ledger) Service() handler.Map {
	return handler.Map{
		client.MethodBlockNumber: handler.New(func(context.Context) (*big.Int, error) {
			return l.Height(), nil
		}),
		client.MethodGetPlayers: handler.New(func(_ context.Context, a client.ChannelArgs) ([2]common.Address, error) {
			return l.Players(a.ID)
		}),
		client.MethodGetDeposit: handler.New(func(_ context.Context, a client.SideArgs) (*big.Int, error) {
			return l.Deposit(a.ID, a.Side)
		}),
		client.MethodGetStatus: handler.New(func(_ context.Context, a client.ChannelArgs) (wire.Status, error) {
			return l.Status(a.ID)
		}),
		client.MethodGetDeadline: handler.New(func(_ context.Context, a client.ChannelArgs) (*big.Int, error) {
			return l.Deadline(a.ID)
		}),
		client.MethodGetWithdrawn: handler.New(func(_ context.Context, a client.SideArgs) (*big.Int, error) {
			return l.Withdrawn(a.ID, a.Side)
		}),
		client.MethodGetState: handler.New(func(_ context.Context, a client.SideArgs) (wire.State, error) {
			return l.State(a.ID, a.Side)
		}),
		client.MethodRevealedBefore: handler.New(func(_ context.Context, a client.RevealedArgs) (bool, error) {
			return l.RevealedBefore(a.Hash, a.Height), nil
		}),
		client.MethodGetReceipt: handler.New(func(_ context.Context, a client.ReceiptArgs) (client.ReceiptResult, error) {
			r, err := l.receipt(a.TxHash)
			if errors.Is(err, client.ErrReceiptNotFound) {
				return client.ReceiptResult{}, nil
			} else if err != nil {
				return client.ReceiptResult{}, err
			}
			return client.ReceiptResult{Found: true, Receipt: r}, nil
		}),

		client.MethodDeposit: handler.New(func(_ context.Context, a client.DepositArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.deposit(a.From, a.ID, a.Amount)}, nil
		}),
		client.MethodWithdraw: handler.New(func(_ context.Context, a client.TxArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.withdraw(a.From, a.ID)}, nil
		}),
		client.MethodTrigger: handler.New(func(_ context.Context, a client.TxArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.trigger(a.From, a.ID)}, nil
		}),
		client.MethodFinalize: handler.New(func(_ context.Context, a client.TxArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.finalize(a.From, a.ID)}, nil
		}),
		client.MethodUpdate: handler.New(func(_ context.Context, a client.UpdateArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.update(a.From, a.ID, a.Update)}, nil
		}),
		client.MethodSubmitPreimage: handler.New(func(_ context.Context, a client.PreimageArgs) (client.TxResult, error) {
			return client.TxResult{TxHash: l.submitPreimage(a.From, a.Preimage)}, nil
		}),
	}
}
