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

package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/wire"
)

// Caller issues JSON-RPC calls. It is satisfied by *jrpc2.Client.
type Caller interface {
	CallResult(ctx context.Context, method string, params, result interface{}) error
}

// RPCLedger binds a Ledger to a sprites node over JSON-RPC.
type RPCLedger struct {
	cli    Caller
	from   common.Address
	policy RetryPolicy
	log    log.Embedding
}

var _ Ledger = (*RPCLedger)(nil)

// DialHTTP returns an RPCLedger talking to the node at url and transacting as
// from. The returned close function releases the connection.
func DialHTTP(url string, from common.Address, policy RetryPolicy) (*RPCLedger, func() error) {
	cli := jrpc2.NewClient(jhttp.NewChannel(url, nil), nil)
	return NewRPCLedger(cli, from, policy), cli.Close
}

// NewRPCLedger returns an RPCLedger using the given caller.
func NewRPCLedger(cli Caller, from common.Address, policy RetryPolicy) *RPCLedger {
	return &RPCLedger{
		cli:    cli,
		from:   from,
		policy: policy,
		log:    log.MakeEmbedding(log.Default()),
	}
}

// Address returns the account the ledger transacts as.
func (l *RPCLedger) Address() common.Address {
	return l.from
}

func (l *RPCLedger) BlockHeight(ctx context.Context) (*big.Int, error) {
	return l.callInt(ctx, MethodBlockNumber, nil)
}

func (l *RPCLedger) Players(ctx context.Context, id *big.Int) ([2]common.Address, error) {
	var players [2]common.Address
	err := l.call(ctx, MethodGetPlayers, ChannelArgs{ID: id}, &players)
	return players, err
}

func (l *RPCLedger) GetDeposit(ctx context.Context, id *big.Int, side wire.Side) (*big.Int, error) {
	return l.callInt(ctx, MethodGetDeposit, SideArgs{ID: id, Side: side})
}

func (l *RPCLedger) GetStatus(ctx context.Context, id *big.Int) (wire.Status, error) {
	var status wire.Status
	err := l.call(ctx, MethodGetStatus, ChannelArgs{ID: id}, &status)
	return status, err
}

func (l *RPCLedger) GetDeadline(ctx context.Context, id *big.Int) (*big.Int, error) {
	return l.callInt(ctx, MethodGetDeadline, ChannelArgs{ID: id})
}

func (l *RPCLedger) GetWithdrawn(ctx context.Context, id *big.Int, side wire.Side) (*big.Int, error) {
	return l.callInt(ctx, MethodGetWithdrawn, SideArgs{ID: id, Side: side})
}

func (l *RPCLedger) GetState(ctx context.Context, id *big.Int, asSide wire.Side) (wire.State, error) {
	var state wire.State
	err := l.call(ctx, MethodGetState, SideArgs{ID: id, Side: asSide}, &state)
	return state, err
}

func (l *RPCLedger) RevealedBefore(ctx context.Context, hash common.Hash, height *big.Int) (bool, error) {
	var revealed bool
	err := l.call(ctx, MethodRevealedBefore, RevealedArgs{Hash: hash, Height: height}, &revealed)
	return revealed, err
}

func (l *RPCLedger) Deposit(ctx context.Context, id, amount *big.Int) (*Receipt, error) {
	return l.transact(ctx, MethodDeposit, DepositArgs{From: l.from, ID: id, Amount: amount})
}

func (l *RPCLedger) Withdraw(ctx context.Context, id *big.Int) (*Receipt, error) {
	return l.transact(ctx, MethodWithdraw, TxArgs{From: l.from, ID: id})
}

func (l *RPCLedger) Trigger(ctx context.Context, id *big.Int) (*Receipt, error) {
	return l.transact(ctx, MethodTrigger, TxArgs{From: l.from, ID: id})
}

func (l *RPCLedger) Finalize(ctx context.Context, id *big.Int) (*Receipt, error) {
	return l.transact(ctx, MethodFinalize, TxArgs{From: l.from, ID: id})
}

func (l *RPCLedger) Update(ctx context.Context, id *big.Int, u wire.Update) (*Receipt, error) {
	return l.transact(ctx, MethodUpdate, UpdateArgs{From: l.from, ID: id, Update: u})
}

func (l *RPCLedger) SubmitPreimage(ctx context.Context, preimage Preimage) (*Receipt, error) {
	return l.transact(ctx, MethodSubmitPreimage, PreimageArgs{From: l.from, Preimage: preimage[:]})
}

// transact submits a transaction and waits for its receipt.
func (l *RPCLedger) transact(ctx context.Context, method string, args interface{}) (*Receipt, error) {
	var tx TxResult
	if err := l.call(ctx, method, args, &tx); err != nil {
		return nil, err
	}
	l.log.Log().Debugf("Submitted %s: %v", method, tx.TxHash)

	r, err := l.policy.WaitReceipt(ctx, func(ctx context.Context) (*Receipt, error) {
		var res ReceiptResult
		if err := l.call(ctx, MethodGetReceipt, ReceiptArgs{TxHash: tx.TxHash}, &res); err != nil {
			return nil, err
		}
		if !res.Found || res.Receipt == nil {
			return nil, ErrReceiptNotFound
		}
		return res.Receipt, nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "waiting for %s receipt", method)
	}
	return CheckReceipt(method, r)
}

func (l *RPCLedger) callInt(ctx context.Context, method string, args interface{}) (*big.Int, error) {
	v := new(big.Int)
	if err := l.call(ctx, method, args, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (l *RPCLedger) call(ctx context.Context, method string, args, result interface{}) error {
	if err := l.cli.CallResult(ctx, method, args, result); err != nil {
		return errors.WithMessage(err, fmt.Sprintf("calling %s", method))
	}
	return nil
}
