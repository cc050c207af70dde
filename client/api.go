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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"perun.network/perun-sprites-backend/wire"
)

// JSON-RPC method names of a sprites ledger node.
const (
	MethodBlockNumber    = "sprites_blockNumber"
	MethodGetPlayers     = "sprites_getPlayers"
	MethodGetDeposit     = "sprites_getDeposit"
	MethodGetStatus      = "sprites_getStatus"
	MethodGetDeadline    = "sprites_getDeadline"
	MethodGetWithdrawn   = "sprites_getWithdrawn"
	MethodGetState       = "sprites_getState"
	MethodRevealedBefore = "sprites_revealedBefore"
	MethodGetReceipt     = "sprites_getReceipt"

	MethodDeposit        = "sprites_deposit"
	MethodWithdraw       = "sprites_withdraw"
	MethodTrigger        = "sprites_trigger"
	MethodFinalize       = "sprites_finalize"
	MethodUpdate         = "sprites_update"
	MethodSubmitPreimage = "sprites_submitPreimage"
)

type (
	ChannelArgs struct {
		ID *big.Int `json:"id"`
	}

	SideArgs struct {
		ID   *big.Int  `json:"id"`
		Side wire.Side `json:"side"`
	}

	RevealedArgs struct {
		Hash   common.Hash `json:"hash"`
		Height *big.Int    `json:"height"`
	}

	// TxArgs are the arguments of transactions without payload.
	TxArgs struct {
		From common.Address `json:"from"`
		ID   *big.Int       `json:"id"`
	}

	DepositArgs struct {
		From   common.Address `json:"from"`
		ID     *big.Int       `json:"id"`
		Amount *big.Int       `json:"amount"`
	}

	UpdateArgs struct {
		From   common.Address `json:"from"`
		ID     *big.Int       `json:"id"`
		Update wire.Update    `json:"update"`
	}

	PreimageArgs struct {
		From     common.Address `json:"from"`
		Preimage hexutil.Bytes  `json:"preimage"`
	}

	TxResult struct {
		TxHash common.Hash `json:"txHash"`
	}

	ReceiptArgs struct {
		TxHash common.Hash `json:"txHash"`
	}

	ReceiptResult struct {
		Found   bool     `json:"found"`
		Receipt *Receipt `json:"receipt,omitempty"`
	}
)
