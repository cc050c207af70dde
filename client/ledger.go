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
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/wire"
)

// Preimage is the secret revealed to complete a conditional payment.
type Preimage = [32]byte

// ErrTransactionFailed is matched by every TxFailedError.
var ErrTransactionFailed = errors.New("transaction failed")

// ErrReceiptNotFound is returned while a submitted transaction has no receipt
// yet. It is the only error on which receipt fetching is retried.
var ErrReceiptNotFound = errors.New("receipt not found")

// ErrUnknownChannel is returned for queries on a channel the ledger does not
// know.
var ErrUnknownChannel = errors.New("unknown channel")

// Ledger is the arbitration contract of a channel as seen by one account.
// Mutating calls block until the transaction is included and return its
// receipt, or a *TxFailedError if the ledger rejected it.
type Ledger interface {
	// Address is the account the ledger transacts as.
	Address() common.Address
	BlockHeight(ctx context.Context) (*big.Int, error)
	Players(ctx context.Context, id *big.Int) ([2]common.Address, error)

	GetDeposit(ctx context.Context, id *big.Int, side wire.Side) (*big.Int, error)
	GetStatus(ctx context.Context, id *big.Int) (wire.Status, error)
	GetDeadline(ctx context.Context, id *big.Int) (*big.Int, error)
	GetWithdrawn(ctx context.Context, id *big.Int, side wire.Side) (*big.Int, error)
	// GetState returns the best state known to the ledger with the per-side
	// fields of asSide first.
	GetState(ctx context.Context, id *big.Int, asSide wire.Side) (wire.State, error)
	RevealedBefore(ctx context.Context, hash common.Hash, height *big.Int) (bool, error)

	Deposit(ctx context.Context, id, amount *big.Int) (*Receipt, error)
	Withdraw(ctx context.Context, id *big.Int) (*Receipt, error)
	Trigger(ctx context.Context, id *big.Int) (*Receipt, error)
	Finalize(ctx context.Context, id *big.Int) (*Receipt, error)
	Update(ctx context.Context, id *big.Int, u wire.Update) (*Receipt, error)
	SubmitPreimage(ctx context.Context, preimage Preimage) (*Receipt, error)
}

// Receipt describes an included transaction.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Status      uint64      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Successful reports whether the transaction was executed.
func (r *Receipt) Successful() bool {
	return r.Status == ReceiptStatusSuccessful
}

// TxFailedError is returned when the ledger rejects a transaction.
type TxFailedError struct {
	Method  string
	Reason  string
	Receipt *Receipt
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("%s transaction failed: %s", e.Method, e.Reason)
}

// Is makes every TxFailedError match ErrTransactionFailed.
func (e *TxFailedError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// CheckReceipt turns a failed receipt into a *TxFailedError.
func CheckReceipt(method string, r *Receipt) (*Receipt, error) {
	if !r.Successful() {
		return r, &TxFailedError{Method: method, Reason: r.Reason, Receipt: r}
	}
	return r, nil
}
