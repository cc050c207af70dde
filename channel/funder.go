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

	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/client"
)

const MaxIterationsUntilAbort = 20

var DefaultFundingPollingInterval = time.Duration(6) * time.Second

// ErrFundingTimeout is returned when the peer's deposit does not arrive in
// time.
var ErrFundingTimeout = errors.New("funding timed out")

// FundingReq asks a Funder to deposit the share of Side and to wait until the
// other side has deposited its share.
type FundingReq struct {
	ID       *big.Int
	Side     Side
	Deposits [2]*big.Int
}

// Funder deposits into channels on the ledger.
type Funder struct {
	ledger          client.Ledger
	maxIters        int
	pollingInterval time.Duration
}

// NewFunder returns a Funder depositing as the ledger's account.
func NewFunder(ledger client.Ledger) *Funder {
	return &Funder{
		ledger:          ledger,
		maxIters:        MaxIterationsUntilAbort,
		pollingInterval: DefaultFundingPollingInterval,
	}
}

// SetPolling configures how long Fund waits for the peer.
func (f *Funder) SetPolling(maxIters int, interval time.Duration) {
	f.maxIters = maxIters
	f.pollingInterval = interval
}

// Fund tops up the deposit of req.Side to its share and polls until the other
// side is funded as well.
func (f *Funder) Fund(ctx context.Context, req FundingReq) error {
	if !req.Side.Valid() {
		return errors.New("req.Side must be left or right")
	}
	party := getPartyBySide(req.Side)
	log.Printf("%s: Funding channel %v...", party, req.ID)

	if err := f.fundParty(ctx, req); err != nil {
		return err
	}

	other := req.Side.Other()
	for i := 0; i < f.maxIters; i++ {
		dep, err := f.ledger.GetDeposit(ctx, req.ID, other)
		if err != nil {
			log.Printf("%s: Error while polling for deposit: %v", party, err)
		} else if dep.Cmp(copyInt(req.Deposits[other])) >= 0 {
			log.Printf("%s: Channel funded", party)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.pollingInterval):
		}
	}
	return fmt.Errorf("%w: %s waited for %v deposit of %v", ErrFundingTimeout, party, other, req.Deposits[other])
}

func (f *Funder) fundParty(ctx context.Context, req FundingReq) error {
	dep, err := f.ledger.GetDeposit(ctx, req.ID, req.Side)
	if err != nil {
		return err
	}
	missing := new(big.Int).Sub(copyInt(req.Deposits[req.Side]), dep)
	if missing.Sign() <= 0 {
		return nil
	}
	_, err = f.ledger.Deposit(ctx, req.ID, missing)
	return err
}

func getPartyBySide(side Side) string {
	if side == Right {
		return "Party B"
	}
	return "Party A"
}
