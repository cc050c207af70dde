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

package test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-sprites-backend/channel"
	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/client/sim"
	"perun.network/perun-sprites-backend/wallet"
	wtest "perun.network/perun-sprites-backend/wallet/test"
)

const (
	DefaultTestTimeout  = 10 * time.Second
	TestPollingInterval = 5 * time.Millisecond
)

// Setup is a channel between two accounts on a simulated ledger.
type Setup struct {
	t            *testing.T
	Sim          *sim.Ledger
	ID           *big.Int
	Signer       *channel.Signer
	accs         []*wallet.Account
	ledgers      []client.Ledger
	adjudicators []*channel.Adjudicator
	funders      []*channel.Funder
}

// NewTestSetup opens a channel between two fresh accounts.
func NewTestSetup(t *testing.T) *Setup {
	t.Helper()
	rng := pkgtest.Prng(t)
	_, accs := wtest.NewRandomAccounts(rng, 2)
	s := sim.New(sim.DefaultDelta)
	id := s.OpenChannel(accs[0].Address(), accs[1].Address())
	signer := channel.NewSigner()

	setup := &Setup{t: t, Sim: s, ID: id, Signer: signer, accs: accs}
	for _, acc := range accs {
		l := s.As(acc.Address())
		adj, err := channel.NewAdjudicator(context.Background(), l, signer, id)
		require.NoError(t, err)
		adj.SetPollingInterval(TestPollingInterval)
		f := channel.NewFunder(l)
		f.SetPolling(channel.MaxIterationsUntilAbort, TestPollingInterval)

		setup.ledgers = append(setup.ledgers, l)
		setup.adjudicators = append(setup.adjudicators, adj)
		setup.funders = append(setup.funders, f)
	}
	return setup
}

func (s *Setup) GetAccounts() []*wallet.Account {
	return s.accs
}

func (s *Setup) GetLedgers() []client.Ledger {
	return s.ledgers
}

func (s *Setup) GetAdjudicators() []*channel.Adjudicator {
	return s.adjudicators
}

func (s *Setup) GetFunders() []*channel.Funder {
	return s.funders
}

// NewCtx returns a context that is cancelled after timeout or at the end of
// the test.
func (s *Setup) NewCtx(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.t.Cleanup(cancel)
	return ctx
}

// StartMining mines a block every TestPollingInterval until ctx is done.
func (s *Setup) StartMining(ctx context.Context) {
	go s.Sim.AutoMine(ctx, TestPollingInterval)
}

// InitialState returns the channel's state after both deposits.
func (s *Setup) InitialState(left, right int64) channel.State {
	return channel.NewInitialState(s.ID).WithDeposits(big.NewInt(left), big.NewInt(right))
}

// Sign signs state with the account of side.
func (s *Setup) Sign(side channel.Side, state channel.State) channel.SignedState {
	s.t.Helper()
	ss, err := s.Signer.Sign(state, s.accs[side])
	require.NoError(s.t, err)
	return ss
}

// FundAll funds the channel concurrently from both sides.
func FundAll(ctx context.Context, funders []*channel.Funder, reqs []channel.FundingReq) error {
	errs := make(chan error, len(funders))
	for i := range funders {
		go func(i int) {
			errs <- funders[i].Fund(ctx, reqs[i])
		}(i)
	}
	for range funders {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

// FundingReqs returns the requests funding both sides with the given amounts.
func (s *Setup) FundingReqs(left, right int64) []channel.FundingReq {
	deps := [2]*big.Int{big.NewInt(left), big.NewInt(right)}
	return []channel.FundingReq{
		{ID: s.ID, Side: channel.Left, Deposits: deps},
		{ID: s.ID, Side: channel.Right, Deposits: deps},
	}
}
