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

package channel_test

import (
	"log"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"perun.network/perun-sprites-backend/channel"
	chtest "perun.network/perun-sprites-backend/channel/test"
	"perun.network/perun-sprites-backend/wire"
)

func TestFunding_Happy(t *testing.T) {
	setup := chtest.NewTestSetup(t)
	funders := setup.GetFunders()
	ctx := setup.NewCtx(chtest.DefaultTestTimeout)
	err := chtest.FundAll(ctx, funders, setup.FundingReqs(10, 5))
	require.NoError(t, err)

	for side, want := range []int64{10, 5} {
		dep, err := setup.Sim.Deposit(setup.ID, wire.Side(side))
		require.NoError(t, err)
		assertInt(t, want, dep)
	}
}

func TestFunding_TopsUp(t *testing.T) {
	setup := chtest.NewTestSetup(t)
	funders := setup.GetFunders()
	ctx := setup.NewCtx(chtest.DefaultTestTimeout)
	require.NoError(t, chtest.FundAll(ctx, funders, setup.FundingReqs(4, 5)))
	require.NoError(t, chtest.FundAll(ctx, funders, setup.FundingReqs(10, 5)))

	dep, err := setup.Sim.Deposit(setup.ID, channel.Left)
	require.NoError(t, err)
	assertInt(t, 10, dep)
	assertInt(t, -5, setup.Sim.Balance(setup.GetAccounts()[1].Address()))
}

func TestFunding_TimeoutNotFunded(t *testing.T) {
	setup := chtest.NewTestSetup(t)
	funders := setup.GetFunders()
	ctxTimeout := setup.NewCtx(chtest.DefaultTestTimeout)
	gotErr := funders[0].Fund(ctxTimeout, setup.FundingReqs(10, 5)[0])
	log.Println(gotErr)
	require.ErrorIs(t, gotErr, channel.ErrFundingTimeout)
}

func TestFunding_InvalidSide(t *testing.T) {
	setup := chtest.NewTestSetup(t)
	req := channel.FundingReq{ID: setup.ID, Side: wire.Side(7), Deposits: [2]*big.Int{big.NewInt(1), big.NewInt(1)}}
	require.Error(t, setup.GetFunders()[0].Fund(setup.NewCtx(chtest.DefaultTestTimeout), req))
}
