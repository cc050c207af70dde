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

package sim_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/client/sim"
	"perun.network/perun-sprites-backend/wallet"
	wtest "perun.network/perun-sprites-backend/wallet/test"
	"perun.network/perun-sprites-backend/wire"
)

type fixture struct {
	sim    *sim.Ledger
	id     *big.Int
	accs   []*wallet.Account
	ledger [2]client.Ledger
}

func setup(t *testing.T, deposits ...int64) *fixture {
	t.Helper()
	rng := pkgtest.Prng(t)
	_, accs := wtest.NewRandomAccounts(rng, 3)
	s := sim.New(sim.DefaultDelta)
	f := &fixture{
		sim:    s,
		id:     s.OpenChannel(accs[0].Address(), accs[1].Address()),
		accs:   accs,
		ledger: [2]client.Ledger{s.As(accs[0].Address()), s.As(accs[1].Address())},
	}
	for i, d := range deposits {
		if d == 0 {
			continue
		}
		_, err := f.ledger[i].Deposit(context.Background(), f.id, big.NewInt(d))
		require.NoError(t, err)
	}
	return f
}

// sign returns msg signed by the account of side.
func (f *fixture) sign(t *testing.T, side wire.Side, msg wire.Message) wire.Update {
	t.Helper()
	h, err := wire.Codec{}.MessageHash(msg)
	require.NoError(t, err)
	sig, err := f.accs[side].SignHash(h)
	require.NoError(t, err)
	return wire.Update{Message: msg, Sig: sig}
}

func msg(id *big.Int, round int64, credits, withdrawals [2]int64) wire.Message {
	return wire.Message{
		ChannelID:   new(big.Int).Set(id),
		Credits:     [2]*big.Int{big.NewInt(credits[0]), big.NewInt(credits[1])},
		Withdrawals: [2]*big.Int{big.NewInt(withdrawals[0]), big.NewInt(withdrawals[1])},
		Round:       big.NewInt(round),
	}.Clone()
}

func requireRejected(t *testing.T, err error, reason string) {
	t.Helper()
	require.ErrorIs(t, err, client.ErrTransactionFailed)
	var txErr *client.TxFailedError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, reason, txErr.Reason)
}

func TestDepositAndQueries(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10, 20)

	dep, err := f.ledger[0].GetDeposit(ctx, f.id, wire.Right)
	require.NoError(t, err)
	require.Equal(t, int64(20), dep.Int64())
	require.Equal(t, int64(-10), f.sim.Balance(f.accs[0].Address()).Int64())

	players, err := f.ledger[1].Players(ctx, f.id)
	require.NoError(t, err)
	require.Equal(t, f.accs[1].Address(), players[wire.Right])

	state, err := f.ledger[1].GetState(ctx, f.id, wire.Right)
	require.NoError(t, err)
	require.Equal(t, int64(20), state.Deposits[0].Int64())
	require.Equal(t, int64(-1), state.Round.Int64())

	status, err := f.ledger[0].GetStatus(ctx, f.id)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOpen, status)

	_, err = f.ledger[0].GetStatus(ctx, big.NewInt(42))
	require.ErrorIs(t, err, client.ErrUnknownChannel)

	_, err = f.ledger[0].Deposit(ctx, f.id, big.NewInt(0))
	requireRejected(t, err, sim.ReasonBadAmount)

	third := f.sim.As(f.accs[2].Address())
	_, err = third.Deposit(ctx, f.id, big.NewInt(1))
	requireRejected(t, err, sim.ReasonNotAPlayer)
}

func TestTrigger(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10, 10)

	r, err := f.ledger[0].Trigger(ctx, f.id)
	require.NoError(t, err)
	deadline, err := f.ledger[1].GetDeadline(ctx, f.id)
	require.NoError(t, err)
	require.Equal(t, int64(r.BlockNumber)+sim.DefaultDelta, deadline.Int64())

	_, err = f.ledger[1].Trigger(ctx, f.id)
	requireRejected(t, err, sim.ReasonNotOpen)

	third := f.sim.As(f.accs[2].Address())
	_, err = third.Trigger(ctx, f.id)
	requireRejected(t, err, sim.ReasonNotAPlayer)
}

func TestUpdateRules(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10, 10)

	// own signature
	_, err := f.ledger[0].Update(ctx, f.id, f.sign(t, wire.Left, msg(f.id, 0, [2]int64{-3, 3}, [2]int64{})))
	requireRejected(t, err, sim.ReasonBadSignature)

	// overdraw
	_, err = f.ledger[0].Update(ctx, f.id, f.sign(t, wire.Right, msg(f.id, 0, [2]int64{-3, 3}, [2]int64{8, 0})))
	requireRejected(t, err, sim.ReasonOverdraw)

	// not conserved
	_, err = f.ledger[0].Update(ctx, f.id, f.sign(t, wire.Right, msg(f.id, 0, [2]int64{-3, 4}, [2]int64{})))
	requireRejected(t, err, sim.ReasonNotConserved)

	_, err = f.ledger[0].Update(ctx, f.id, f.sign(t, wire.Right, msg(f.id, 1, [2]int64{-3, 3}, [2]int64{7, 0})))
	require.NoError(t, err)

	// stale round
	_, err = f.ledger[1].Update(ctx, f.id, f.sign(t, wire.Left, msg(f.id, 1, [2]int64{-2, 2}, [2]int64{})))
	requireRejected(t, err, sim.ReasonRoundNotAdvanced)

	// other channel
	_, err = f.ledger[1].Update(ctx, f.id, f.sign(t, wire.Left, msg(big.NewInt(9), 2, [2]int64{}, [2]int64{})))
	requireRejected(t, err, sim.ReasonWrongChannel)

	state, err := f.ledger[0].GetState(ctx, f.id, wire.Left)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Round.Int64())
	require.Equal(t, int64(7), state.Withdrawals[0].Int64())

	// agreed withdrawals are paid before finalization
	_, err = f.ledger[0].Withdraw(ctx, f.id)
	require.NoError(t, err)
	w, err := f.ledger[1].GetWithdrawn(ctx, f.id, wire.Left)
	require.NoError(t, err)
	require.Equal(t, int64(7), w.Int64())
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10, 10)

	_, err := f.ledger[0].Finalize(ctx, f.id)
	requireRejected(t, err, sim.ReasonNotPending)

	// withdrawing before trigger pays nothing
	_, err = f.ledger[1].Withdraw(ctx, f.id)
	require.NoError(t, err)
	require.Equal(t, int64(-10), f.sim.Balance(f.accs[1].Address()).Int64())

	_, err = f.ledger[1].Update(ctx, f.id, f.sign(t, wire.Left, msg(f.id, 0, [2]int64{-4, 4}, [2]int64{})))
	require.NoError(t, err)
	_, err = f.ledger[0].Trigger(ctx, f.id)
	require.NoError(t, err)

	_, err = f.ledger[0].Finalize(ctx, f.id)
	requireRejected(t, err, sim.ReasonDeadlineNotPassed)

	f.sim.Mine(sim.DefaultDelta)
	_, err = f.ledger[0].Finalize(ctx, f.id)
	require.NoError(t, err)

	for i, expected := range []int64{6, 14} {
		_, err = f.ledger[i].Withdraw(ctx, f.id)
		require.NoError(t, err)
		_, err = f.ledger[i].Withdraw(ctx, f.id)
		require.NoError(t, err)
		require.Equal(t, expected-10, f.sim.Balance(f.accs[i].Address()).Int64())
	}

	_, err = f.ledger[0].Update(ctx, f.id, f.sign(t, wire.Right, msg(f.id, 5, [2]int64{}, [2]int64{})))
	requireRejected(t, err, sim.ReasonFinalized)
}

func conditional(f *fixture, round, amount, expiry int64, preimage [32]byte) wire.Message {
	m := msg(f.id, round, [2]int64{-amount, 0}, [2]int64{})
	m.Amount = big.NewInt(amount)
	m.Expiry = big.NewInt(expiry)
	m.Recipient = f.accs[1].Address()
	m.PreimageHash = crypto.Keccak256Hash(preimage[:])
	return m
}

func TestFinalizeConditionalPayment(t *testing.T) {
	for _, reveal := range []bool{true, false} {
		ctx := context.Background()
		f := setup(t, 10, 10)
		preimage := [32]byte{1, 2, 3}

		expiry := new(big.Int).Add(f.sim.Height(), big.NewInt(10)).Int64()
		u := f.sign(t, wire.Left, conditional(f, 0, 5, expiry, preimage))
		_, err := f.ledger[1].Update(ctx, f.id, u)
		require.NoError(t, err)

		if reveal {
			_, err = f.ledger[1].SubmitPreimage(ctx, preimage)
			require.NoError(t, err)
		}
		ok, err := f.ledger[0].RevealedBefore(ctx, u.PreimageHash, big.NewInt(expiry))
		require.NoError(t, err)
		require.Equal(t, reveal, ok)

		_, err = f.ledger[1].Trigger(ctx, f.id)
		require.NoError(t, err)
		f.sim.Mine(sim.DefaultDelta)
		_, err = f.ledger[1].Finalize(ctx, f.id)
		require.NoError(t, err)

		state, err := f.ledger[0].GetState(ctx, f.id, wire.Left)
		require.NoError(t, err)
		require.Zero(t, state.Amount.Sign())
		if reveal {
			require.Equal(t, []int64{5, 15}, []int64{state.Withdrawals[0].Int64(), state.Withdrawals[1].Int64()})
		} else {
			require.Equal(t, []int64{10, 10}, []int64{state.Withdrawals[0].Int64(), state.Withdrawals[1].Int64()})
		}
	}
}

func TestRevealAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	preimage := [32]byte{7}
	hash := crypto.Keccak256Hash(preimage[:])

	r, err := f.ledger[0].SubmitPreimage(ctx, preimage)
	require.NoError(t, err)
	at := new(big.Int).SetUint64(r.BlockNumber)

	ok, err := f.ledger[0].RevealedBefore(ctx, hash, at)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.ledger[0].RevealedBefore(ctx, hash, new(big.Int).Sub(at, big.NewInt(1)))
	require.NoError(t, err)
	require.False(t, ok)

	// a second reveal does not move the first reveal height
	_, err = f.ledger[1].SubmitPreimage(ctx, preimage)
	require.NoError(t, err)
	ok, err = f.ledger[0].RevealedBefore(ctx, hash, at)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.ledger[0].RevealedBefore(ctx, common.Hash{}, at)
	require.NoError(t, err)
}

func TestReceiptDelay(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.sim.SetReceiptDelay(3)
	_, err := f.ledger[0].Deposit(ctx, f.id, big.NewInt(1))
	require.NoError(t, err)

	f.sim.SetReceiptDelay(client.DefaultReceiptAttempts)
	_, err = f.ledger[0].Deposit(ctx, f.id, big.NewInt(1))
	require.ErrorIs(t, err, client.ErrReceiptNotFound)
}

func TestAutoMine(t *testing.T) {
	s := sim.New(sim.DefaultDelta)
	ctx, cancel := context.WithCancel(context.Background())
	tick := ticker.NewForce(time.Hour)
	done := make(chan struct{})
	go func() {
		sim.AutoMineWith(s, ctx, tick)
		close(done)
	}()

	start := s.Height().Int64()
	tick.Force <- time.Now()
	tick.Force <- time.Now()
	require.Eventually(t, func() bool { return s.Height().Int64() == start+2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
