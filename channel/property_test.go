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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"perun.network/perun-sprites-backend/channel"
)

// drawState draws a channel state with a positive balance on the left.
func drawState(t *rapid.T) channel.State {
	dl := rapid.Int64Range(1, 1<<40).Draw(t, "depositLeft")
	dr := rapid.Int64Range(0, 1<<40).Draw(t, "depositRight")
	cl := rapid.Int64Range(-dl+1, 1<<40).Draw(t, "creditLeft")
	cr := rapid.Int64Range(-dr, 1<<40).Draw(t, "creditRight")
	round := rapid.Int64Range(-1, 1<<30).Draw(t, "round")
	return channel.NewInitialState(big.NewInt(1)).
		WithDeposits(big.NewInt(dl), big.NewInt(dr)).
		WithCredits(big.NewInt(cl), big.NewInt(cr)).
		WithRound(big.NewInt(round))
}

func drawPayment(t *rapid.T, s channel.State) (*big.Int, channel.Preimage) {
	available := new(big.Int).Add(s.Deposits[0], s.Credits[0]).Int64()
	amount := rapid.Int64Range(1, available).Draw(t, "amount")
	var preimage channel.Preimage
	copy(preimage[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "preimage"))
	return big.NewInt(amount), preimage
}

func TestPropertyRoundMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawState(t)
		cmd := channel.Command(rapid.IntRange(0, 3).Draw(t, "command"))
		delta := rapid.Int64Range(-5, 0).Draw(t, "delta")

		next := s.WithRound(new(big.Int).Add(s.Round, big.NewInt(delta)))
		if err := s.Validate(next, cmd); err == nil {
			t.Fatalf("state with round %v accepted after %v", next.Round, s.Round)
		}
	})
}

func TestPropertyConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawState(t)
		amount, preimage := drawPayment(t, s)
		recipient := common.BigToAddress(big.NewInt(rapid.Int64Range(1, 1<<20).Draw(t, "recipient")))

		opened := s.ConditionalPayment(amount, recipient, big.NewInt(10), preimage)
		if err := s.Validate(opened, channel.Open); err != nil {
			t.Fatalf("open rejected: %v", err)
		}
		completed := opened.CompletePayment().NextRound()
		if err := opened.Validate(completed, channel.Complete); err != nil {
			t.Fatalf("complete rejected: %v", err)
		}

		before := new(big.Int).Add(s.Credits[0], s.Credits[1])
		after := new(big.Int).Add(completed.Credits[0], completed.Credits[1])
		if before.Cmp(after) != 0 {
			t.Fatalf("sum of credits changed from %v to %v", before, after)
		}
	})
}

func TestPropertyCancelRestoresCredits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawState(t)
		amount, preimage := drawPayment(t, s)

		opened := s.ConditionalPayment(amount, common.Address{1}, big.NewInt(10), preimage)
		cancelled := opened.CancelPayment().NextRound()
		if err := opened.Validate(cancelled, channel.Cancel); err != nil {
			t.Fatalf("cancel rejected: %v", err)
		}
		if cancelled.Credits[0].Cmp(s.Credits[0]) != 0 {
			t.Fatalf("credits %v not restored to %v", cancelled.Credits[0], s.Credits[0])
		}
	})
}

func TestPropertyOverwithdrawalBoundary(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawState(t)
		limit := new(big.Int).Add(s.Deposits[0], s.Credits[0])

		ok := s.NextRound().WithWithdrawals(limit, s.Withdrawals[1])
		require.NoError(t, s.Validate(ok, channel.PlainUpdate))

		over := s.NextRound().WithWithdrawals(new(big.Int).Add(limit, big.NewInt(1)), s.Withdrawals[1])
		require.ErrorIs(t, s.Validate(over, channel.PlainUpdate), channel.ErrOverwithdrawal)
	})
}
