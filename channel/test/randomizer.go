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
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/channel"
)

// NewRandomState returns a state with random fields. Values are kept small
// enough that transitions on the state never overflow the packed range.
func NewRandomState(rng *rand.Rand) channel.State {
	var recipient common.Address
	rng.Read(recipient[:])
	var preimage channel.Preimage
	rng.Read(preimage[:])

	s := channel.NewInitialState(big.NewInt(rng.Int63())).
		WithRound(big.NewInt(rng.Int63n(1 << 20))).
		WithDeposits(big.NewInt(rng.Int63n(1<<40)), big.NewInt(rng.Int63n(1<<40))).
		WithCredits(big.NewInt(rng.Int63n(1<<40)-1<<39), big.NewInt(rng.Int63n(1<<40)-1<<39)).
		WithWithdrawals(big.NewInt(rng.Int63n(1<<20)), big.NewInt(rng.Int63n(1<<20)))
	if rng.Intn(2) == 0 {
		s = s.WithPayment(channel.MakePayment(big.NewInt(1+rng.Int63n(1<<30)), recipient, big.NewInt(rng.Int63n(1<<30)), preimage))
	}
	return s
}
