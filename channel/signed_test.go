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
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-sprites-backend/channel"
	chtest "perun.network/perun-sprites-backend/channel/test"
	"perun.network/perun-sprites-backend/wallet"
	wtest "perun.network/perun-sprites-backend/wallet/test"
)

func TestSignAndVerify(t *testing.T) {
	rng := pkgtest.Prng(t)
	acc := wtest.NewRandomAccount(rng)
	signer := channel.NewSigner()

	s := chtest.NewRandomState(rng)
	ss, err := signer.Sign(s, acc)
	require.NoError(t, err)
	assert.True(t, ss.Unsigned().Equal(s))

	addr, err := signer.RecoverSigner(ss)
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), addr)
	require.NoError(t, signer.Verify(ss, acc.Address()))

	other := wtest.NewRandomAddress(rng)
	require.ErrorIs(t, signer.Verify(ss, other), channel.ErrBadSignature)
}

func TestSignatureCoversMessage(t *testing.T) {
	rng := pkgtest.Prng(t)
	acc := wtest.NewRandomAccount(rng)
	signer := channel.NewSigner()
	ss, err := signer.Sign(chtest.NewRandomState(rng), acc)
	require.NoError(t, err)

	tampers := map[string]func(s *channel.State){
		"channel id":       func(s *channel.State) { s.ChannelID.Add(s.ChannelID, big.NewInt(1)) },
		"left credit":      func(s *channel.State) { s.Credits[0].Add(s.Credits[0], big.NewInt(1)) },
		"right credit":     func(s *channel.State) { s.Credits[1].Sub(s.Credits[1], big.NewInt(1)) },
		"left withdrawal":  func(s *channel.State) { s.Withdrawals[0].Add(s.Withdrawals[0], big.NewInt(1)) },
		"right withdrawal": func(s *channel.State) { s.Withdrawals[1].Add(s.Withdrawals[1], big.NewInt(1)) },
		"round":            func(s *channel.State) { s.Round.Add(s.Round, big.NewInt(1)) },
		"preimage hash":    func(s *channel.State) { s.Payment.PreimageHash[0] ^= 0xff },
		"recipient":        func(s *channel.State) { s.Payment.Recipient[19] ^= 0xff },
		"amount":           func(s *channel.State) { s.Payment.Amount.Add(s.Payment.Amount, big.NewInt(1)) },
		"expiry":           func(s *channel.State) { s.Payment.Expiry.Add(s.Payment.Expiry, big.NewInt(1)) },
	}
	for name, tamper := range tampers {
		tamper := tamper
		t.Run(name, func(t *testing.T) {
			tampered := channel.SignedState{State: ss.Unsigned(), Sig: ss.Sig}
			tamper(&tampered.State)
			err := signer.Verify(tampered, acc.Address())
			require.Error(t, err)
			// A tampered message may also fail recovery altogether.
			assert.True(t, errorsIsAny(err, channel.ErrBadSignature, wallet.ErrSignatureRecovery), err)
		})
	}

	t.Run("deposits are not signed", func(t *testing.T) {
		s := ss.Unsigned()
		s.Deposits[0].Add(s.Deposits[0], big.NewInt(1))
		require.NoError(t, signer.Verify(channel.SignedState{State: s, Sig: ss.Sig}, acc.Address()))
	})
}

// A payer signs a conditional payment and the payee checks the signature
// against the payer's address before accepting it.
func TestSignedConditionalPayment(t *testing.T) {
	rng := pkgtest.Prng(t)
	_, accs := wtest.NewRandomAccounts(rng, 2)
	signer := channel.NewSigner()

	preimage, err := channel.GeneratePreimage(rng)
	require.NoError(t, err)
	s := channel.NewInitialState(big.NewInt(3)).WithDeposits(big.NewInt(10), big.NewInt(5))
	next := s.ConditionalPayment(big.NewInt(4), accs[1].Address(), big.NewInt(20), preimage)
	require.NoError(t, s.Validate(next, channel.Open))

	ss, err := signer.Sign(next, accs[0])
	require.NoError(t, err)
	require.NoError(t, signer.Verify(ss, accs[0].Address()))
	require.ErrorIs(t, signer.Verify(ss, accs[1].Address()), channel.ErrBadSignature)

	u := ss.Update()
	assert.Equal(t, ss.Sig, u.Sig)
	assert.Equal(t, 0, u.Message.Round.Cmp(big.NewInt(0)))
	assert.Equal(t, accs[1].Address(), u.Message.Recipient)
	assert.True(t, ss.Payment.Matches(preimage))
}

// Two different states signed by the same key have different digests, and
// neither signature verifies for the other state.
func TestDistinctStatesDistinctSignatures(t *testing.T) {
	rng := pkgtest.Prng(t)
	acc := wtest.NewRandomAccount(rng)
	signer := channel.NewSigner()

	a := channel.NewInitialState(big.NewInt(1)).WithDeposits(big.NewInt(5), big.NewInt(0))
	b := a.NextRound()
	ha, err := signer.Hash(a)
	require.NoError(t, err)
	hb, err := signer.Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	sa, err := signer.Sign(a, acc)
	require.NoError(t, err)
	sb, err := signer.Sign(b, acc)
	require.NoError(t, err)
	assert.NotEqual(t, sa.Sig, sb.Sig)

	require.ErrorIs(t, signer.Verify(channel.SignedState{State: b, Sig: sa.Sig}, acc.Address()), channel.ErrBadSignature)
	require.ErrorIs(t, signer.Verify(channel.SignedState{State: a, Sig: sb.Sig}, acc.Address()), channel.ErrBadSignature)
}

func TestVerifyMalformedSignature(t *testing.T) {
	rng := pkgtest.Prng(t)
	acc := wtest.NewRandomAccount(rng)
	signer := channel.NewSigner()
	ss, err := signer.Sign(chtest.NewRandomState(rng), acc)
	require.NoError(t, err)

	ss.Sig.V = 5
	require.ErrorIs(t, signer.Verify(ss, acc.Address()), wallet.ErrSignatureRecovery)

	ss.Sig.V = 27
	ss.Sig.R = common.Hash{}
	require.ErrorIs(t, signer.Verify(ss, acc.Address()), wallet.ErrSignatureRecovery)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
