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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-sprites-backend/wallet"
	"perun.network/perun-sprites-backend/wire"
)

// ErrBadSignature is returned when a signature recovers to an unexpected
// signer.
var ErrBadSignature = errors.New("bad signature")

// SignedState is a state together with a signature over its message.
type SignedState struct {
	State
	Sig wire.Sig
}

// Unsigned returns a copy of the plain state.
func (ss SignedState) Unsigned() State {
	return ss.State.Clone()
}

// Update returns the ledger representation of ss.
func (ss SignedState) Update() wire.Update {
	return wire.Update{Message: ss.State.Message(), Sig: ss.Sig}
}

// Signer signs and verifies states. It holds no key material and is safe for
// concurrent use.
type Signer struct {
	codec wire.Codec
}

// NewSigner returns a Signer using the ledger's message encoding.
func NewSigner() *Signer {
	return &Signer{codec: wire.Codec{}}
}

// Hash returns the digest that is signed for s.
func (sg *Signer) Hash(s State) (common.Hash, error) {
	return sg.codec.MessageHash(s.Message())
}

// Sign signs a copy of s with acc.
func (sg *Signer) Sign(s State, acc *wallet.Account) (SignedState, error) {
	c := s.Clone()
	h, err := sg.Hash(c)
	if err != nil {
		return SignedState{}, err
	}
	sig, err := acc.SignHash(h)
	if err != nil {
		return SignedState{}, fmt.Errorf("signing state: %w", err)
	}
	return SignedState{State: c, Sig: sig}, nil
}

// RecoverSigner returns the address that signed ss. It fails with
// wallet.ErrSignatureRecovery on malformed signatures only.
func (sg *Signer) RecoverSigner(ss SignedState) (common.Address, error) {
	h, err := sg.Hash(ss.State)
	if err != nil {
		return common.Address{}, err
	}
	return wallet.RecoverAddress(h, ss.Sig)
}

// Verify fails with ErrBadSignature iff ss was not signed by expected.
func (sg *Signer) Verify(ss SignedState, expected common.Address) error {
	signer, err := sg.RecoverSigner(ss)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: recovered %v, expected %v", ErrBadSignature, signer, expected)
	}
	return nil
}
