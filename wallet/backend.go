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

package wallet

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"perun.network/perun-sprites-backend/wire"
)

// ErrSignatureRecovery is returned when no public key can be recovered from a
// signature.
var ErrSignatureRecovery = errors.New("signature recovery failed")

// RecoverAddress returns the address that produced sig over hash. It fails
// with ErrSignatureRecovery on malformed signature material only; a valid
// signature by a different key recovers to that key's address. High-S
// signatures are accepted like the ledger's ecrecover does.
func RecoverAddress(hash common.Hash, sig wire.Sig) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("%w: invalid v %d", ErrSignatureRecovery, sig.V)
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(sig.V-27, r, s, false) {
		return common.Address{}, fmt.Errorf("%w: invalid signature values", ErrSignatureRecovery)
	}

	raw := sig.Bytes()
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignatureRecovery, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether sig over hash was produced by addr.
func VerifySignature(hash common.Hash, sig wire.Sig, addr common.Address) (bool, error) {
	signer, err := RecoverAddress(hash, sig)
	if err != nil {
		return false, err
	}
	return signer == addr, nil
}
