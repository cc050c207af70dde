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
	"crypto/ecdsa"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"perun.network/perun-sprites-backend/wire"
)

// Account holds a secp256k1 key used to sign channel states and to transact
// on the ledger.
type Account struct {
	privateKey *ecdsa.PrivateKey
}

// NewAccount wraps the given private key.
func NewAccount(key *ecdsa.PrivateKey) (*Account, error) {
	if key == nil {
		return nil, errors.New("nil private key")
	}
	return &Account{privateKey: key}, nil
}

// NewRandomAccount creates a new account with a private key drawn from rng.
func NewRandomAccount(rng io.Reader) (*Account, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rng)
	if err != nil {
		return nil, err
	}
	return &Account{privateKey: key}, nil
}

// AccountFromHex parses a hex encoded private key, without 0x prefix.
func AccountFromHex(hexkey string) (*Account, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, err
	}
	return &Account{privateKey: key}, nil
}

// Address returns the ledger address of the account.
func (a Account) Address() common.Address {
	return crypto.PubkeyToAddress(a.privateKey.PublicKey)
}

// SignHash signs the given digest. The recovery id of the returned signature
// is offset by 27.
func (a Account) SignHash(hash common.Hash) (wire.Sig, error) {
	sig, err := crypto.Sign(hash.Bytes(), a.privateKey)
	if err != nil {
		return wire.Sig{}, err
	}
	var s wire.Sig
	copy(s.R[:], sig[:32])
	copy(s.S[:], sig[32:64])
	s.V = sig[64] + 27
	return s, nil
}
