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
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PreimageLength is the size of a hash-lock secret.
const PreimageLength = 32

// Preimage is the secret unlocking a conditional payment.
type Preimage = [PreimageLength]byte

// Payment is the transfer in flight in a channel. The zero value is the
// inactive payment.
type Payment struct {
	PreimageHash common.Hash
	Recipient    common.Address
	Amount       *big.Int
	Expiry       *big.Int
	Command      Command
}

// MakePayment builds a payment of amount to recipient, locked on the keccak256
// hash of preimage until block height expiry. Nothing is validated.
func MakePayment(amount *big.Int, recipient common.Address, expiry *big.Int, preimage Preimage) Payment {
	return Payment{
		PreimageHash: crypto.Keccak256Hash(preimage[:]),
		Recipient:    recipient,
		Amount:       copyInt(amount),
		Expiry:       copyInt(expiry),
	}
}

// GeneratePreimage draws a new secret from rng.
func GeneratePreimage(rng io.Reader) (Preimage, error) {
	var p Preimage
	_, err := io.ReadFull(rng, p[:])
	return p, err
}

// Active reports whether an amount is in flight.
func (p Payment) Active() bool {
	return p.Amount != nil && p.Amount.Sign() != 0
}

// Matches reports whether preimage unlocks p.
func (p Payment) Matches(preimage Preimage) bool {
	return crypto.Keccak256Hash(preimage[:]) == p.PreimageHash
}

// Clone returns a deep copy of p.
func (p Payment) Clone() Payment {
	c := p
	c.Amount = copyInt(p.Amount)
	c.Expiry = copyInt(p.Expiry)
	return c
}

// Equal compares the packed fields of p and q. The command is ignored.
func (p Payment) Equal(q Payment) bool {
	return p.PreimageHash == q.PreimageHash &&
		p.Recipient == q.Recipient &&
		copyInt(p.Amount).Cmp(copyInt(q.Amount)) == 0 &&
		copyInt(p.Expiry).Cmp(copyInt(q.Expiry)) == 0
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
