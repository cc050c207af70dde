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

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	xdr3 "github.com/stellar/go-xdr/xdr3"
)

// SigLength is the length of a serialized recoverable signature R || S || V.
const SigLength = 65

// updateVersion tags the serialized form of an Update.
const updateVersion = 1

// Message holds the state fields covered by a signature, in the order in
// which they are packed.
type Message struct {
	ChannelID    *big.Int       `json:"channelID"`
	Credits      [2]*big.Int    `json:"credits"`
	Withdrawals  [2]*big.Int    `json:"withdrawals"`
	Round        *big.Int       `json:"round"`
	PreimageHash common.Hash    `json:"preimageHash"`
	Recipient    common.Address `json:"recipient"`
	Amount       *big.Int       `json:"amount"`
	Expiry       *big.Int       `json:"expiry"`
}

// State is the raw channel state as stored by the ledger. Deposits are kept
// by the ledger itself and are not part of the signed message.
type State struct {
	Message
	Deposits [2]*big.Int `json:"deposits"`
}

// Sig is a recoverable secp256k1 signature with V in {27, 28}.
type Sig struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// Update is a signed message as submitted to the ledger.
type Update struct {
	Message
	Sig Sig `json:"sig"`
}

// Bytes returns the signature as R || S || V.
func (s Sig) Bytes() []byte {
	b := make([]byte, SigLength)
	copy(b[:32], s.R[:])
	copy(b[32:64], s.S[:])
	b[64] = s.V
	return b
}

// SigFromBytes parses a signature in R || S || V layout.
func SigFromBytes(b []byte) (Sig, error) {
	if len(b) != SigLength {
		return Sig{}, fmt.Errorf("invalid signature length: %d", len(b))
	}
	var s Sig
	copy(s.R[:], b[:32])
	copy(s.S[:], b[32:64])
	s.V = b[64]
	return s, nil
}

// Clone returns a deep copy of m. Nil integers are replaced by zero.
func (m Message) Clone() Message {
	return Message{
		ChannelID:    cloneInt(m.ChannelID),
		Credits:      clonePair(m.Credits),
		Withdrawals:  clonePair(m.Withdrawals),
		Round:        cloneInt(m.Round),
		PreimageHash: m.PreimageHash,
		Recipient:    m.Recipient,
		Amount:       cloneInt(m.Amount),
		Expiry:       cloneInt(m.Expiry),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return State{Message: s.Message.Clone(), Deposits: clonePair(s.Deposits)}
}

// Mirror returns a copy of s with the per-side arrays swapped.
func (s State) Mirror() State {
	c := s.Clone()
	c.Deposits[0], c.Deposits[1] = c.Deposits[1], c.Deposits[0]
	c.Credits[0], c.Credits[1] = c.Credits[1], c.Credits[0]
	c.Withdrawals[0], c.Withdrawals[1] = c.Withdrawals[1], c.Withdrawals[0]
	return c
}

// View returns s as seen from side, that is with side's entries first.
func (s State) View(side Side) State {
	if side == Right {
		return s.Mirror()
	}
	return s.Clone()
}

type xdrUpdate struct {
	Version uint32
	Packed  []byte
	Sig     [SigLength]byte
}

// MarshalBinary encodes the update as XDR. The message is carried in its
// packed form.
func (u Update) MarshalBinary() ([]byte, error) {
	packed, err := Codec{}.Pack(u.Message)
	if err != nil {
		return nil, err
	}
	x := xdrUpdate{Version: updateVersion, Packed: packed}
	copy(x.Sig[:], u.Sig.Bytes())

	buf := bytes.Buffer{}
	if _, err := xdr3.Marshal(&buf, x); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an update produced by MarshalBinary.
func (u *Update) UnmarshalBinary(data []byte) error {
	var x xdrUpdate
	if _, err := xdr3.Unmarshal(bytes.NewReader(data), &x); err != nil {
		return err
	}
	if x.Version != updateVersion {
		return fmt.Errorf("unsupported update version %d", x.Version)
	}
	msg, err := Codec{}.Unpack(x.Packed)
	if err != nil {
		return err
	}
	sig, err := SigFromBytes(x.Sig[:])
	if err != nil {
		return err
	}
	if sig.V != 27 && sig.V != 28 {
		return errors.New("invalid signature recovery id")
	}
	u.Message = msg
	u.Sig = sig
	return nil
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func clonePair(p [2]*big.Int) [2]*big.Int {
	return [2]*big.Int{cloneInt(p[0]), cloneInt(p[1])}
}
