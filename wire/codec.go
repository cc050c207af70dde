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
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// WordSize is the size of a packed field.
const WordSize = 32

// numFields is the number of words in a packed message.
const numFields = 10

// PackedLength is the length of a packed message.
const PackedLength = numFields * WordSize

// ErrEncoding is matched by every EncodingError.
var ErrEncoding = errors.New("encoding error")

var (
	// maxInt is 2^255, the largest magnitude accepted for packed integers.
	// It packs to the same word as -2^255 and unpacks as -2^255.
	maxInt = new(big.Int).Lsh(big.NewInt(1), 255)
	minInt = new(big.Int).Neg(maxInt)

	messageArgs = mustArguments(
		"uint256", // channel id
		"int256", "int256", // credits
		"int256", "int256", // withdrawals
		"int256",  // round
		"bytes32", // preimage hash
		"address", // recipient
		"int256",  // amount
		"int256",  // expiry
	)
)

// EncodingError is returned when a field cannot be represented as a 32-byte
// word.
type EncodingError struct {
	Field string
	Value *big.Int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("field %s out of range: %v", e.Field, e.Value)
}

// Is makes every EncodingError match ErrEncoding.
func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// Codec packs messages the way the arbitration contract hashes them.
type Codec struct{}

// Pack concatenates the fields of msg as 32-byte big-endian words in the order
// channel id, credits, withdrawals, round, preimage hash, recipient, amount,
// expiry. Nil integers are packed as zero. The channel id must not be
// negative.
func (Codec) Pack(msg Message) ([]byte, error) {
	m := msg.Clone()
	ints := []struct {
		name string
		v    *big.Int
	}{
		{"channelID", m.ChannelID},
		{"credits[0]", m.Credits[0]},
		{"credits[1]", m.Credits[1]},
		{"withdrawals[0]", m.Withdrawals[0]},
		{"withdrawals[1]", m.Withdrawals[1]},
		{"round", m.Round},
		{"amount", m.Amount},
		{"expiry", m.Expiry},
	}
	for _, f := range ints {
		if f.v.Cmp(minInt) < 0 || f.v.Cmp(maxInt) > 0 {
			return nil, &EncodingError{Field: f.name, Value: f.v}
		}
	}
	// the id is a uint256 word
	if m.ChannelID.Sign() < 0 {
		return nil, &EncodingError{Field: "channelID", Value: m.ChannelID}
	}

	packed, err := messageArgs.Pack(
		m.ChannelID,
		m.Credits[0], m.Credits[1],
		m.Withdrawals[0], m.Withdrawals[1],
		m.Round,
		[32]byte(m.PreimageHash),
		m.Recipient,
		m.Amount,
		m.Expiry,
	)
	if err != nil {
		return nil, fmt.Errorf("packing message: %w", err)
	}
	return packed, nil
}

// Unpack decodes a message produced by Pack. The channel id is read as an
// unsigned integer, every other integer as two's complement.
func (Codec) Unpack(data []byte) (Message, error) {
	if len(data) != PackedLength {
		return Message{}, fmt.Errorf("packed message has length %d, expected %d", len(data), PackedLength)
	}
	vals, err := messageArgs.Unpack(data)
	if err != nil {
		return Message{}, fmt.Errorf("unpacking message: %w", err)
	}
	if len(vals) != numFields {
		return Message{}, fmt.Errorf("unpacked %d fields, expected %d", len(vals), numFields)
	}

	ints := make([]*big.Int, 0, 8)
	for _, i := range []int{0, 1, 2, 3, 4, 5, 8, 9} {
		v, ok := vals[i].(*big.Int)
		if !ok {
			return Message{}, fmt.Errorf("field %d has type %T", i, vals[i])
		}
		ints = append(ints, v)
	}
	hash, ok := vals[6].([32]byte)
	if !ok {
		return Message{}, fmt.Errorf("preimage hash has type %T", vals[6])
	}
	recipient, ok := vals[7].(common.Address)
	if !ok {
		return Message{}, fmt.Errorf("recipient has type %T", vals[7])
	}

	return Message{
		ChannelID:    ints[0],
		Credits:      [2]*big.Int{ints[1], ints[2]},
		Withdrawals:  [2]*big.Int{ints[3], ints[4]},
		Round:        ints[5],
		PreimageHash: common.Hash(hash),
		Recipient:    recipient,
		Amount:       ints[6],
		Expiry:       ints[7],
	}, nil
}

// MessageHash returns the Ethereum signed-message digest of the packed
// message, keccak256("\x19Ethereum Signed Message:\n" || len || packed).
func (c Codec) MessageHash(msg Message) (common.Hash, error) {
	packed, err := c.Pack(msg)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(accounts.TextHash(packed)), nil
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, ts := range types {
		t, err := abi.NewType(ts, "", nil)
		if err != nil {
			panic(fmt.Sprintf("creating abi type %s: %v", ts, err))
		}
		args[i] = abi.Argument{Type: t}
	}
	return args
}
