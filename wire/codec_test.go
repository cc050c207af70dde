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

package wire_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-sprites-backend/wire"
)

func newMessage() wire.Message {
	return wire.Message{
		ChannelID:    big.NewInt(7),
		Credits:      [2]*big.Int{big.NewInt(-5), big.NewInt(5)},
		Withdrawals:  [2]*big.Int{big.NewInt(1), big.NewInt(0)},
		Round:        big.NewInt(3),
		PreimageHash: crypto.Keccak256Hash([]byte("secret")),
		Recipient:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Amount:       big.NewInt(4),
		Expiry:       big.NewInt(100),
	}
}

func word(x int64) []byte {
	b := make([]byte, wire.WordSize)
	if x < 0 {
		for i := range b {
			b[i] = 0xff
		}
	}
	v := big.NewInt(x)
	if x < 0 {
		v.Add(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	vb := v.Bytes()
	copy(b[wire.WordSize-len(vb):], vb)
	return b
}

func TestCodecPackLayout(t *testing.T) {
	msg := newMessage()
	packed, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)
	require.Len(t, packed, wire.PackedLength)

	expected := bytes.Join([][]byte{
		word(7),
		word(-5), word(5),
		word(1), word(0),
		word(3),
		msg.PreimageHash.Bytes(),
		common.LeftPadBytes(msg.Recipient.Bytes(), wire.WordSize),
		word(4),
		word(100),
	}, nil)
	require.Equal(t, expected, packed)
}

func TestCodecNilIsZero(t *testing.T) {
	packed, err := wire.Codec{}.Pack(wire.Message{})
	require.NoError(t, err)
	require.Equal(t, make([]byte, wire.PackedLength), packed)
}

func TestCodecRange(t *testing.T) {
	limit := new(big.Int).Lsh(big.NewInt(1), 255)

	msg := newMessage()
	msg.Amount = new(big.Int).Set(limit)
	_, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)

	msg.Amount = new(big.Int).Neg(limit)
	_, err = wire.Codec{}.Pack(msg)
	require.NoError(t, err)

	msg.Amount = new(big.Int).Add(limit, big.NewInt(1))
	_, err = wire.Codec{}.Pack(msg)
	require.ErrorIs(t, err, wire.ErrEncoding)
	var encErr *wire.EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "amount", encErr.Field)

	msg = newMessage()
	msg.Round = new(big.Int).Sub(new(big.Int).Neg(limit), big.NewInt(1))
	_, err = wire.Codec{}.MessageHash(msg)
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func TestCodecNegativeChannelID(t *testing.T) {
	msg := newMessage()
	msg.ChannelID = big.NewInt(-1)
	_, err := wire.Codec{}.Pack(msg)
	require.ErrorIs(t, err, wire.ErrEncoding)
	var encErr *wire.EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "channelID", encErr.Field)

	_, err = wire.Update{Message: msg}.MarshalBinary()
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func TestCodecUpperBoundAliases(t *testing.T) {
	limit := new(big.Int).Lsh(big.NewInt(1), 255)
	msg := newMessage()
	msg.Amount = new(big.Int).Set(limit)
	high, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)

	msg.Amount = new(big.Int).Neg(limit)
	low, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)
	require.Equal(t, low, high)

	res, err := wire.Codec{}.Unpack(high)
	require.NoError(t, err)
	require.Equal(t, 0, res.Amount.Cmp(new(big.Int).Neg(limit)))
}

func TestCodecUnpack(t *testing.T) {
	msg := newMessage()
	packed, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)

	res, err := wire.Codec{}.Unpack(packed)
	require.NoError(t, err)
	require.Equal(t, packed, mustPack(t, res))
	require.Equal(t, 0, res.Credits[0].Cmp(big.NewInt(-5)))

	_, err = wire.Codec{}.Unpack(packed[1:])
	require.Error(t, err)
}

func TestMessageHash(t *testing.T) {
	msg := newMessage()
	h1, err := wire.Codec{}.MessageHash(msg)
	require.NoError(t, err)
	h2, err := wire.Codec{}.MessageHash(msg.Clone())
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	prefixed := append([]byte("\x19Ethereum Signed Message:\n320"), mustPack(t, msg)...)
	require.Equal(t, crypto.Keccak256Hash(prefixed), h1)

	msg.Round = big.NewInt(4)
	h3, err := wire.Codec{}.MessageHash(msg)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestUpdateBinary(t *testing.T) {
	rng := pkgtest.Prng(t)
	u := wire.Update{Message: newMessage()}
	u.Sig.V = 27 + uint8(rng.Intn(2))
	rng.Read(u.Sig.R[:])
	rng.Read(u.Sig.S[:])

	data, err := u.MarshalBinary()
	require.NoError(t, err)

	var res wire.Update
	require.NoError(t, res.UnmarshalBinary(data))
	require.Equal(t, u.Sig, res.Sig)
	require.Equal(t, mustPack(t, u.Message), mustPack(t, res.Message))

	// V is the last byte of the signature, followed by three bytes of padding.
	data[len(data)-4] = 0
	require.Error(t, res.UnmarshalBinary(data))
}

func TestSigBytes(t *testing.T) {
	rng := pkgtest.Prng(t)
	var s wire.Sig
	rng.Read(s.R[:])
	rng.Read(s.S[:])
	s.V = 28

	b := s.Bytes()
	require.Len(t, b, wire.SigLength)
	require.Equal(t, uint8(28), b[64])
	res, err := wire.SigFromBytes(b)
	require.NoError(t, err)
	require.Equal(t, s, res)

	_, err = wire.SigFromBytes(b[:64])
	require.Error(t, err)
}

func TestStateView(t *testing.T) {
	s := wire.State{Message: newMessage(), Deposits: [2]*big.Int{big.NewInt(10), big.NewInt(20)}}
	m := s.View(wire.Right)
	require.Equal(t, int64(20), m.Deposits[0].Int64())
	require.Equal(t, int64(5), m.Credits[0].Int64())
	require.Equal(t, int64(0), m.Withdrawals[0].Int64())

	l := s.View(wire.Left)
	l.Deposits[0].SetInt64(99)
	require.Equal(t, int64(10), s.Deposits[0].Int64())
}

func TestSide(t *testing.T) {
	require.Equal(t, wire.Right, wire.Left.Other())
	require.Equal(t, wire.Left, wire.Right.Other())
	require.True(t, wire.Right.Valid())
	require.False(t, wire.Side(2).Valid())
	require.Equal(t, "pending", wire.StatusPending.String())
}

func mustPack(t *testing.T, msg wire.Message) []byte {
	t.Helper()
	b, err := wire.Codec{}.Pack(msg)
	require.NoError(t, err)
	return b
}
