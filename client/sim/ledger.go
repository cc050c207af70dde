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

// Package sim provides an in-memory ledger that enforces the arbitration
// rules of the sprites contract and its preimage registry. Every transaction
// is included in a block of its own.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lightningnetwork/lnd/ticker"
	"perun.network/go-perun/log"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/wallet"
	"perun.network/perun-sprites-backend/wire"
)

// DefaultDelta is the number of blocks between trigger and deadline.
const DefaultDelta = 2

// Rejection reasons reported in failed receipts.
const (
	ReasonNotAPlayer        = "sender is not a player of the channel"
	ReasonUnknownChannel    = "unknown channel"
	ReasonNotOpen           = "channel is not open"
	ReasonNotPending        = "channel is not pending"
	ReasonFinalized         = "channel is finalized"
	ReasonDeadlineNotPassed = "deadline has not passed"
	ReasonWrongChannel      = "state belongs to another channel"
	ReasonBadSignature      = "state is not signed by the counterparty"
	ReasonRoundNotAdvanced  = "round must be larger than the best round"
	ReasonOverdraw          = "withdrawals exceed deposits plus credits"
	ReasonNotConserved      = "credits and amount do not sum to zero"
	ReasonBadPayment        = "invalid payment"
	ReasonBadAmount         = "amount must be positive"
	ReasonBadPreimage       = "preimage must be 32 bytes"
)

type channelRecord struct {
	players   [2]common.Address
	deposits  [2]*big.Int
	best      wire.Message
	status    wire.Status
	deadline  *big.Int
	withdrawn [2]*big.Int
	finalized [2]*big.Int // payouts fixed by finalize
}

type pendingReceipt struct {
	receipt *client.Receipt
	delay   int
}

// Ledger is a simulated chain hosting sprites channels.
type Ledger struct {
	mu           sync.Mutex
	delta        int64
	height       int64
	nonce        uint64
	channels     []*channelRecord
	preimages    map[common.Hash]int64
	receipts     map[common.Hash]*pendingReceipt
	receiptDelay int
	balances     map[common.Address]*big.Int
	codec        wire.Codec
	log          log.Embedding
}

// New creates an empty simulated ledger with the given dispute period in
// blocks.
func New(delta int64) *Ledger {
	return &Ledger{
		delta:     delta,
		preimages: make(map[common.Hash]int64),
		receipts:  make(map[common.Hash]*pendingReceipt),
		balances:  make(map[common.Address]*big.Int),
		log:       log.MakeEmbedding(log.Default()),
	}
}

// Delta returns the dispute period in blocks.
func (l *Ledger) Delta() int64 {
	return l.delta
}

// OpenChannel creates a channel between left and right and returns its id.
func (l *Ledger) OpenChannel(left, right common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := big.NewInt(int64(len(l.channels)))
	l.channels = append(l.channels, &channelRecord{
		players:   [2]common.Address{left, right},
		deposits:  [2]*big.Int{new(big.Int), new(big.Int)},
		best:      initialMessage(id),
		status:    wire.StatusOpen,
		deadline:  new(big.Int),
		withdrawn: [2]*big.Int{new(big.Int), new(big.Int)},
	})
	l.mine(1)
	l.log.Log().Infof("Opened channel %v between %v and %v", id, left, right)
	return id
}

// Mine appends n empty blocks.
func (l *Ledger) Mine(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mine(n)
}

func (l *Ledger) mine(n int) {
	l.height += int64(n)
}

// AutoMine mines a block every interval until ctx is done.
func (l *Ledger) AutoMine(ctx context.Context, interval time.Duration) {
	l.autoMine(ctx, ticker.New(interval))
}

func (l *Ledger) autoMine(ctx context.Context, t ticker.Ticker) {
	t.Resume()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Ticks():
			l.Mine(1)
		}
	}
}

// Height returns the current block height.
func (l *Ledger) Height() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return big.NewInt(l.height)
}

// Balance returns the funds paid out to addr minus the funds it deposited.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(addr))
}

func (l *Ledger) balance(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}

// SetReceiptDelay makes each new receipt invisible for the first n lookups.
func (l *Ledger) SetReceiptDelay(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receiptDelay = n
}

// As returns a client.Ledger transacting as addr.
func (l *Ledger) As(addr common.Address) client.Ledger {
	return &account{sim: l, from: addr, policy: client.RetryPolicy{Attempts: client.DefaultReceiptAttempts}}
}

func (l *Ledger) channel(id *big.Int) (*channelRecord, error) {
	if id == nil || !id.IsInt64() || id.Sign() < 0 || id.Int64() >= int64(len(l.channels)) {
		return nil, fmt.Errorf("%w: %v", client.ErrUnknownChannel, id)
	}
	return l.channels[id.Int64()], nil
}

func (c *channelRecord) side(addr common.Address) (wire.Side, bool) {
	switch addr {
	case c.players[wire.Left]:
		return wire.Left, true
	case c.players[wire.Right]:
		return wire.Right, true
	}
	return 0, false
}

// entitlement is the total amount side may withdraw.
func (c *channelRecord) entitlement(side wire.Side) *big.Int {
	if c.status == wire.StatusFinalized {
		return c.finalized[side]
	}
	return c.best.Withdrawals[side]
}

// execute runs fn as a transaction by from in a new block and stores its
// receipt. fn returns a rejection reason or the empty string.
func (l *Ledger) execute(method string, from common.Address, fn func(block int64) string) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce)
	hash := crypto.Keccak256Hash([]byte(method), from.Bytes(), n[:])

	l.mine(1)
	r := &client.Receipt{TxHash: hash, BlockNumber: uint64(l.height), Status: client.ReceiptStatusSuccessful}
	if reason := fn(l.height); reason != "" {
		r.Status = client.ReceiptStatusFailed
		r.Reason = reason
		l.log.Log().Debugf("%s by %v rejected: %s", method, from, reason)
	}
	l.receipts[hash] = &pendingReceipt{receipt: r, delay: l.receiptDelay}
	return hash
}

func (l *Ledger) receipt(hash common.Hash) (*client.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.receipts[hash]
	if !ok || p.delay > 0 {
		if ok {
			p.delay--
		}
		return nil, client.ErrReceiptNotFound
	}
	r := *p.receipt
	return &r, nil
}

func (l *Ledger) deposit(from common.Address, id, amount *big.Int) common.Hash {
	return l.execute("deposit", from, func(int64) string {
		c, side, reason := l.playerChannel(from, id)
		if reason != "" {
			return reason
		}
		if c.status != wire.StatusOpen {
			return ReasonNotOpen
		}
		if amount == nil || amount.Sign() <= 0 {
			return ReasonBadAmount
		}
		c.deposits[side].Add(c.deposits[side], amount)
		l.balance(from).Sub(l.balance(from), amount)
		return ""
	})
}

func (l *Ledger) trigger(from common.Address, id *big.Int) common.Hash {
	return l.execute("trigger", from, func(block int64) string {
		c, _, reason := l.playerChannel(from, id)
		if reason != "" {
			return reason
		}
		if c.status != wire.StatusOpen {
			return ReasonNotOpen
		}
		c.status = wire.StatusPending
		c.deadline = big.NewInt(block + l.delta)
		return ""
	})
}

func (l *Ledger) update(from common.Address, id *big.Int, u wire.Update) common.Hash {
	return l.execute("update", from, func(int64) string {
		c, side, reason := l.playerChannel(from, id)
		if reason != "" {
			return reason
		}
		if c.status == wire.StatusFinalized {
			return ReasonFinalized
		}
		msg := u.Message.Clone()
		if msg.ChannelID.Cmp(id) != 0 {
			return ReasonWrongChannel
		}
		hash, err := l.codec.MessageHash(msg)
		if err != nil {
			return err.Error()
		}
		signer, err := wallet.RecoverAddress(hash, u.Sig)
		if err != nil || signer != c.players[side.Other()] {
			return ReasonBadSignature
		}
		if msg.Round.Cmp(c.best.Round) <= 0 {
			return ReasonRoundNotAdvanced
		}
		if reason := c.checkMessage(msg); reason != "" {
			return reason
		}
		c.best = msg
		return ""
	})
}

func (c *channelRecord) checkMessage(msg wire.Message) string {
	for i := range c.players {
		if msg.Withdrawals[i].Sign() < 0 {
			return ReasonOverdraw
		}
		limit := new(big.Int).Add(c.deposits[i], msg.Credits[i])
		if msg.Withdrawals[i].Cmp(limit) > 0 {
			return ReasonOverdraw
		}
	}
	if msg.Amount.Sign() < 0 {
		return ReasonBadPayment
	}
	if msg.Amount.Sign() > 0 {
		if _, ok := c.side(msg.Recipient); !ok {
			return ReasonBadPayment
		}
	}
	sum := new(big.Int).Add(msg.Credits[0], msg.Credits[1])
	if sum.Add(sum, msg.Amount).Sign() != 0 {
		return ReasonNotConserved
	}
	return ""
}

func (l *Ledger) finalize(from common.Address, id *big.Int) common.Hash {
	return l.execute("finalize", from, func(block int64) string {
		c, _, reason := l.playerChannel(from, id)
		if reason != "" {
			return reason
		}
		if c.status != wire.StatusPending {
			return ReasonNotPending
		}
		// The finalizing transaction is included in block, the chain has seen
		// block-1 blocks before it.
		if big.NewInt(block-1).Cmp(c.deadline) < 0 {
			return ReasonDeadlineNotPassed
		}
		l.settle(c)
		return ""
	})
}

// settle folds the in-flight payment into the credits and fixes payouts.
func (l *Ledger) settle(c *channelRecord) {
	msg := c.best
	if msg.Amount.Sign() > 0 {
		recipient, _ := c.side(msg.Recipient)
		to := recipient.Other()
		if l.revealedBefore(msg.PreimageHash, msg.Expiry) {
			to = recipient
		}
		msg.Credits[to] = new(big.Int).Add(msg.Credits[to], msg.Amount)
		l.log.Log().Debugf("Payment of %v resolved to %v", msg.Amount, to)
	}
	msg.Amount = new(big.Int)
	msg.PreimageHash = common.Hash{}
	msg.Recipient = common.Address{}
	msg.Expiry = new(big.Int)
	for i := range c.players {
		payout := new(big.Int).Add(c.deposits[i], msg.Credits[i])
		msg.Withdrawals[i] = payout
		c.finalized[i] = new(big.Int).Set(payout)
	}
	c.best = msg
	c.status = wire.StatusFinalized
}

func (l *Ledger) withdraw(from common.Address, id *big.Int) common.Hash {
	return l.execute("withdraw", from, func(int64) string {
		c, side, reason := l.playerChannel(from, id)
		if reason != "" {
			return reason
		}
		due := new(big.Int).Sub(c.entitlement(side), c.withdrawn[side])
		if due.Sign() <= 0 {
			return ""
		}
		c.withdrawn[side].Add(c.withdrawn[side], due)
		l.balance(from).Add(l.balance(from), due)
		return ""
	})
}

func (l *Ledger) submitPreimage(from common.Address, preimage []byte) common.Hash {
	return l.execute("submitPreimage", from, func(block int64) string {
		if len(preimage) != 32 {
			return ReasonBadPreimage
		}
		h := crypto.Keccak256Hash(preimage)
		if _, ok := l.preimages[h]; !ok {
			l.preimages[h] = block
		}
		return ""
	})
}

func (l *Ledger) revealedBefore(hash common.Hash, height *big.Int) bool {
	at, ok := l.preimages[hash]
	return ok && height != nil && big.NewInt(at).Cmp(height) <= 0
}

func (l *Ledger) playerChannel(from common.Address, id *big.Int) (*channelRecord, wire.Side, string) {
	c, err := l.channel(id)
	if err != nil {
		return nil, 0, ReasonUnknownChannel
	}
	side, ok := c.side(from)
	if !ok {
		return nil, 0, ReasonNotAPlayer
	}
	return c, side, ""
}

func (l *Ledger) view(id *big.Int, fn func(c *channelRecord) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.channel(id)
	if err != nil {
		return err
	}
	return fn(c)
}

func checkSide(side wire.Side) error {
	if !side.Valid() {
		return errors.New("invalid side")
	}
	return nil
}

func initialMessage(id *big.Int) wire.Message {
	return wire.Message{ChannelID: new(big.Int).Set(id), Round: big.NewInt(-1)}.Clone()
}
