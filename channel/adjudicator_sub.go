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
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"

	"perun.network/perun-sprites-backend/client"
	"perun.network/perun-sprites-backend/event"
	"perun.network/perun-sprites-backend/wire"
)

const (
	DefaultBufferSize                  = 1024
	DefaultSubscriptionPollingInterval = time.Duration(5) * time.Second
)

// AdjEventSub reports changes of a channel's ledger record as
// event.DisputeEvents. The ledger is polled on every tick.
type AdjEventSub struct {
	ledger   client.Ledger
	cid      *big.Int
	snapshot event.Snapshot
	events   chan event.DisputeEvent
	ticker   ticker.Ticker
	cancel   context.CancelFunc
	closer   *pkgsync.Closer
	log      log.Embedding

	mu  sync.Mutex
	err error
}

// NewAdjudicatorSub subscribes to channel cid, polling every
// DefaultSubscriptionPollingInterval.
func NewAdjudicatorSub(ctx context.Context, ledger client.Ledger, cid *big.Int) (*AdjEventSub, error) {
	return NewAdjudicatorSubWithTicker(ctx, ledger, cid, ticker.New(DefaultSubscriptionPollingInterval))
}

// NewAdjudicatorSubWithTicker subscribes to channel cid, polling on the ticks
// of t. The current record is read before returning and not reported.
func NewAdjudicatorSubWithTicker(ctx context.Context, ledger client.Ledger, cid *big.Int, t ticker.Ticker) (*AdjEventSub, error) {
	snap, err := readSnapshot(ctx, ledger, cid)
	if err != nil {
		return nil, err
	}
	sub := &AdjEventSub{
		ledger:   ledger,
		cid:      copyInt(cid),
		snapshot: snap,
		events:   make(chan event.DisputeEvent, DefaultBufferSize),
		ticker:   t,
		closer:   new(pkgsync.Closer),
		log:      log.MakeEmbedding(log.Default()),
	}

	ctx, sub.cancel = context.WithCancel(ctx)
	go sub.run(ctx)
	return sub, nil
}

func (s *AdjEventSub) run(ctx context.Context) {
	s.log.Log().Info("Listening for channel state changes")
	s.ticker.Resume()
	defer s.ticker.Stop()

	finish := func(err error) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	}

	for {
		select {
		case <-ctx.Done():
			finish(nil)
			return
		case <-s.ticker.Ticks():
			next, err := readSnapshot(ctx, s.ledger, s.cid)
			if err != nil {
				if ctx.Err() != nil {
					finish(nil)
				} else {
					finish(err)
				}
				return
			}
			evs, err := event.DifferencesInSnapshots(s.cid, s.snapshot, next)
			if err != nil {
				finish(err)
				return
			}
			s.snapshot = next
			if len(evs) == 0 {
				s.log.Log().Debug("No events yet, continuing polling...")
				continue
			}
			for _, ev := range evs {
				s.log.Log().Debugf("Found event: %v", ev.Type())
				select {
				case s.events <- ev:
				case <-ctx.Done():
					finish(nil)
					return
				}
			}
		}
	}
}

func readSnapshot(ctx context.Context, ledger client.Ledger, cid *big.Int) (event.Snapshot, error) {
	var snap event.Snapshot
	var err error
	if snap.Status, err = ledger.GetStatus(ctx, cid); err != nil {
		return snap, err
	}
	if snap.Deadline, err = ledger.GetDeadline(ctx, cid); err != nil {
		return snap, err
	}
	state, err := ledger.GetState(ctx, cid, wire.Left)
	if err != nil {
		return snap, err
	}
	snap.Round = state.Round
	for _, side := range []wire.Side{wire.Left, wire.Right} {
		if snap.Withdrawn[side], err = ledger.GetWithdrawn(ctx, cid, side); err != nil {
			return snap, err
		}
	}
	return snap, nil
}
