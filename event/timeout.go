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

package event

import (
	"context"
	"math/big"
	"time"

	pchannel "perun.network/go-perun/channel"
)

// DefaultTimeoutPollInterval default value for the PollInterval of a Timeout.
const DefaultTimeoutPollInterval = 1 * time.Second

// HeightReader reports the current block height of a ledger.
type HeightReader interface {
	BlockHeight(ctx context.Context) (*big.Int, error)
}

// BlockTimeout is a Timeout that elapses once the ledger has reached a given
// block height.
type BlockTimeout struct {
	Height       HeightReader
	Deadline     *big.Int
	PollInterval time.Duration
}

var _ pchannel.Timeout = (*BlockTimeout)(nil)

// NewBlockTimeout returns a timeout which expires at block height deadline.
func NewBlockTimeout(h HeightReader, deadline *big.Int) *BlockTimeout {
	return &BlockTimeout{
		Height:       h,
		Deadline:     new(big.Int).Set(deadline),
		PollInterval: DefaultTimeoutPollInterval,
	}
}

// IsElapsed reports whether the current height is at least the deadline.
// Errors reading the height count as not elapsed.
func (t *BlockTimeout) IsElapsed(ctx context.Context) bool {
	h, err := t.Height.BlockHeight(ctx)
	if err != nil {
		return false
	}
	return h.Cmp(t.Deadline) >= 0
}

// Wait polls the ledger until the deadline is reached or ctx is done.
func (t *BlockTimeout) Wait(ctx context.Context) error {
	for {
		h, err := t.Height.BlockHeight(ctx)
		if err != nil {
			return err
		}
		if h.Cmp(t.Deadline) >= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.PollInterval):
		}
	}
}

