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
	"errors"
	"fmt"
	"math/big"

	"perun.network/perun-sprites-backend/wire"
)

// EventType identifies the kind of a DisputeEvent.
type EventType int

const (
	EventTypeTriggered EventType = iota // dispute raised, deadline set
	EventTypeUpdated                    // a newer signed state was accepted
	EventTypeFinalized                  // channel closed, withdrawing enabled
	EventTypeWithdrawn                  // a party has withdrawn funds
)

func (t EventType) String() string {
	switch t {
	case EventTypeTriggered:
		return "triggered"
	case EventTypeUpdated:
		return "updated"
	case EventTypeFinalized:
		return "finalized"
	case EventTypeWithdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

var (
	ErrStatusRegressed    = errors.New("channel status cannot go backwards")
	ErrRoundRegressed     = errors.New("channel round cannot decrease")
	ErrWithdrawnRegressed = errors.New("withdrawn amount cannot decrease")
	ErrDeadlineChanged    = errors.New("deadline cannot change once set")
)

// Snapshot is the part of the ledger's channel record that a dispute
// subscription observes.
type Snapshot struct {
	Status    wire.Status
	Deadline  *big.Int
	Round     *big.Int
	Withdrawn [2]*big.Int
}

type (
	// DisputeEvent is emitted when the ledger record of a channel changes.
	DisputeEvent interface {
		ID() *big.Int
		Type() EventType
		Snapshot() Snapshot
	}

	eventBase struct {
		idv      *big.Int
		snapshot Snapshot
	}

	TriggeredEvent struct {
		eventBase
	}

	UpdatedEvent struct {
		eventBase
	}

	FinalizedEvent struct {
		eventBase
	}

	WithdrawnEvent struct {
		eventBase
		Side   wire.Side
		Amount *big.Int
	}
)

func (e *eventBase) ID() *big.Int {
	return e.idv
}

func (e *eventBase) Snapshot() Snapshot {
	return e.snapshot
}

func (e *TriggeredEvent) Type() EventType { return EventTypeTriggered }

// Deadline is the block height after which the channel can be finalized.
func (e *TriggeredEvent) Deadline() *big.Int { return e.snapshot.Deadline }

func (e *UpdatedEvent) Type() EventType { return EventTypeUpdated }

// Round is the round of the state accepted by the ledger.
func (e *UpdatedEvent) Round() *big.Int { return e.snapshot.Round }

func (e *FinalizedEvent) Type() EventType { return EventTypeFinalized }

func (e *WithdrawnEvent) Type() EventType { return EventTypeWithdrawn }

// DifferencesInSnapshots returns the events explaining the transition from
// curr to next, in lifecycle order. Transitions the ledger can never make
// are reported as errors.
func DifferencesInSnapshots(id *big.Int, curr, next Snapshot) ([]DisputeEvent, error) {
	if next.Status < curr.Status {
		return nil, fmt.Errorf("%w: %v -> %v", ErrStatusRegressed, curr.Status, next.Status)
	}
	if cmp(next.Round, curr.Round) < 0 {
		return nil, fmt.Errorf("%w: %v -> %v", ErrRoundRegressed, curr.Round, next.Round)
	}
	if curr.Status != wire.StatusOpen && cmp(curr.Deadline, next.Deadline) != 0 {
		return nil, fmt.Errorf("%w: %v -> %v", ErrDeadlineChanged, curr.Deadline, next.Deadline)
	}

	base := eventBase{idv: id, snapshot: next}
	var evs []DisputeEvent
	if curr.Status == wire.StatusOpen && next.Status != wire.StatusOpen {
		evs = append(evs, &TriggeredEvent{base})
	}
	if cmp(next.Round, curr.Round) > 0 {
		evs = append(evs, &UpdatedEvent{base})
	}
	if curr.Status != wire.StatusFinalized && next.Status == wire.StatusFinalized {
		evs = append(evs, &FinalizedEvent{base})
	}
	for _, side := range []wire.Side{wire.Left, wire.Right} {
		d := cmp(next.Withdrawn[side], curr.Withdrawn[side])
		if d < 0 {
			return nil, fmt.Errorf("%w: %v", ErrWithdrawnRegressed, side)
		}
		if d > 0 {
			amount := new(big.Int).Sub(orZero(next.Withdrawn[side]), orZero(curr.Withdrawn[side]))
			evs = append(evs, &WithdrawnEvent{eventBase: base, Side: side, Amount: amount})
		}
	}
	return evs, nil
}

// IdenticalSnapshots reports whether a and b describe the same record.
func IdenticalSnapshots(a, b Snapshot) bool {
	return a.Status == b.Status &&
		cmp(a.Deadline, b.Deadline) == 0 &&
		cmp(a.Round, b.Round) == 0 &&
		cmp(a.Withdrawn[0], b.Withdrawn[0]) == 0 &&
		cmp(a.Withdrawn[1], b.Withdrawn[1]) == 0
}

func cmp(a, b *big.Int) int {
	return orZero(a).Cmp(orZero(b))
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
