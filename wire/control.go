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

import "fmt"

// Side identifies one of the two players of a channel. Per-side arrays are
// always stored in canonical order, Left first.
type Side uint8

const (
	Left Side = iota
	Right
)

// Other returns the opposite side.
func (s Side) Other() Side {
	return 1 - s
}

// Valid reports whether s is Left or Right.
func (s Side) Valid() bool {
	return s == Left || s == Right
}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Status is the arbitration status of a channel as reported by the ledger.
type Status uint8

const (
	StatusOpen Status = iota
	StatusPending
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPending:
		return "pending"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}
