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

// Package channel contains the off-chain core of a two-party sprites payment channel.
// States are immutable values whose successors are checked by the validation engine before they are signed.
// The Adjudicator drives a channel through its on-chain dispute lifecycle, and the AdjEventSub reports the changes
// the ledger makes to a channel while it is disputed.
package channel
