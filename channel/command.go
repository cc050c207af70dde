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

import "fmt"

// Command names the transition that produced a state. It is used for local
// validation only and never packed.
type Command uint8

const (
	PlainUpdate Command = iota
	Open
	Complete
	Cancel
)

func (c Command) String() string {
	switch c {
	case PlainUpdate:
		return "update"
	case Open:
		return "open"
	case Complete:
		return "complete"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return c <= Cancel
}
