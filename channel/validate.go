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

import "math/big"

// Validate is ValidateFrom(Left, next, cmd).
func (s State) Validate(next State, cmd Command) error {
	return s.ValidateFrom(Left, next, cmd)
}

// ValidateFrom checks that next is a valid successor of s produced by cmd,
// where self is the side that proposed next. The first failing check is
// reported. The round is always checked first, after self.
func (s State) ValidateFrom(self Side, next State, cmd Command) error {
	if !self.Valid() {
		return newValidationError(ErrInvalidSide, "%v", self)
	}
	cur, next := s.Clone(), next.Clone()
	other := self.Other()

	if next.Round.Cmp(cur.Round) <= 0 {
		return newValidationError(ErrRoundNotAdvanced, "round %v is not above %v", next.Round, cur.Round)
	}

	// credits the command is allowed to move
	var moved [2]bool
	switch cmd {
	case Open:
		if err := cur.validateOpen(self, next); err != nil {
			return err
		}
		moved[self] = true
	case Complete:
		if err := cur.validateComplete(self, next); err != nil {
			return err
		}
		moved[other] = true
	case Cancel:
		if err := cur.validateCancel(self, next); err != nil {
			return err
		}
		moved[self] = true
	case PlainUpdate:
	default:
		return newValidationError(ErrUnknownCommand, "%v", cmd)
	}

	return cur.validateInvariants(self, next, moved)
}

func (s State) validateOpen(self Side, next State) error {
	amount := next.Payment.Amount
	switch {
	case s.Payment.Active():
		return newValidationError(ErrPaymentAlreadyInProgress, "")
	case amount.Sign() <= 0:
		return newValidationError(ErrNonPositiveAmount, "got %v", amount)
	}

	available := new(big.Int).Add(s.Deposits[self], s.Credits[self])
	if amount.Cmp(available) > 0 {
		return newValidationError(ErrOverpayment, "amount=%v > deposit=%v + credit=%v", amount, s.Deposits[self], s.Credits[self])
	}
	reserved := new(big.Int).Sub(s.Credits[self], amount)
	if next.Credits[self].Cmp(reserved) != 0 {
		return newValidationError(ErrCreditsNotReserved, "credits=%v, expected %v", next.Credits[self], reserved)
	}
	return nil
}

func (s State) validateComplete(self Side, next State) error {
	other := self.Other()
	switch {
	case !s.Payment.Active():
		return newValidationError(ErrNoPaymentToComplete, "")
	case next.Payment.Active():
		return newValidationError(ErrAmountMustBeZero, "got %v", next.Payment.Amount)
	}

	credited := new(big.Int).Add(s.Credits[other], s.Payment.Amount)
	if next.Credits[other].Cmp(credited) != 0 {
		return newValidationError(ErrPaymentNotCredited, "credits=%v, expected %v", next.Credits[other], credited)
	}
	if next.Credits[self].Cmp(s.Credits[self]) != 0 {
		return newValidationError(ErrOpponentCreditsChanged, "credits=%v, expected %v", next.Credits[self], s.Credits[self])
	}
	if !eqPair(next.Deposits, s.Deposits) {
		return newValidationError(ErrForbiddenStateChange, "deposits changed")
	}
	if !eqPair(next.Withdrawals, s.Withdrawals) {
		return newValidationError(ErrForbiddenStateChange, "withdrawals changed")
	}
	return nil
}

func (s State) validateCancel(self Side, next State) error {
	switch {
	case !s.Payment.Active():
		return newValidationError(ErrNoPaymentToCancel, "")
	case next.Payment.Active():
		return newValidationError(ErrAmountMustBeZero, "got %v", next.Payment.Amount)
	}

	refunded := new(big.Int).Add(s.Credits[self], s.Payment.Amount)
	if next.Credits[self].Cmp(refunded) != 0 {
		return newValidationError(ErrPaymentMiscredited, "credits=%v, expected %v", next.Credits[self], refunded)
	}
	return nil
}

// validateInvariants runs the checks every transition has to pass. Credits
// of the sides in moved were already checked by the command.
func (s State) validateInvariants(self Side, next State, moved [2]bool) error {
	other := self.Other()

	if !moved[self] && next.Credits[self].Cmp(s.Credits[self]) != 0 {
		return newValidationError(ErrForbiddenStateChange, "their credits changed")
	}
	if !moved[other] && next.Credits[other].Cmp(s.Credits[other]) != 0 {
		return newValidationError(ErrForbiddenStateChange, "our credits changed")
	}

	for _, side := range []Side{self, other} {
		if next.Deposits[side].Cmp(s.Deposits[side]) != 0 {
			return newValidationError(ErrForbiddenStateChange, "%v deposit changed", side)
		}
	}

	if next.Withdrawals[other].Cmp(s.Withdrawals[other]) != 0 {
		return newValidationError(ErrForbiddenStateChange, "our withdrawal changed")
	}
	limit := new(big.Int).Add(next.Deposits[self], next.Credits[self])
	if next.Withdrawals[self].Cmp(limit) > 0 {
		return newValidationError(ErrOverwithdrawal, "withdrawal=%v > deposit=%v + credit=%v",
			next.Withdrawals[self], next.Deposits[self], next.Credits[self])
	}
	return nil
}
