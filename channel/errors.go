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
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("invalid state transition")

// ErrPayment is matched by the payment kinds of ValidationError.
var ErrPayment = errors.New("payment error")

// Kinds of ValidationError.
var (
	ErrForbiddenStateChange = errors.New("forbidden state change")
	ErrOverwithdrawal       = errors.New("overwithdrawal")
	ErrRoundNotAdvanced     = errors.New("round not advanced")
	ErrUnknownCommand       = errors.New("unknown command")
	ErrInvalidSide          = errors.New("invalid side")

	ErrPaymentAlreadyInProgress = errors.New("payment already in progress")
	ErrNonPositiveAmount        = errors.New("amount must be positive")
	ErrOverpayment              = errors.New("overpayment")
	ErrCreditsNotReserved       = errors.New("credits for payment not reserved")
	ErrNoPaymentToComplete      = errors.New("no payment to complete")
	ErrNoPaymentToCancel        = errors.New("no payment to cancel")
	ErrAmountMustBeZero         = errors.New("amount must be zero")
	ErrPaymentNotCredited       = errors.New("payment not credited to recipient")
	ErrOpponentCreditsChanged   = errors.New("opponent credits changed")
	ErrPaymentMiscredited       = errors.New("payment amount wrongly credited")
)

var paymentKinds = map[error]bool{
	ErrRoundNotAdvanced:         true,
	ErrPaymentAlreadyInProgress: true,
	ErrNonPositiveAmount:        true,
	ErrCreditsNotReserved:       true,
	ErrNoPaymentToComplete:      true,
	ErrNoPaymentToCancel:        true,
	ErrAmountMustBeZero:         true,
	ErrPaymentNotCredited:       true,
	ErrOpponentCreditsChanged:   true,
	ErrPaymentMiscredited:       true,
}

// ValidationError reports why a candidate state is not a valid successor.
type ValidationError struct {
	Kind error
	Msg  string
}

func newValidationError(kind error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Is groups the kinds the way they are handled by callers: every kind is a
// validation error, payment kinds are payment errors, and overwithdrawals and
// payment kinds are forbidden state changes.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrPayment:
		return paymentKinds[e.Kind]
	case ErrForbiddenStateChange:
		return e.Kind == ErrOverwithdrawal || paymentKinds[e.Kind]
	}
	return false
}

// IsPaymentError reports whether err is a payment kind of ValidationError.
func IsPaymentError(err error) bool {
	return errors.Is(err, ErrPayment)
}
