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

package client

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultReceiptAttempts = 10
	DefaultReceiptBackoff  = time.Duration(500) * time.Millisecond
)

// RetryPolicy bounds how often a missing receipt is fetched again.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultReceiptAttempts, Backoff: DefaultReceiptBackoff}
}

// ReceiptFetcher returns the receipt of a transaction or ErrReceiptNotFound.
type ReceiptFetcher func(ctx context.Context) (*Receipt, error)

// WaitReceipt calls fetch until it returns a receipt. Only ErrReceiptNotFound
// is retried, at most p.Attempts times in total. Any other error is returned
// immediately.
func (p RetryPolicy) WaitReceipt(ctx context.Context, fetch ReceiptFetcher) (*Receipt, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var r *Receipt
		r, err = fetch(ctx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrReceiptNotFound) {
			return nil, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return nil, err
}
