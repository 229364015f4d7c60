//
// Copyright 2025 The CertNode Authors.
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

package keyset

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/certnode/receipt-verifier/pkg/jwk"
)

// FetchFunc is one attempt at producing a new snapshot.
type FetchFunc func(ctx context.Context) (*Snapshot, error)

// RetryConfig controls retries of transient fetch failures.
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Values below 1 mean one attempt.
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns 3 attempts starting at 200ms, doubling up to 2s
// with 50% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.RandomizationFactor
	b.MaxElapsedTime = 0
	retries := 0
	if c.MaxAttempts > 1 {
		retries = c.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Retry wraps fn so that transient failures are retried with exponential
// backoff. notify, if set, is called before each retry.
func Retry(cfg RetryConfig, fn FetchFunc, notify func(err error, wait time.Duration)) FetchFunc {
	return func(ctx context.Context) (*Snapshot, error) {
		op := func() (*Snapshot, error) {
			snap, err := fn(ctx)
			if err != nil && !IsTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return snap, err
		}
		return backoff.RetryNotifyWithData(op, cfg.backOff(ctx), notify)
	}
}

// IsTransient reports whether a fetch failure may succeed if repeated:
// transport errors, attempt timeouts and 408, 429 or 5xx responses.
// Malformed key sets and other statuses are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jwk.ErrInvalidKeySet) || errors.Is(err, ErrNoSnapshot) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusRequestTimeout,
			statusErr.Code == http.StatusTooManyRequests,
			statusErr.Code >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	return true
}
