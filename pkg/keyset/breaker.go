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
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls the circuit breaker around key set fetches.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// Window is the period after which failure counts reset while closed.
	Window time.Duration
	// RecoveryTimeout is how long the breaker stays open before it lets
	// trial requests through.
	RecoveryTimeout time.Duration
	// HalfOpenRequests bounds trial requests while half-open; that many
	// consecutive successes close the breaker.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures within 60s and
// retries after 30s with 2 trial requests.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 2,
	}
}

// Breaker is a circuit breaker for FetchFuncs. Its counters are safe for
// concurrent use.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[*Snapshot]
}

// NewBreaker creates a Breaker. onChange, if set, observes state
// transitions.
func NewBreaker(name string, cfg BreakerConfig, onChange func(from, to gobreaker.State)) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a caller giving up says nothing about the source, so it is
		// neither a success nor a failure
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(from, to)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[*Snapshot](settings)}
}

// Wrap returns fn guarded by the breaker. While open, calls fail with
// ErrCircuitOpen and fn is not invoked.
func (b *Breaker) Wrap(fn FetchFunc) FetchFunc {
	return func(ctx context.Context) (*Snapshot, error) {
		snap, err := b.cb.Execute(func() (*Snapshot, error) {
			return fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return snap, err
	}
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
