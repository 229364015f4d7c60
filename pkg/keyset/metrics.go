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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Fetch outcomes recorded by the fetches counter.
const (
	outcomeFresh       = "fresh"
	outcomeModified    = "modified"
	outcomeNotModified = "not_modified"
	outcomeRejected    = "rejected"
	outcomeError       = "error"
)

type metrics struct {
	fetches      *prometheus.CounterVec
	retries      prometheus.Counter
	breakerState prometheus.Gauge
	snapshotTime prometheus.Gauge
}

// newMetrics registers the manager's collectors on reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_verifier_keyset_fetches_total",
			Help: "Key set requests by outcome",
		}, []string{"outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "receipt_verifier_keyset_fetch_retries_total",
			Help: "Retried key set fetch attempts",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "receipt_verifier_keyset_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		}),
		snapshotTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "receipt_verifier_keyset_snapshot_timestamp_seconds",
			Help: "Unix time at which the cached key set was last fetched or revalidated",
		}),
	}
}

func (m *metrics) setBreakerState(s gobreaker.State) {
	switch s {
	case gobreaker.StateClosed:
		m.breakerState.Set(0)
	case gobreaker.StateHalfOpen:
		m.breakerState.Set(1)
	case gobreaker.StateOpen:
		m.breakerState.Set(2)
	}
}
