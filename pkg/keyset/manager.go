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
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/certnode/receipt-verifier/pkg/jwk"
)

const (
	defaultTTL            = 5 * time.Minute
	defaultAttemptTimeout = 5 * time.Second
)

// Snapshot is an immutable cached key set. A new Snapshot replaces the old
// one wholesale; neither it nor its KeySet may be modified.
type Snapshot struct {
	KeySet       *jwk.KeySet
	FetchedAt    time.Time
	ETag         string
	LastModified string
	// SourceURL is empty for key sets installed with SetFromObject.
	SourceURL string
}

// Manager caches one key set. Readers never observe a partially installed
// snapshot, and concurrent refreshes of the same URL share one fetch.
type Manager struct {
	fetcher        Fetcher
	ttl            time.Duration
	attemptTimeout time.Duration
	retry          RetryConfig
	breaker        *Breaker
	now            func() time.Time
	logger         *slog.Logger
	metrics        *metrics

	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group
}

type managerOptions struct {
	fetcher        Fetcher
	ttl            time.Duration
	attemptTimeout time.Duration
	retry          RetryConfig
	breaker        BreakerConfig
	now            func() time.Time
	logger         *slog.Logger
	registerer     prometheus.Registerer
}

// Option configures a Manager.
type Option func(*managerOptions)

// WithFetcher sets the key source. Defaults to an HTTPFetcher.
func WithFetcher(f Fetcher) Option {
	return func(o *managerOptions) {
		o.fetcher = f
	}
}

// WithTTL sets how long a snapshot is served without revalidation.
func WithTTL(ttl time.Duration) Option {
	return func(o *managerOptions) {
		o.ttl = ttl
	}
}

// WithAttemptTimeout bounds each fetch attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *managerOptions) {
		o.attemptTimeout = d
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(o *managerOptions) {
		o.retry = cfg
	}
}

// WithBreaker sets the circuit breaker policy.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *managerOptions) {
		o.breaker = cfg
	}
}

// WithClock sets the time source used for freshness.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithMetrics registers the manager's collectors on reg. A registry can
// hold the collectors of only one Manager.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *managerOptions) {
		o.registerer = reg
	}
}

// NewManager creates a Manager with an empty cache.
func NewManager(opts ...Option) *Manager {
	o := &managerOptions{
		ttl:            defaultTTL,
		attemptTimeout: defaultAttemptTimeout,
		retry:          DefaultRetryConfig(),
		breaker:        DefaultBreakerConfig(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = NewHTTPFetcher()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	m := &Manager{
		fetcher:        o.fetcher,
		ttl:            o.ttl,
		attemptTimeout: o.attemptTimeout,
		retry:          o.retry,
		now:            o.now,
		logger:         o.logger,
		metrics:        newMetrics(o.registerer),
	}
	m.breaker = NewBreaker("keyset", o.breaker, func(from, to gobreaker.State) {
		m.metrics.setBreakerState(to)
		m.logger.Info("key set circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return m
}

func (m *Manager) isFresh(s *Snapshot) bool {
	return s != nil && m.now().Sub(s.FetchedAt) <= m.ttl
}

// GetFresh returns the cached key set if it is within its TTL, or nil. It
// never performs I/O.
func (m *Manager) GetFresh() *jwk.KeySet {
	s := m.snapshot.Load()
	if !m.isFresh(s) {
		return nil
	}
	return s.KeySet
}

// SetFromObject validates ks and installs it unconditionally, stamped with
// the current time and without validators. It serves Fetch for any URL
// until it expires.
func (m *Manager) SetFromObject(ks *jwk.KeySet) error {
	if err := ks.Validate(); err != nil {
		return err
	}
	keys := make([]jwk.JWK, len(ks.Keys))
	copy(keys, ks.Keys)
	m.install(&Snapshot{
		KeySet:    &jwk.KeySet{Keys: keys},
		FetchedAt: m.now(),
	})
	return nil
}

// Fetch returns the key set for url. A fresh snapshot is returned without
// I/O; otherwise the source is revalidated with the stored validators.
// Failures wrap ErrNetwork, ErrCircuitOpen or jwk.ErrInvalidKeySet and leave
// the existing snapshot in place.
func (m *Manager) Fetch(ctx context.Context, url string) (*jwk.KeySet, error) {
	if s := m.snapshot.Load(); m.isFresh(s) && (s.SourceURL == "" || s.SourceURL == url) {
		m.metrics.fetches.WithLabelValues(outcomeFresh).Inc()
		return s.KeySet, nil
	}
	// the shared refresh outlives any single caller
	ch := m.group.DoChan(url, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot).KeySet, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, url string) (*Snapshot, error) {
	prev := m.snapshot.Load()
	if prev != nil && prev.SourceURL != url {
		prev = nil
	}
	fetch := m.breaker.Wrap(Retry(m.retry, m.attempt(url, prev), m.onRetry))
	s, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			m.metrics.fetches.WithLabelValues(outcomeRejected).Inc()
		} else {
			m.metrics.fetches.WithLabelValues(outcomeError).Inc()
		}
		m.logger.Warn("fetching key set failed", "url", url, "error", err)
		return nil, fmt.Errorf("fetching key set from %s: %w", url, err)
	}
	m.install(s)
	return s, nil
}

// attempt performs one conditional request for url, revalidating prev when
// it came from the same source.
func (m *Manager) attempt(url string, prev *Snapshot) FetchFunc {
	return func(ctx context.Context) (*Snapshot, error) {
		ctx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
		defer cancel()

		header := http.Header{}
		if prev != nil {
			if prev.ETag != "" {
				header.Set("If-None-Match", prev.ETag)
			}
			if prev.LastModified != "" {
				header.Set("If-Modified-Since", prev.LastModified)
			}
		}
		resp, err := m.fetcher.Fetch(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}

		switch resp.StatusCode {
		case http.StatusNotModified:
			if prev == nil {
				return nil, fmt.Errorf("%w: source answered 304 Not Modified", ErrNoSnapshot)
			}
			next := *prev
			next.FetchedAt = m.now()
			if etag := resp.Header.Get("ETag"); etag != "" {
				next.ETag = etag
			}
			if lm := resp.Header.Get("Last-Modified"); lm != "" {
				next.LastModified = lm
			}
			m.metrics.fetches.WithLabelValues(outcomeNotModified).Inc()
			m.logger.Debug("key set not modified", "url", url)
			return &next, nil
		case http.StatusOK:
			ks, err := jwk.ParseKeySet(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("parsing key set: %w", err)
			}
			m.metrics.fetches.WithLabelValues(outcomeModified).Inc()
			m.logger.Info("key set refreshed", "url", url, "keys", len(ks.Keys))
			return &Snapshot{
				KeySet:       ks,
				FetchedAt:    m.now(),
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				SourceURL:    url,
			}, nil
		default:
			return nil, &StatusError{Code: resp.StatusCode}
		}
	}
}

func (m *Manager) onRetry(err error, wait time.Duration) {
	m.metrics.retries.Inc()
	m.logger.Warn("retrying key set fetch", "error", err, "wait", wait)
}

func (m *Manager) install(s *Snapshot) {
	m.snapshot.Store(s)
	m.metrics.snapshotTime.Set(float64(s.FetchedAt.Unix()))
}

// Snapshot returns the current snapshot, fresh or not, or nil.
func (m *Manager) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// Clear drops the cached snapshot.
func (m *Manager) Clear() {
	m.snapshot.Store(nil)
}

// Thumbprints lists the thumbprints of the cached keys, fresh or not.
func (m *Manager) Thumbprints() []string {
	s := m.snapshot.Load()
	if s == nil {
		return nil
	}
	return s.KeySet.Thumbprints()
}

// BreakerState returns the circuit breaker state name.
func (m *Manager) BreakerState() string {
	return m.breaker.State().String()
}
