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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certnode/receipt-verifier/pkg/jwk"
)

func TestHTTPFetcher(t *testing.T) {
	headers := make(chan http.Header, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, `{"keys":[]}`)
	}))
	defer server.Close()

	f := NewHTTPFetcher(WithUserAgent("receipt-verifier-test/1.0"))
	resp, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"keys":[]}`, string(resp.Body))
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	got := <-headers
	assert.Equal(t, "receipt-verifier-test/1.0", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))

	resp, err = f.Fetch(context.Background(), server.URL, http.Header{"If-None-Match": []string{`"v1"`}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	got = <-headers
	assert.Equal(t, `"v1"`, got.Get("If-None-Match"))
}

func TestHTTPFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 64))
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(WithMaxBodySize(32)).Fetch(context.Background(), server.URL, nil)
	assert.ErrorContains(t, err, "exceeds 32 bytes")

	resp, err := NewHTTPFetcher(WithMaxBodySize(64)).Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64)
}

func TestHTTPFetcherTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(WithTimeout(20*time.Millisecond)).Fetch(context.Background(), server.URL, nil)
	assert.Error(t, err)
}

func TestManagerOverHTTP(t *testing.T) {
	ks := newKeySet(t)
	body := marshal(t, ks)
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	clock := newFakeClock()
	m := NewManager(WithClock(clock.Now), WithTTL(time.Minute), WithLogger(discardLogger()))
	got, err := m.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, ks.Keys, got.Keys)

	clock.Advance(time.Hour)
	_, err = m.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, clock.Now(), m.Snapshot().FetchedAt)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("dial tcp: connection refused"), true},
		{"deadline", fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded), true},
		{"canceled", fmt.Errorf("%w: %w", ErrNetwork, context.Canceled), false},
		{"server error", &StatusError{Code: 500}, true},
		{"bad gateway", &StatusError{Code: 502}, true},
		{"too many requests", &StatusError{Code: 429}, true},
		{"request timeout", &StatusError{Code: 408}, true},
		{"not found", &StatusError{Code: 404}, false},
		{"forbidden", &StatusError{Code: 403}, false},
		{"invalid key set", fmt.Errorf("parsing: %w", jwk.ErrInvalidKeySet), false},
		{"no snapshot", ErrNoSnapshot, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, IsTransient(test.err))
		})
	}
}

func TestRetryNotify(t *testing.T) {
	var calls, notified int
	fn := func(context.Context) (*Snapshot, error) {
		calls++
		if calls < 3 {
			return nil, &StatusError{Code: 503}
		}
		return &Snapshot{}, nil
	}
	snap, err := Retry(fastRetry(5), fn, func(err error, _ time.Duration) {
		notified++
		assert.Error(t, err)
	})(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, notified)
}

func TestRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	fn := func(context.Context) (*Snapshot, error) {
		calls++
		cancel()
		return nil, &StatusError{Code: 503}
	}
	cfg := fastRetry(10)
	cfg.InitialInterval = time.Second
	_, err := Retry(cfg, fn, nil)(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBreaker(t *testing.T) {
	var transitions []string
	b := NewBreaker("test", BreakerConfig{
		FailureThreshold: 2,
		Window:           time.Minute,
		RecoveryTimeout:  time.Minute,
		HalfOpenRequests: 1,
	}, func(from, to gobreaker.State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	fail := b.Wrap(func(context.Context) (*Snapshot, error) { return nil, &StatusError{Code: 500} })
	succeed := b.Wrap(func(context.Context) (*Snapshot, error) { return &Snapshot{}, nil })
	canceled := b.Wrap(func(context.Context) (*Snapshot, error) { return nil, context.Canceled })

	// a success resets the consecutive count; a cancellation leaves it alone
	_, _ = fail(context.Background())
	_, _ = succeed(context.Background())
	_, _ = fail(context.Background())
	_, _ = canceled(context.Background())
	_, _ = canceled(context.Background())
	assert.Equal(t, "closed", b.State().String())

	_, _ = fail(context.Background())
	assert.Equal(t, "open", b.State().String())
	_, err := succeed(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerHalfOpen(t *testing.T) {
	const recovery = 50 * time.Millisecond
	errSource := &StatusError{Code: http.StatusBadGateway}

	tests := []struct {
		name string
		// run drives the half-open breaker and returns its final state
		run       func(t *testing.T, b *Breaker) string
		wantState string
	}{
		{
			name: "closes only after the success threshold",
			run: func(t *testing.T, b *Breaker) string {
				ok := b.Wrap(func(context.Context) (*Snapshot, error) { return &Snapshot{}, nil })
				_, err := ok(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "half-open", b.State().String())
				_, err = ok(context.Background())
				require.NoError(t, err)
				return b.State().String()
			},
			wantState: "closed",
		},
		{
			name: "failed trial reopens",
			run: func(t *testing.T, b *Breaker) string {
				ok := b.Wrap(func(context.Context) (*Snapshot, error) { return &Snapshot{}, nil })
				fail := b.Wrap(func(context.Context) (*Snapshot, error) { return nil, errSource })
				_, err := ok(context.Background())
				require.NoError(t, err)
				_, err = fail(context.Background())
				require.ErrorIs(t, err, errSource)
				_, err = ok(context.Background())
				require.ErrorIs(t, err, ErrCircuitOpen)
				return b.State().String()
			},
			wantState: "open",
		},
		{
			name: "extra trials rejected while in flight",
			run: func(t *testing.T, b *Breaker) string {
				release := make(chan struct{})
				started := make(chan struct{}, 2)
				var calls atomic.Int32
				slow := b.Wrap(func(context.Context) (*Snapshot, error) {
					calls.Add(1)
					started <- struct{}{}
					<-release
					return &Snapshot{}, nil
				})
				var wg sync.WaitGroup
				for range 2 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _ = slow(context.Background())
					}()
				}
				<-started
				<-started
				_, err := slow(context.Background())
				require.ErrorIs(t, err, ErrCircuitOpen)
				close(release)
				wg.Wait()
				assert.Equal(t, int32(2), calls.Load())
				return b.State().String()
			},
			wantState: "closed",
		},
		{
			name: "canceled trials do not close",
			run: func(t *testing.T, b *Breaker) string {
				canceled := b.Wrap(func(context.Context) (*Snapshot, error) { return nil, context.Canceled })
				for range 3 {
					_, err := canceled(context.Background())
					require.ErrorIs(t, err, context.Canceled)
				}
				return b.State().String()
			},
			wantState: "half-open",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBreaker("half-open", BreakerConfig{
				FailureThreshold: 1,
				Window:           time.Minute,
				RecoveryTimeout:  recovery,
				HalfOpenRequests: 2,
			}, nil)
			fail := b.Wrap(func(context.Context) (*Snapshot, error) { return nil, errSource })
			_, _ = fail(context.Background())
			require.Equal(t, "open", b.State().String())
			require.Eventually(t, func() bool {
				return b.State().String() == "half-open"
			}, time.Second, 5*time.Millisecond)

			assert.Equal(t, tc.wantState, tc.run(t, b))
		})
	}
}
