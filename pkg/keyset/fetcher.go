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

// Package keyset caches a remote JWKS document behind a conditional fetch
// guarded by retries and a circuit breaker.
package keyset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/certnode/receipt-verifier/pkg/client"
)

var (
	// ErrNetwork marks failures to obtain a key set from its source.
	ErrNetwork = errors.New("key set source unavailable")
	// ErrCircuitOpen is returned without any I/O while the breaker is open.
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", ErrNetwork)
	// ErrNoSnapshot is returned by a revalidation when there is nothing
	// cached to revalidate.
	ErrNoSnapshot = errors.New("no cached key set")
)

// StatusError reports an unexpected HTTP status from the key source.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error {
	return ErrNetwork
}

// Response is what a Fetcher returns for one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs a single GET of url with the given request headers.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*Response, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, url string, header http.Header) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, header http.Header) (*Response, error) {
	return f(ctx, url, header)
}

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxBodySize = 1 << 20
	defaultUserAgent   = "receipt-verifier"
)

// HTTPFetcher fetches key sets over HTTP.
type HTTPFetcher struct {
	client      *http.Client
	maxBodySize int64
}

type httpOptions struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*httpOptions)

// WithHTTPClient replaces the default client. The user agent and timeout
// options are ignored when a client is supplied.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) {
		o.client = c
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) HTTPOption {
	return func(o *httpOptions) {
		o.userAgent = ua
	}
}

// WithTimeout sets the overall client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		o.timeout = d
	}
}

// WithMaxBodySize limits how many bytes of a response are read.
func WithMaxBodySize(n int64) HTTPOption {
	return func(o *httpOptions) {
		o.maxBodySize = n
	}
}

// NewHTTPFetcher creates an HTTPFetcher. Requests are traced with
// OpenTelemetry.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	o := &httpOptions{
		userAgent:   defaultUserAgent,
		timeout:     defaultHTTPTimeout,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(o)
	}
	hc := o.client
	if hc == nil {
		hc = &http.Client{
			Transport: otelhttp.NewTransport(client.CreateRoundTripper(http.DefaultTransport, o.userAgent)),
			Timeout:   o.timeout,
		}
	}
	return &HTTPFetcher{client: hc, maxBodySize: o.maxBodySize}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
