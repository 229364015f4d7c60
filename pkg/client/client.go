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

// Package client talks to a running receipt verification server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
)

const (
	verifyPath  = "/api/v1/verify"
	healthzPath = "/healthz"
)

type Client interface {
	// Verify submits a receipt to the server. A nil key set defers to the
	// server's configured key source. A failed verification is returned as
	// a Result; a receipt the server could not check is an error wrapping
	// *receipt.UncheckedError.
	Verify(ctx context.Context, r *receipt.Receipt, keys *jwk.KeySet) (receipt.Result, error)
	Healthy(ctx context.Context) error
}

type verifyRequest struct {
	Receipt *receipt.Receipt `json:"receipt"`
	JWKS    *jwk.KeySet      `json:"jwks,omitempty"`
}

type verifyClient struct {
	baseURL *url.URL
	client  *http.Client
}

func NewClient(serverURL string, opts ...Option) (Client, error) {
	cfg := &Config{}
	for _, o := range opts {
		o(cfg)
	}
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %s: %w", serverURL, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", baseURL.Scheme)
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(CreateRoundTripper(http.DefaultTransport, cfg.UserAgent)),
		Timeout:   cfg.Timeout,
	}
	return &verifyClient{
		baseURL: baseURL,
		client:  httpClient,
	}, nil
}

func (c *verifyClient) endpoint(p string) string {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, p)
	return endpoint.String()
}

func (c *verifyClient) Verify(ctx context.Context, r *receipt.Receipt, keys *jwk.KeySet) (receipt.Result, error) {
	payload, err := json.Marshal(verifyRequest{Receipt: r, JWKS: keys})
	if err != nil {
		return receipt.Result{}, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(verifyPath), bytes.NewBuffer(payload))
	if err != nil {
		return receipt.Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return receipt.Result{}, fmt.Errorf("getting response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return receipt.Result{}, fmt.Errorf("reading response: %w", err)
	}

	var res receipt.Result
	if err := json.Unmarshal(body, &res); err != nil || (!res.OK && res.Code == "") {
		return receipt.Result{}, fmt.Errorf("unexpected response: %v %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if res.Unchecked() {
		return receipt.Result{}, fmt.Errorf("server could not check receipt: %w",
			&receipt.UncheckedError{Kind: res.Code, Reason: res.Reason})
	}
	return res, nil
}

func (c *verifyClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(healthzPath), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("getting response: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response: %v", resp.StatusCode)
	}
	return nil
}
