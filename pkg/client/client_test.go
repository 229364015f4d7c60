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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certnode/receipt-verifier/internal/server"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
	"github.com/certnode/receipt-verifier/pkg/receipt/receipttest"
)

type staticSource struct {
	keys *jwk.KeySet
}

func (s staticSource) Fetch(context.Context, string) (*jwk.KeySet, error) {
	return s.keys, nil
}

func TestClientVerify(t *testing.T) {
	signer, err := receipttest.NewES256()
	require.NoError(t, err)
	other, err := receipttest.NewEdDSA()
	require.NoError(t, err)
	r, err := signer.Sign(map[string]any{"n": 1})
	require.NoError(t, err)

	validator, err := receipt.NewValidator()
	require.NoError(t, err)
	svc := server.NewService(validator, server.WithKeySource(staticSource{keys: signer.KeySet()}, "static"))
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	gotUA := make(chan string, 1)
	ua := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotUA <- req.Header.Get("User-Agent")
		svc.Handler().ServeHTTP(w, req)
	}))
	defer ua.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		keys *jwk.KeySet
		want receipt.Result
	}{
		{
			name: "inline key set",
			keys: signer.KeySet(),
			want: receipt.Result{OK: true},
		},
		{
			name: "server key source",
			want: receipt.Result{OK: true},
		},
		{
			name: "wrong key set",
			keys: other.KeySet(),
			want: receipt.Result{Code: receipt.KeyNotFound},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Verify(ctx, r, tc.keys)
			require.NoError(t, err)
			assert.Equal(t, tc.want.OK, res.OK)
			assert.Equal(t, tc.want.Code, res.Code)
		})
	}

	c, err = NewClient(ua.URL, WithUserAgent("receipt-verifier-test"))
	require.NoError(t, err)
	_, err = c.Verify(ctx, r, nil)
	require.NoError(t, err)
	assert.Equal(t, "receipt-verifier-test", <-gotUA)
}

func TestClientUncheckedResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   receipt.ErrorKind
	}{
		{
			name:   "key source unavailable",
			status: http.StatusServiceUnavailable,
			body:   `{"ok":false,"code":"NETWORK_ERROR","reason":"key set source unavailable"}`,
			want:   receipt.NetworkError,
		},
		{
			name:   "no key set configured",
			status: http.StatusBadRequest,
			body:   `{"ok":false,"code":"CONFIGURATION_ERROR","reason":"no key set supplied"}`,
			want:   receipt.ConfigurationError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL)
			require.NoError(t, err)
			res, err := c.Verify(context.Background(), &receipt.Receipt{Payload: json.RawMessage(`{}`)}, nil)
			require.Error(t, err)
			var unchecked *receipt.UncheckedError
			require.ErrorAs(t, err, &unchecked)
			assert.Equal(t, tc.want, unchecked.Kind)
			assert.Equal(t, tc.want, receipt.KindOf(err))
			assert.Equal(t, receipt.Result{}, res)
		})
	}
}

func TestClientServerWithoutKeySource(t *testing.T) {
	signer, err := receipttest.NewES256()
	require.NoError(t, err)
	r, err := signer.Sign(map[string]any{"n": 1})
	require.NoError(t, err)
	validator, err := receipt.NewValidator()
	require.NoError(t, err)
	srv := httptest.NewServer(server.NewService(validator).Handler())
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Verify(context.Background(), r, nil)
	assert.Equal(t, receipt.ConfigurationError, receipt.KindOf(err))
}

func TestClientUnexpectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Verify(context.Background(), &receipt.Receipt{Payload: json.RawMessage(`{}`)}, nil)
	require.ErrorContains(t, err, "unexpected response: 502 upstream down")
	require.Error(t, c.Healthy(context.Background()))
}

func TestClientHealthy(t *testing.T) {
	validator, err := receipt.NewValidator()
	require.NoError(t, err)
	srv := httptest.NewServer(server.NewService(validator).Handler())
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	require.NoError(t, c.Healthy(context.Background()))
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("://bad")
	require.Error(t, err)
	_, err = NewClient("ftp://example.com")
	require.ErrorContains(t, err, "unsupported url scheme")
}
