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

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsSmoke(t *testing.T) {
	hc := NewHTTPConfig()
	api := newHTTPServer(hc, NewService(newValidator(t)))

	// exercise the instrumented handler chain so request metrics exist
	rec := httptest.NewRecorder()
	api.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/verify", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	metricsServer := httptest.NewServer(newHTTPMetrics(context.Background(), hc).Handler)
	defer metricsServer.Close()

	resp, err := http.Get(metricsServer.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	expectedMetrics := []string{
		"receipt_verifier_build_info",
		"receipt_verifier_verifications_total",
		"receipt_verifier_http_api_latency",
		"receipt_verifier_http_requests_total",
		"receipt_verifier_http_api_request_size",
		"go_goroutines",
	}
	for _, metric := range expectedMetrics {
		assert.Contains(t, string(body), metric)
	}
	assert.Contains(t, string(body), `receipt_verifier_verifications_total{code="MALFORMED_RECEIPT"}`)
}

func TestServeHTTPOverListener(t *testing.T) {
	hc := NewHTTPConfig(WithHTTPPort(0))
	api := newHTTPServer(hc, NewService(newValidator(t)))
	// binds an ephemeral port; Serve rejects port 0 but start accepts it
	var wg sync.WaitGroup
	api.start(&wg)
	defer func() { _ = api.Shutdown(context.Background()) }()

	resp, err := http.Get("http://" + api.serverEndpoint + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
