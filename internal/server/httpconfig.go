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
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Listener defaults. The API and metrics listeners share a host.
const (
	DefaultHTTPHost           = "127.0.0.1"
	DefaultHTTPPort           = 3000
	DefaultMetricsPort        = 2112
	DefaultHTTPTimeout        = 60 * time.Second
	DefaultMaxRequestBodySize = 1 << 20
)

// HTTPConfig configures the verification API and metrics listeners.
type HTTPConfig struct {
	host               string
	port               int
	metricsPort        int
	timeout            time.Duration
	maxRequestBodySize int
	certFile           string
	keyFile            string
}

type HTTPOption func(*HTTPConfig)

func NewHTTPConfig(opts ...HTTPOption) *HTTPConfig {
	hc := &HTTPConfig{
		host:               DefaultHTTPHost,
		port:               DefaultHTTPPort,
		metricsPort:        DefaultMetricsPort,
		timeout:            DefaultHTTPTimeout,
		maxRequestBodySize: DefaultMaxRequestBodySize,
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

func WithHTTPHost(host string) HTTPOption {
	return func(hc *HTTPConfig) { hc.host = host }
}

func WithHTTPPort(port int) HTTPOption {
	return func(hc *HTTPConfig) { hc.port = port }
}

func WithHTTPMetricsPort(port int) HTTPOption {
	return func(hc *HTTPConfig) { hc.metricsPort = port }
}

// WithHTTPTimeout bounds reading a request, writing its response and idle
// keep-alive connections.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(hc *HTTPConfig) { hc.timeout = timeout }
}

// WithHTTPMaxRequestBodySize caps the body of a verify request. Larger
// bodies are answered with 413.
func WithHTTPMaxRequestBodySize(size int) HTTPOption {
	return func(hc *HTTPConfig) { hc.maxRequestBodySize = size }
}

// WithHTTPTLSCredentials serves the API over TLS when both files are set.
func WithHTTPTLSCredentials(certFile, keyFile string) HTTPOption {
	return func(hc *HTTPConfig) {
		hc.certFile = certFile
		hc.keyFile = keyFile
	}
}

func (hc *HTTPConfig) HTTPTarget() string {
	return net.JoinHostPort(hc.host, strconv.Itoa(hc.port))
}

func (hc *HTTPConfig) HTTPMetricsTarget() string {
	return net.JoinHostPort(hc.host, strconv.Itoa(hc.metricsPort))
}

func (hc *HTTPConfig) HasTLS() bool {
	return hc.certFile != "" && hc.keyFile != ""
}

// Validate rejects configurations the listeners cannot serve.
func (hc *HTTPConfig) Validate() error {
	var errs []error
	if hc.port <= 0 || hc.metricsPort <= 0 {
		errs = append(errs, fmt.Errorf("dynamic port allocation is not supported (http port %d, metrics port %d)", hc.port, hc.metricsPort))
	} else if hc.port == hc.metricsPort {
		errs = append(errs, fmt.Errorf("http and metrics cannot both serve at %s", hc.HTTPTarget()))
	}
	if hc.maxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("max request body size must be positive, got %d", hc.maxRequestBodySize))
	}
	if (hc.certFile == "") != (hc.keyFile == "") {
		errs = append(errs, errors.New("TLS needs both a certificate and a key file"))
	}
	return errors.Join(errs...)
}
