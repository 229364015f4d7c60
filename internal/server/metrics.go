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
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/release-utils/version"
)

type metrics struct {
	reg *prometheus.Registry
	// metrics
	verifications     *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	httpRequestsCount *prometheus.CounterVec
	httpRequestSize   *prometheus.HistogramVec
	panicsTotal       prometheus.Counter
}

// Metrics provides the singleton metrics instance
func getMetrics() *metrics {
	return _initMetricsFunc()
}

// Registerer returns the registry served on the metrics port, so that other
// components (the key set cache) can publish their collectors there.
func Registerer() prometheus.Registerer {
	return getMetrics().reg
}

var _initMetricsFunc = sync.OnceValue[*metrics](func() *metrics {
	m := metrics{
		reg: prometheus.NewRegistry(),
	}
	m.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(m.reg)

	m.verifications = f.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_verifier_verifications_total",
		Help: "Receipt verifications by result code",
	}, []string{"code"})

	m.httpLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name: "receipt_verifier_http_api_latency",
		Help: "API Latency on HTTP calls",
	}, []string{"code", "method"})

	m.httpRequestsCount = f.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_verifier_http_requests_total",
		Help: "Count all HTTP requests",
	}, []string{"code", "method"})

	m.httpRequestSize = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_verifier_http_api_request_size",
		Help:    "API Request size on HTTP calls",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"code", "method"})

	m.panicsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "receipt_verifier_http_panics_recovered_total",
		Help: "Number of panics recovered in HTTP handlers",
	})

	_ = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "receipt_verifier",
			Name:      "build_info",
			Help:      "A metric with a constant '1' value labeled by version, revision, branch, and goversion from which the verifier was built.",
			ConstLabels: prometheus.Labels{
				"version":    version.GetVersionInfo().GitVersion,
				"revision":   version.GetVersionInfo().GitCommit,
				"build_date": version.GetVersionInfo().BuildDate,
				"goversion":  version.GetVersionInfo().GoVersion,
			},
		},
		func() float64 { return 1 },
	)
	return &m
})

type httpMetrics struct {
	*http.Server
	serverEndpoint string
}

func newHTTPMetrics(_ context.Context, config *HTTPConfig) *httpMetrics {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(getMetrics().reg, promhttp.HandlerOpts{}))

	endpoint := config.HTTPMetricsTarget()
	return &httpMetrics{
		Server: &http.Server{
			Addr:    endpoint,
			Handler: mux,

			ReadTimeout:       config.timeout,
			ReadHeaderTimeout: config.timeout,
			WriteTimeout:      config.timeout,
			IdleTimeout:       config.timeout,
		},
		serverEndpoint: endpoint,
	}
}

func (hp *httpMetrics) start(wg *sync.WaitGroup) {
	lis, err := net.Listen("tcp", hp.serverEndpoint)
	if err != nil {
		slog.Error("failed to create listener:", "errors", err)
		os.Exit(1)
	}

	hp.serverEndpoint = lis.Addr().String()

	slog.Info("starting http metrics", "address", hp.serverEndpoint)

	waitToClose := make(chan struct{})
	go func() {
		// capture interrupts and shutdown Server
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint

		if err := hp.Shutdown(context.Background()); err != nil {
			slog.Info("http metrics Server Shutdown error", "errors", err)
		}
		close(waitToClose)
		slog.Info("stopped http metrics Server")
	}()

	wg.Add(1)
	go func() {
		if err := hp.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("could not start http metrics server", "errors", err)
			os.Exit(1)
		}
		<-waitToClose
		wg.Done()
		slog.Info("http metrics Server shutdown")
	}()
}
