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

package app

import (
	"context"
	"fmt"
	"log/slog"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"sigs.k8s.io/release-utils/version"
)

// initOTel exports OpenTelemetry metrics, including the key set client's
// otelhttp instruments, to Google Cloud Monitoring when enabled.
func initOTel(ctx context.Context) (func(context.Context), error) {
	noop := func(context.Context) {}
	if !viper.GetBool("otel-gcp-metrics") {
		return noop, nil
	}
	appVersion := version.GetVersionInfo()
	resources, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(), // unpacks OTEL_RESOURCE_ATTRIBUTES
		resource.WithAttributes(
			semconv.ServiceName("receipt-verifier"),
			semconv.ServiceVersion(appVersion.GitVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTel resources: %w", err)
	}

	me, err := mexporter.New()
	if err != nil {
		slog.Warn("could not create metric exporter, likely not running in GCP", "error", err)
		return noop, nil
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(me)),
		sdkmetric.WithResource(resources),
	)
	otel.SetMeterProvider(mp)

	slog.Info("initialized OTel metric exporter for GCP")
	return func(ctx context.Context) {
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("error shutting down meter provider", "error", err)
		}
	}, nil
}
