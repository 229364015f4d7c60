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
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/release-utils/version"

	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/keyset"
	"github.com/certnode/receipt-verifier/pkg/receipt"
	"github.com/certnode/receipt-verifier/pkg/signature"
)

// addKeySourceFlags adds the flags that configure fetching and caching a
// remote key set.
func addKeySourceFlags(cmd *cobra.Command) {
	retry := keyset.DefaultRetryConfig()
	breaker := keyset.DefaultBreakerConfig()

	cmd.Flags().Duration("jwks-ttl", 5*time.Minute, "how long a fetched key set is used before it is revalidated")
	cmd.Flags().Duration("jwks-fetch-timeout", 5*time.Second, "timeout for each key set fetch attempt")
	cmd.Flags().Duration("jwks-http-timeout", 30*time.Second, "overall timeout of the key set HTTP client")
	cmd.Flags().Int("jwks-retry-attempts", retry.MaxAttempts, "maximum key set fetch attempts, including the first")
	cmd.Flags().Duration("jwks-retry-initial-interval", retry.InitialInterval, "delay before the first key set fetch retry")
	cmd.Flags().Duration("jwks-retry-max-interval", retry.MaxInterval, "upper bound on the delay between key set fetch retries")
	cmd.Flags().Uint32("jwks-breaker-failures", breaker.FailureThreshold, "consecutive key set fetch failures that open the circuit breaker")
	cmd.Flags().Duration("jwks-breaker-window", breaker.Window, "period after which the circuit breaker's failure count resets")
	cmd.Flags().Duration("jwks-breaker-recovery", breaker.RecoveryTimeout, "how long the circuit breaker stays open before allowing trial fetches")
	cmd.Flags().Uint32("jwks-breaker-half-open-requests", breaker.HalfOpenRequests, "trial fetches allowed, and successes required, while the circuit breaker is half-open")
}

// addAlgorithmsFlag adds the signature algorithm allow-list.
func addAlgorithmsFlag(cmd *cobra.Command) {
	help := fmt.Sprintf("accepted receipt signature algorithms (allowed %s)", strings.Join(signature.AllowedAlgorithms, ", "))
	cmd.Flags().StringSlice("algorithms", signature.AllowedAlgorithms, help)
}

func newManager(reg prometheus.Registerer) *keyset.Manager {
	retry := keyset.DefaultRetryConfig()
	retry.MaxAttempts = viper.GetInt("jwks-retry-attempts")
	retry.InitialInterval = viper.GetDuration("jwks-retry-initial-interval")
	retry.MaxInterval = viper.GetDuration("jwks-retry-max-interval")

	fetcher := keyset.NewHTTPFetcher(
		keyset.WithUserAgent("receipt-verifier/"+version.GetVersionInfo().GitVersion),
		keyset.WithTimeout(viper.GetDuration("jwks-http-timeout")),
	)
	return keyset.NewManager(
		keyset.WithFetcher(fetcher),
		keyset.WithTTL(viper.GetDuration("jwks-ttl")),
		keyset.WithAttemptTimeout(viper.GetDuration("jwks-fetch-timeout")),
		keyset.WithRetry(retry),
		keyset.WithBreaker(keyset.BreakerConfig{
			FailureThreshold: viper.GetUint32("jwks-breaker-failures"),
			Window:           viper.GetDuration("jwks-breaker-window"),
			RecoveryTimeout:  viper.GetDuration("jwks-breaker-recovery"),
			HalfOpenRequests: viper.GetUint32("jwks-breaker-half-open-requests"),
		}),
		keyset.WithLogger(slog.Default()),
		keyset.WithMetrics(reg),
	)
}

func newValidator() (*receipt.Validator, error) {
	return receipt.NewValidator(
		receipt.WithAlgorithms(viper.GetStringSlice("algorithms")...),
		receipt.WithLogger(slog.Default()),
	)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// loadKeySet reads a JWKS document from a file or fetches it from an
// http(s) URL.
func loadKeySet(ctx context.Context, src string) (*jwk.KeySet, error) {
	if src == "" {
		return nil, fmt.Errorf("a key set is required; use --jwks")
	}
	if isURL(src) {
		return newManager(nil).Fetch(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading key set: %w", err)
	}
	return jwk.ParseKeySet(data)
}

// readReceipt reads a receipt from a file, or from stdin when path is "-".
func readReceipt(cmd *cobra.Command, path string) (*receipt.Receipt, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading receipt %s: %w", path, err)
	}
	r, err := receipt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", path, err)
	}
	return r, nil
}
