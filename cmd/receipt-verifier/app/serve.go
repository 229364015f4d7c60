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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/release-utils/version"

	"github.com/certnode/receipt-verifier/internal/server"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
)

// staticSource serves a key set loaded once from disk.
type staticSource struct {
	keys *jwk.KeySet
}

func (s staticSource) Fetch(context.Context, string) (*jwk.KeySet, error) {
	return s.keys, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the receipt verification server",
		Long: `start the receipt verification server. Requests may carry their own JWKS;
otherwise the key set named by --jwks is used, fetched and cached when it is
an http(s) URL.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().Int("http-port", server.DefaultHTTPPort, "HTTP port to bind to")
	cmd.Flags().String("http-address", server.DefaultHTTPHost, "HTTP address to bind to")
	cmd.Flags().Int("http-metrics-port", server.DefaultMetricsPort, "HTTP port to bind metrics to")
	cmd.Flags().Duration("timeout", server.DefaultHTTPTimeout, "timeout for reading requests and writing responses")
	cmd.Flags().Int("max-request-body-size", server.DefaultMaxRequestBodySize, "maximum request body size in bytes")
	cmd.Flags().String("tls-cert-file", "", "path to the TLS certificate")
	cmd.Flags().String("tls-key-file", "", "path to the TLS private key")
	cmd.Flags().Bool("otel-gcp-metrics", false, "export OpenTelemetry metrics to Google Cloud Monitoring")
	cmd.Flags().String("jwks", "", "default JWKS file path or http(s) URL for requests that carry no key set")
	addAlgorithmsFlag(cmd)
	addKeySourceFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	versionInfo := version.GetVersionInfo()
	versionInfoStr, err := versionInfo.JSONString()
	if err != nil {
		versionInfoStr = versionInfo.String()
	}
	slog.Info("starting receipt-verifier", "version", versionInfoStr)

	shutdownOTel, err := initOTel(ctx)
	if err != nil {
		return err
	}
	defer shutdownOTel(context.WithoutCancel(ctx))

	validator, err := newValidator()
	if err != nil {
		return fmt.Errorf("failed to configure validator: %w", err)
	}
	opts, err := keySourceOptions(ctx, viper.GetString("jwks"))
	if err != nil {
		return err
	}
	opts = append(opts, server.WithLogger(slog.Default()))

	return server.Serve(
		ctx,
		server.NewHTTPConfig(
			server.WithHTTPPort(viper.GetInt("http-port")),
			server.WithHTTPHost(viper.GetString("http-address")),
			server.WithHTTPTimeout(viper.GetDuration("timeout")),
			server.WithHTTPMaxRequestBodySize(viper.GetInt("max-request-body-size")),
			server.WithHTTPMetricsPort(viper.GetInt("http-metrics-port")),
			server.WithHTTPTLSCredentials(viper.GetString("tls-cert-file"), viper.GetString("tls-key-file")),
		),
		server.NewService(validator, opts...),
	)
}

// keySourceOptions configures the server's default key set. A URL is served
// through a caching manager whose metrics share the server registry; the
// first fetch is attempted eagerly but a failure only logs.
func keySourceOptions(ctx context.Context, src string) ([]server.ServiceOption, error) {
	switch {
	case src == "":
		slog.Warn("no default key set configured; requests must carry a jwks")
		return nil, nil
	case isURL(src):
		manager := newManager(server.Registerer())
		if _, err := manager.Fetch(ctx, src); err != nil {
			slog.Warn("initial key set fetch failed", "url", src, "error", err)
		} else {
			slog.Info("loaded key set", "url", src, "thumbprints", manager.Thumbprints())
		}
		return []server.ServiceOption{server.WithKeySource(manager, src)}, nil
	default:
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("reading key set: %w", err)
		}
		keys, err := jwk.ParseKeySet(data)
		if err != nil {
			return nil, err
		}
		var source receipt.KeySource = staticSource{keys: keys}
		return []server.ServiceOption{server.WithKeySource(source, src)}, nil
	}
}
