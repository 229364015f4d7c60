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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/release-utils/version"
)

const envPrefix = "RECEIPT_VERIFIER"

// errVerificationFailed is returned by commands whose receipts did not
// verify; the result has already been printed.
var errVerificationFailed = errors.New("verification failed")

// NewRootCmd builds the receipt-verifier command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "receipt-verifier",
		Short: "Verify signed receipts against JSON Web Key Sets",
		Long: `receipt-verifier checks receipts whose payload is signed over its RFC 8785
canonical form with ES256 or EdDSA, resolving the signing key from a JWKS by
RFC 7638 thumbprint or key id.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
	rootCmd.PersistentFlags().String("log-level", "info", "log level for the process. options are [debug, info, warn, error]")
	rootCmd.PersistentFlags().String("config", "", "optional configuration file (yaml, json or toml)")

	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newThumbprintCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(version.Version())
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errVerificationFailed) {
			slog.Error("failed to execute command", "error", err)
		}
		os.Exit(1)
	}
}

// initConfig binds the running command's flags to viper, layering a config
// file and RECEIPT_VERIFIER_* environment variables underneath them, and
// configures the default logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log-level specified; must be one of 'debug', 'info', 'error', or 'warn': %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))
	return nil
}
