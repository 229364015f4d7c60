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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/release-utils/version"

	"github.com/certnode/receipt-verifier/pkg/client"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
)

type verifyOutput struct {
	Receipt string `json:"receipt"`
	receipt.Result
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify receipt.json [receipt.json ...]",
		Short: "Verify receipts against a key set",
		Long: `Verify one or more receipts against a JWKS read from a file or fetched
from an http(s) URL. Use - to read a receipt from stdin. The command exits
non-zero if any receipt fails to verify.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runVerify,
	}
	cmd.Flags().String("jwks", "", "JWKS file path or http(s) URL")
	cmd.Flags().String("server", "", "verify remotely against the receipt-verifier server at this URL")
	cmd.Flags().String("output", "text", "output format. options are [text, json]")
	cmd.Flags().Int("workers", 0, "maximum parallel verifications; 0 uses GOMAXPROCS")
	addAlgorithmsFlag(cmd)
	addKeySourceFlags(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	validator, err := newValidator()
	if err != nil {
		return err
	}
	receipts := make([]*receipt.Receipt, 0, len(args))
	for _, path := range args {
		r, err := readReceipt(cmd, path)
		if err != nil {
			return err
		}
		receipts = append(receipts, r)
	}

	var results []receipt.Result
	if serverURL := viper.GetString("server"); serverURL != "" {
		results, err = verifyRemote(cmd, serverURL, receipts)
	} else {
		var keys *jwk.KeySet
		keys, err = loadKeySet(ctx, viper.GetString("jwks"))
		if err != nil {
			// the receipts were not checked
			return fmt.Errorf("%s: obtaining key set: %w", receipt.KindOf(err), err)
		}
		results, err = validator.VerifyBatch(ctx, receipts, keys, viper.GetInt("workers"))
	}
	if err != nil {
		return err
	}

	outputs := make([]verifyOutput, len(results))
	failed := false
	for i, res := range results {
		outputs[i] = verifyOutput{Receipt: args[i], Result: res}
		failed = failed || !res.OK
	}
	if err := printVerifyOutputs(cmd.OutOrStdout(), viper.GetString("output"), outputs); err != nil {
		return err
	}
	if failed {
		return errVerificationFailed
	}
	return nil
}

// verifyRemote submits receipts to a server. An explicit --jwks is sent
// inline; otherwise the server's own key source applies.
func verifyRemote(cmd *cobra.Command, serverURL string, receipts []*receipt.Receipt) ([]receipt.Result, error) {
	ctx := cmd.Context()
	c, err := client.NewClient(serverURL,
		client.WithUserAgent("receipt-verifier/"+version.GetVersionInfo().GitVersion),
		client.WithTimeout(viper.GetDuration("jwks-http-timeout")),
	)
	if err != nil {
		return nil, err
	}
	var keys *jwk.KeySet
	if src := viper.GetString("jwks"); src != "" {
		if keys, err = loadKeySet(ctx, src); err != nil {
			return nil, fmt.Errorf("%s: obtaining key set: %w", receipt.KindOf(err), err)
		}
	}
	results := make([]receipt.Result, len(receipts))
	for i, r := range receipts {
		if results[i], err = c.Verify(ctx, r, keys); err != nil {
			return nil, fmt.Errorf("%s: %w", receipt.KindOf(err), err)
		}
	}
	return results, nil
}

func printVerifyOutputs(w io.Writer, format string, outputs []verifyOutput) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(outputs) == 1 {
			return enc.Encode(outputs[0])
		}
		return enc.Encode(outputs)
	case "text":
		for _, o := range outputs {
			if o.OK {
				fmt.Fprintf(w, "OK    %s\n", o.Receipt)
				continue
			}
			fmt.Fprintf(w, "FAIL  %s: %s: %s\n", o.Receipt, o.Code, o.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
