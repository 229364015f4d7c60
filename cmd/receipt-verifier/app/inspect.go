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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/certnode/receipt-verifier/pkg/jcs"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
)

type inspection struct {
	Header           receipt.Header  `json:"header"`
	Kid              string          `json:"kid"`
	CanonicalPayload json.RawMessage `json:"canonical_payload"`
	PayloadJCSSHA256 string          `json:"payload_jcs_sha256"`
	PayloadDigestOK  *bool           `json:"payload_digest_matches,omitempty"`
	ReceiptID        string          `json:"receipt_id"`
	ReceiptIDOK      *bool           `json:"receipt_id_matches,omitempty"`
	Key              *inspectedKey   `json:"key,omitempty"`
}

type inspectedKey struct {
	Thumbprint string `json:"thumbprint"`
	Kid        string `json:"kid,omitempty"`
	Kty        string `json:"kty"`
	Crv        string `json:"crv"`
	PEM        string `json:"pem"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect receipt.json",
		Short: "Decode a receipt and show its computed digests",
		Long: `Decode a receipt's protected header and canonical payload, and recompute
its payload digest and receipt id. With --jwks, also show the key the
receipt's kid resolves to. Nothing is verified.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().String("jwks", "", "optional JWKS file path or http(s) URL")
	addKeySourceFlags(cmd)
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	r, err := readReceipt(cmd, args[0])
	if err != nil {
		return err
	}
	header, err := r.DecodeHeader()
	if err != nil {
		return err
	}
	canonical, err := jcs.Transform(r.Payload)
	if err != nil {
		return fmt.Errorf("canonicalizing payload: %w", err)
	}
	out := inspection{
		Header:           header,
		Kid:              r.Kid,
		CanonicalPayload: canonical,
		PayloadJCSSHA256: digest.SumB64U(canonical),
		ReceiptID:        receipt.ReceiptID(r.Protected, canonical, r.Signature),
	}
	if r.PayloadJCSSHA256 != "" {
		matches := sameDigest(r.PayloadJCSSHA256, out.PayloadJCSSHA256)
		out.PayloadDigestOK = &matches
	}
	if r.ReceiptID != "" {
		matches := sameDigest(r.ReceiptID, out.ReceiptID)
		out.ReceiptIDOK = &matches
	}

	if src := viper.GetString("jwks"); src != "" {
		keys, err := loadKeySet(cmd.Context(), src)
		if err != nil {
			return err
		}
		if k, ok := keys.Resolve(r.Kid); ok {
			key, err := describeKey(k)
			if err != nil {
				return err
			}
			out.Key = key
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// sameDigest compares a claimed base64url digest with a computed one the way
// the validator does, on the decoded bytes.
func sameDigest(claimed, computed string) bool {
	a, err := digest.DecodeB64U(claimed)
	if err != nil {
		return false
	}
	b, err := digest.DecodeB64U(computed)
	if err != nil {
		return false
	}
	return digest.Equal(a, b)
}

func describeKey(k jwk.JWK) (*inspectedKey, error) {
	tp, err := jwk.Thumbprint(k)
	if err != nil {
		return nil, err
	}
	pem, err := k.PEM()
	if err != nil {
		return nil, err
	}
	return &inspectedKey{Thumbprint: tp, Kid: k.Kid, Kty: k.Kty, Crv: k.Crv, PEM: pem}, nil
}
