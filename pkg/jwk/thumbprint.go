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

package jwk

import (
	"fmt"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/certnode/receipt-verifier/pkg/jcs"
)

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of the key, base64url
// encoded. Only the required members take part ({crv,kty,x,y} for EC,
// {crv,kty,x} for OKP), so kid, alg and member order do not affect it.
func Thumbprint(k JWK) (string, error) {
	var members map[string]any
	switch k.Shape() {
	case ShapeECP256:
		if k.X == "" || k.Y == "" {
			return "", fmt.Errorf("%w: missing x or y coordinate", ErrInvalidKey)
		}
		members = map[string]any{"crv": k.Crv, "kty": k.Kty, "x": k.X, "y": k.Y}
	case ShapeOKPEd25519:
		if k.X == "" {
			return "", fmt.Errorf("%w: missing x coordinate", ErrInvalidKey)
		}
		members = map[string]any{"crv": k.Crv, "kty": k.Kty, "x": k.X}
	default:
		return "", fmt.Errorf("%w: thumbprint requires EC/P-256 or OKP/Ed25519, got kty %q crv %q", ErrUnsupportedKey, k.Kty, k.Crv)
	}
	canonical, err := jcs.Canonicalize(members)
	if err != nil {
		return "", fmt.Errorf("canonicalizing key members: %w", err)
	}
	return digest.SumB64U(canonical), nil
}
