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

// Package digest holds the hashing and base64url helpers shared by the
// canonicalization, key and receipt packages.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// Size is the length in bytes of a digest returned by Sum.
const Size = sha256.Size

// Sum returns the SHA-256 digest of b.
func Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// EncodeB64U encodes b as unpadded base64url.
func EncodeB64U(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeB64U decodes unpadded base64url. Trailing padding is tolerated, but
// non-canonical encodings (stray bits in the final character) are rejected so
// that distinct strings never decode to the same bytes.
func DecodeB64U(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.Strict().DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding base64url: %w", err)
	}
	return b, nil
}

// SumB64U returns the base64url-encoded SHA-256 digest of b.
func SumB64U(b []byte) string {
	return EncodeB64U(Sum(b))
}

// Equal reports whether two digests are equal in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
