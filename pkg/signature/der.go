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

package signature

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// RawToDER converts a 64-byte r || s signature into the ASN.1 DER
// SEQUENCE { INTEGER r, INTEGER s } expected by ECDSA verifiers.
func RawToDER(raw []byte) ([]byte, error) {
	if len(raw) != es256SignatureSize {
		return nil, fmt.Errorf("%w: ES256 signature must be %d bytes, got %d", ErrMalformedSignature, es256SignatureSize, len(raw))
	}
	half := es256SignatureSize / 2
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addInteger(b, raw[:half])
		addInteger(b, raw[half:])
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return der, nil
}

func addInteger(b *cryptobyte.Builder, component []byte) {
	b.AddASN1(asn1.INTEGER, func(b *cryptobyte.Builder) {
		b.AddBytes(integerBytes(component))
	})
}

// integerBytes returns the minimal two's complement content octets of an
// unsigned big-endian integer: leading zeros are stripped, then a single zero
// is prepended if the high bit is set so the value stays positive.
func integerBytes(component []byte) []byte {
	trimmed := bytes.TrimLeft(component, "\x00")
	if len(trimmed) == 0 {
		return []byte{0}
	}
	if trimmed[0]&0x80 != 0 {
		out := make([]byte, 0, len(trimmed)+1)
		out = append(out, 0)
		return append(out, trimmed...)
	}
	return trimmed
}
