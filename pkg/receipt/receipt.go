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

// Package receipt verifies signed receipts: a JSON payload bound to a JWS
// signature over its canonical encoding.
package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Receipt is the wire form of a signed receipt. It is never modified by
// verification.
type Receipt struct {
	Protected        string          `json:"protected"`
	Payload          json.RawMessage `json:"payload"`
	Signature        string          `json:"signature"`
	Kid              string          `json:"kid"`
	PayloadJCSSHA256 string          `json:"payload_jcs_sha256,omitempty"`
	ReceiptID        string          `json:"receipt_id,omitempty"`
}

// Header is the decoded protected header.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Parse decodes a receipt document. Structural checks beyond JSON decoding
// are left to the Validator.
func Parse(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	return &r, nil
}

// DecodeHeader decodes the protected header.
func (r *Receipt) DecodeHeader() (Header, error) {
	return decodeHeader(r.Protected)
}

// hasPayload reports whether the payload member is present and not null.
func (r *Receipt) hasPayload() bool {
	trimmed := bytes.TrimSpace(r.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
