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

// Package receipttest issues signed receipts for tests.
package receipttest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/certnode/receipt-verifier/pkg/jcs"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
	"github.com/certnode/receipt-verifier/pkg/signature"
)

// Signer issues receipts with a single key.
type Signer struct {
	alg  string
	priv crypto.Signer
	// Key is the public JWK of the signer.
	Key jwk.JWK
	// Kid is stamped into receipts. It defaults to the key's thumbprint.
	Kid string
}

// NewES256 generates a P-256 key.
func NewES256() (*Signer, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return newSigner(signature.AlgES256, priv)
}

// NewEdDSA generates an Ed25519 key.
func NewEdDSA() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newSigner(signature.AlgEdDSA, priv)
}

func newSigner(alg string, priv crypto.Signer) (*Signer, error) {
	k, err := jwk.FromPublicKey(priv.Public(), "")
	if err != nil {
		return nil, err
	}
	kid, err := jwk.Thumbprint(k)
	if err != nil {
		return nil, err
	}
	return &Signer{alg: alg, priv: priv, Key: k, Kid: kid}, nil
}

// KeySet returns a key set holding only the signer's key.
func (s *Signer) KeySet() *jwk.KeySet {
	return &jwk.KeySet{Keys: []jwk.JWK{s.Key}}
}

// Sign issues a receipt over payload with payload_jcs_sha256 and receipt_id
// populated.
func (s *Signer) Sign(payload any) (*receipt.Receipt, error) {
	return s.SignHeader(receipt.Header{Alg: s.alg, Kid: s.Kid}, payload)
}

// SignHeader issues a receipt with an arbitrary protected header. The
// receipt's kid is always s.Kid.
func (s *Signer) SignHeader(header receipt.Header, payload any) (*receipt.Receipt, error) {
	rawHeader, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	canonical, err := jcs.Transform(rawPayload)
	if err != nil {
		return nil, err
	}
	protected := digest.EncodeB64U(rawHeader)
	sig, err := s.sign(signature.SigningInput(protected, canonical))
	if err != nil {
		return nil, err
	}
	sigB64 := digest.EncodeB64U(sig)
	return &receipt.Receipt{
		Protected:        protected,
		Payload:          rawPayload,
		Signature:        sigB64,
		Kid:              s.Kid,
		PayloadJCSSHA256: digest.SumB64U(canonical),
		ReceiptID:        receipt.ReceiptID(protected, canonical, sigB64),
	}, nil
}

func (s *Signer) sign(msg []byte) ([]byte, error) {
	switch priv := s.priv.(type) {
	case *ecdsa.PrivateKey:
		h := sha256.Sum256(msg)
		r, ss, err := ecdsa.Sign(rand.Reader, priv, h[:])
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 64)
		r.FillBytes(raw[:32])
		ss.FillBytes(raw[32:])
		return raw, nil
	case ed25519.PrivateKey:
		return ed25519.Sign(priv, msg), nil
	default:
		return nil, fmt.Errorf("unsupported signer %T", s.priv)
	}
}
