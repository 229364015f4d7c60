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

// Package signature verifies receipt signatures. Each supported JWS
// algorithm is a Verifier; callers select one by the protected header's alg.
package signature

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	sigstoresig "github.com/sigstore/sigstore/pkg/signature"
)

const (
	AlgES256 = "ES256"
	AlgEdDSA = "EdDSA"

	es256SignatureSize = 64
)

var (
	// ErrUnsupportedAlgorithm is returned for algorithms other than ES256 and EdDSA.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrKeyMismatch is returned when the key type does not fit the algorithm.
	ErrKeyMismatch = errors.New("key does not match algorithm")
	// ErrMalformedSignature is returned when the signature bytes have the wrong shape.
	ErrMalformedSignature = errors.New("malformed signature")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Verifier checks a signature over a signing input with a JWK.
//
// Errors wrap jwk.ErrInvalidKey when the key material itself is unusable,
// ErrKeyMismatch when the key is of the wrong type, and ErrMalformedSignature
// or ErrInvalidSignature otherwise.
type Verifier interface {
	Algorithm() string
	Verify(key jwk.JWK, signingInput, sig []byte) error
}

// ForAlgorithm returns the verifier for alg.
func ForAlgorithm(alg string) (Verifier, error) {
	switch alg {
	case AlgES256:
		return ES256{}, nil
	case AlgEdDSA:
		return EdDSA{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// SigningInput returns protected + "." + base64url(canonicalPayload).
func SigningInput(protected string, canonicalPayload []byte) []byte {
	return []byte(protected + "." + digest.EncodeB64U(canonicalPayload))
}

// ES256 verifies ECDSA P-256 signatures over SHA-256, encoded as the 64-byte
// concatenation r || s.
type ES256 struct{}

func (ES256) Algorithm() string { return AlgES256 }

func (ES256) Verify(key jwk.JWK, signingInput, sig []byte) error {
	if key.Shape() != jwk.ShapeECP256 {
		return fmt.Errorf("%w: ES256 requires an EC P-256 key, got %s", ErrKeyMismatch, key.Shape())
	}
	pub, err := key.PublicKey()
	if err != nil {
		return err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: unexpected key type %T", ErrKeyMismatch, pub)
	}
	der, err := RawToDER(sig)
	if err != nil {
		return err
	}
	v, err := sigstoresig.LoadECDSAVerifier(ecPub, crypto.SHA256)
	if err != nil {
		return fmt.Errorf("%w: loading verifier: %v", jwk.ErrInvalidKey, err)
	}
	if err := v.VerifySignature(bytes.NewReader(der), bytes.NewReader(signingInput)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// EdDSA verifies Ed25519 signatures over the raw signing input.
type EdDSA struct{}

func (EdDSA) Algorithm() string { return AlgEdDSA }

func (EdDSA) Verify(key jwk.JWK, signingInput, sig []byte) error {
	if key.Shape() != jwk.ShapeOKPEd25519 {
		return fmt.Errorf("%w: EdDSA requires an OKP Ed25519 key, got %s", ErrKeyMismatch, key.Shape())
	}
	pub, err := key.PublicKey()
	if err != nil {
		return err
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("%w: unexpected key type %T", ErrKeyMismatch, pub)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: EdDSA signature must be %d bytes, got %d", ErrMalformedSignature, ed25519.SignatureSize, len(sig))
	}
	v, err := sigstoresig.LoadED25519Verifier(edPub)
	if err != nil {
		return fmt.Errorf("%w: loading verifier: %v", jwk.ErrInvalidKey, err)
	}
	if err := v.VerifySignature(bytes.NewReader(sig), bytes.NewReader(signingInput)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
