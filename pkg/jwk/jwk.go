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

// Package jwk models the JSON Web Keys accepted for receipt verification:
// EC keys on P-256 and OKP keys on Ed25519. It validates key material,
// computes RFC 7638 thumbprints and resolves a key by identifier.
package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
)

const (
	KeyTypeEC  = "EC"
	KeyTypeOKP = "OKP"

	CurveP256    = "P-256"
	CurveEd25519 = "Ed25519"

	// coordinateSize is the length of every decoded coordinate for both
	// supported curves.
	coordinateSize = 32
)

var (
	// ErrInvalidKey is returned for key material that is structurally invalid.
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnsupportedKey is returned for key types or curves other than EC/P-256 and OKP/Ed25519.
	ErrUnsupportedKey = errors.New("unsupported key")
)

// Shape identifies which of the supported key variants a JWK claims to be.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeECP256
	ShapeOKPEd25519
)

func (s Shape) String() string {
	switch s {
	case ShapeECP256:
		return "EC/P-256"
	case ShapeOKPEd25519:
		return "OKP/Ed25519"
	default:
		return "unknown"
	}
}

// JWK is the wire form of a public key. Members other than those listed are
// ignored.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
}

// Shape returns the key variant selected by kty and crv.
func (k JWK) Shape() Shape {
	switch {
	case k.Kty == KeyTypeEC && k.Crv == CurveP256:
		return ShapeECP256
	case k.Kty == KeyTypeOKP && k.Crv == CurveEd25519:
		return ShapeOKPEd25519
	default:
		return ShapeUnknown
	}
}

// Validate checks that the key is a supported variant and that its
// coordinates decode to exactly the length required by the curve.
func (k JWK) Validate() error {
	_, err := k.PublicKey()
	return err
}

// PublicKey decodes the key into an *ecdsa.PublicKey or an ed25519.PublicKey.
// EC points are checked to lie on P-256.
func (k JWK) PublicKey() (crypto.PublicKey, error) {
	switch k.Shape() {
	case ShapeECP256:
		x, err := decodeCoordinate("x", k.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeCoordinate("y", k.Y)
		if err != nil {
			return nil, err
		}
		point := make([]byte, 0, 1+2*coordinateSize)
		point = append(point, 0x04)
		point = append(point, x...)
		point = append(point, y...)
		// ecdh rejects points that are not on the curve
		if _, err := ecdh.P256().NewPublicKey(point); err != nil {
			return nil, fmt.Errorf("%w: point is not on P-256", ErrInvalidKey)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	case ShapeOKPEd25519:
		x, err := decodeCoordinate("x", k.X)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(x), nil
	default:
		if k.Kty == "" {
			return nil, fmt.Errorf("%w: missing kty", ErrInvalidKey)
		}
		return nil, fmt.Errorf("%w: kty %q crv %q", ErrUnsupportedKey, k.Kty, k.Crv)
	}
}

// PEM returns the PEM-encoded PKIX form of the key.
func (k JWK) PEM() (string, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return "", err
	}
	encoded, err := cryptoutils.MarshalPublicKeyToPEM(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return string(encoded), nil
}

func decodeCoordinate(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing %s coordinate", ErrInvalidKey, name)
	}
	b, err := digest.DecodeB64U(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s coordinate: %v", ErrInvalidKey, name, err)
	}
	if len(b) != coordinateSize {
		return nil, fmt.Errorf("%w: %s coordinate is %d bytes, want %d", ErrInvalidKey, name, len(b), coordinateSize)
	}
	return b, nil
}

// FromPublicKey encodes a P-256 or Ed25519 public key as a JWK.
func FromPublicKey(pub crypto.PublicKey, kid string) (JWK, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return JWK{}, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, key.Curve.Params().Name)
		}
		ecdhKey, err := key.ECDH()
		if err != nil {
			return JWK{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		// uncompressed form: 0x04 || x || y
		point := ecdhKey.Bytes()
		return JWK{
			Kty: KeyTypeEC,
			Crv: CurveP256,
			X:   digest.EncodeB64U(point[1 : 1+coordinateSize]),
			Y:   digest.EncodeB64U(point[1+coordinateSize:]),
			Kid: kid,
		}, nil
	case ed25519.PublicKey:
		return JWK{
			Kty: KeyTypeOKP,
			Crv: CurveEd25519,
			X:   digest.EncodeB64U(key),
			Kid: kid,
		}, nil
	default:
		return JWK{}, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}
