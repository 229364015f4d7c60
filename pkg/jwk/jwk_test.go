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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 8037 appendix A.3
const (
	rfc8037X          = "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"
	rfc8037Thumbprint = "kPrK_qmxVWaYVA9wwBF6Iuo3vVzz7TxHCTwXBygrS4k"
)

func newECKey(t *testing.T, kid string) (*ecdsa.PrivateKey, JWK) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	k, err := FromPublicKey(&priv.PublicKey, kid)
	require.NoError(t, err)
	return priv, k
}

func newEdKey(t *testing.T, kid string) (ed25519.PrivateKey, JWK) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	k, err := FromPublicKey(pub, kid)
	require.NoError(t, err)
	return priv, k
}

func joseThumbprint(t *testing.T, pub crypto.PublicKey) string {
	t.Helper()
	tp, err := (&jose.JSONWebKey{Key: pub}).Thumbprint(crypto.SHA256)
	require.NoError(t, err)
	return digest.EncodeB64U(tp)
}

func TestThumbprintRFC8037(t *testing.T) {
	tp, err := Thumbprint(JWK{Kty: "OKP", Crv: "Ed25519", X: rfc8037X})
	require.NoError(t, err)
	assert.Equal(t, rfc8037Thumbprint, tp)
}

func TestThumbprintMatchesJose(t *testing.T) {
	ecPriv, ecKey := newECKey(t, "")
	edPriv, edKey := newEdKey(t, "")

	got, err := Thumbprint(ecKey)
	require.NoError(t, err)
	assert.Equal(t, joseThumbprint(t, &ecPriv.PublicKey), got)

	got, err = Thumbprint(edKey)
	require.NoError(t, err)
	assert.Equal(t, joseThumbprint(t, edPriv.Public()), got)
}

func TestThumbprintStability(t *testing.T) {
	_, key := newECKey(t, "")
	base, err := Thumbprint(key)
	require.NoError(t, err)

	decorated := key
	decorated.Kid = "some-kid"
	decorated.Alg = "ES256"
	decorated.Use = "sig"
	got, err := Thumbprint(decorated)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	// member order in the source document does not matter
	doc := `{"y":"` + key.Y + `","alg":"ES256","x":"` + key.X + `","kid":"k","crv":"P-256","kty":"EC"}`
	var parsed JWK
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	got, err = Thumbprint(parsed)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestThumbprintErrors(t *testing.T) {
	tests := []struct {
		name string
		key  JWK
	}{
		{name: "rsa", key: JWK{Kty: "RSA"}},
		{name: "wrong curve", key: JWK{Kty: "EC", Crv: "P-384", X: "a", Y: "b"}},
		{name: "ec missing y", key: JWK{Kty: "EC", Crv: "P-256", X: "a"}},
		{name: "okp missing x", key: JWK{Kty: "OKP", Crv: "Ed25519"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Thumbprint(test.key)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	_, ecKey := newECKey(t, "ec")
	_, edKey := newEdKey(t, "ed")
	short := digest.EncodeB64U(make([]byte, 31))

	offCurve := ecKey
	offCurve.Y = digest.EncodeB64U(make([]byte, 32))

	tests := []struct {
		name    string
		key     JWK
		wantErr error
	}{
		{name: "valid ec", key: ecKey},
		{name: "valid okp", key: edKey},
		{name: "missing kty", key: JWK{}, wantErr: ErrInvalidKey},
		{name: "rsa", key: JWK{Kty: "RSA"}, wantErr: ErrUnsupportedKey},
		{name: "okp with x25519", key: JWK{Kty: "OKP", Crv: "X25519", X: edKey.X}, wantErr: ErrUnsupportedKey},
		{name: "short ec x", key: JWK{Kty: "EC", Crv: "P-256", X: short, Y: ecKey.Y}, wantErr: ErrInvalidKey},
		{name: "short okp x", key: JWK{Kty: "OKP", Crv: "Ed25519", X: short}, wantErr: ErrInvalidKey},
		{name: "bad base64", key: JWK{Kty: "OKP", Crv: "Ed25519", X: "!!!"}, wantErr: ErrInvalidKey},
		{name: "point not on curve", key: offCurve, wantErr: ErrInvalidKey},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.key.Validate()
			if test.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	ecPriv, ecKey := newECKey(t, "")
	pub, err := ecKey.PublicKey()
	require.NoError(t, err)
	assert.True(t, ecPriv.PublicKey.Equal(pub))

	edPriv, edKey := newEdKey(t, "")
	pub, err = edKey.PublicKey()
	require.NoError(t, err)
	assert.True(t, edPriv.Public().(ed25519.PublicKey).Equal(pub))

	pem, err := edKey.PEM()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pem, "-----BEGIN PUBLIC KEY-----"))
}

func TestFromPublicKeyUnsupported(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = FromPublicKey(&priv.PublicKey, "")
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}
