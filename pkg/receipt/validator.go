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

package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/certnode/receipt-verifier/pkg/digest"
	"github.com/certnode/receipt-verifier/pkg/jcs"
	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/signature"
)

// Validator checks receipts against a key set. It holds no mutable state
// and is safe for concurrent use.
type Validator struct {
	registry *signature.Registry
	logger   *slog.Logger
}

type options struct {
	algorithms []string
	logger     *slog.Logger
}

// Option configures a Validator.
type Option func(*options)

// WithAlgorithms restricts the accepted signature algorithms. Receipts
// signed with any other algorithm fail with UNSUPPORTED_ALGORITHM.
func WithAlgorithms(algs ...string) Option {
	return func(o *options) {
		o.algorithms = algs
	}
}

// WithLogger sets the logger used for failed verifications.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewValidator builds a Validator. By default ES256 and EdDSA are accepted.
func NewValidator(opts ...Option) (*Validator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	registry, err := signature.NewRegistry(o.algorithms)
	if err != nil {
		return nil, fmt.Errorf("building algorithm registry: %w", err)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{registry: registry, logger: logger}, nil
}

var defaultValidator = sync.OnceValue(func() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
})

// Verify checks r against keys with the default Validator.
func Verify(r *Receipt, keys *jwk.KeySet) Result {
	return defaultValidator().Verify(r, keys)
}

// Verify runs the verification pipeline. Stages run in order and the first
// failure decides the result. Verify never panics on malformed input.
func (v *Validator) Verify(r *Receipt, keys *jwk.KeySet) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(ConfigurationError, "internal error during verification: %v", p)
		}
		if !res.OK {
			v.logger.Debug("receipt verification failed", "code", res.Code, "reason", res.Reason)
		}
	}()
	return v.verify(r, keys)
}

func (v *Validator) verify(r *Receipt, keys *jwk.KeySet) Result {
	if r == nil {
		return failed(MalformedReceipt, "receipt is missing")
	}
	switch {
	case r.Protected == "":
		return failed(MalformedReceipt, "missing protected header")
	case r.Signature == "":
		return failed(MalformedReceipt, "missing signature")
	case !r.hasPayload():
		return failed(MalformedReceipt, "missing payload")
	case r.Kid == "":
		return failed(MalformedReceipt, "missing kid")
	}

	header, err := decodeHeader(r.Protected)
	if err != nil {
		return failed(MalformedReceipt, "%v", err)
	}

	verifier, err := v.registry.Verifier(header.Alg)
	if err != nil {
		return failed(UnsupportedAlgorithm, "unsupported algorithm %q", header.Alg)
	}

	if header.Kid != r.Kid {
		return failed(MalformedReceipt, "protected header kid %q does not match receipt kid %q", header.Kid, r.Kid)
	}

	if keys == nil {
		return failed(KeyNotFound, "no key matches kid %q", r.Kid)
	}
	key, ok := keys.Resolve(r.Kid)
	if !ok {
		return failed(KeyNotFound, "no key matches kid %q", r.Kid)
	}

	canonical, err := jcs.Transform(r.Payload)
	if err != nil {
		return failed(MalformedReceipt, "canonicalizing payload: %v", err)
	}
	payloadB64 := digest.EncodeB64U(canonical)

	if r.PayloadJCSSHA256 != "" {
		want, err := digest.DecodeB64U(r.PayloadJCSSHA256)
		if err != nil {
			return failed(PayloadMismatch, "payload_jcs_sha256 is not valid base64url")
		}
		if !digest.Equal(digest.Sum(canonical), want) {
			return failed(PayloadMismatch, "payload digest does not match payload_jcs_sha256")
		}
	}

	sig, err := digest.DecodeB64U(r.Signature)
	if err != nil {
		return failed(InvalidSignature, "signature is not valid base64url")
	}
	if err := verifier.Verify(key, signature.SigningInput(r.Protected, canonical), sig); err != nil {
		if errors.Is(err, jwk.ErrInvalidKey) || errors.Is(err, jwk.ErrUnsupportedKey) {
			return failed(ConfigurationError, "key %q is unusable: %v", r.Kid, err)
		}
		return failed(InvalidSignature, "%v", err)
	}

	if r.ReceiptID != "" {
		want, err := digest.DecodeB64U(r.ReceiptID)
		if err != nil {
			return failed(ReceiptIDMismatch, "receipt_id is not valid base64url")
		}
		got := digest.Sum([]byte(r.Protected + "." + payloadB64 + "." + r.Signature))
		if !digest.Equal(got, want) {
			return failed(ReceiptIDMismatch, "receipt_id does not match receipt contents")
		}
	}

	return valid()
}

func decodeHeader(protected string) (Header, error) {
	raw, err := digest.DecodeB64U(protected)
	if err != nil {
		return Header{}, fmt.Errorf("protected header is not valid base64url: %w", err)
	}
	// members are matched by exact name; encoding/json would also accept
	// "ALG" or "Kid"
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return Header{}, fmt.Errorf("protected header is not a JSON object: %w", err)
	}
	var h Header
	for name, dst := range map[string]*string{"alg": &h.Alg, "kid": &h.Kid} {
		value, ok := members[name]
		if !ok {
			return Header{}, fmt.Errorf("protected header has no %q member", name)
		}
		if err := json.Unmarshal(value, dst); err != nil || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return Header{}, fmt.Errorf("protected header member %q is not a string", name)
		}
	}
	return h, nil
}

// ReceiptID computes the identifier of a receipt from its protected header,
// canonical payload and signature.
func ReceiptID(protected string, canonicalPayload []byte, sig string) string {
	return digest.SumB64U([]byte(protected + "." + digest.EncodeB64U(canonicalPayload) + "." + sig))
}
