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
	"errors"
	"fmt"

	"github.com/certnode/receipt-verifier/pkg/jwk"
)

// ErrorKind is the machine-readable reason a receipt could not be verified.
type ErrorKind string

const (
	MalformedReceipt     ErrorKind = "MALFORMED_RECEIPT"
	UnsupportedAlgorithm ErrorKind = "UNSUPPORTED_ALGORITHM"
	KeyNotFound          ErrorKind = "KEY_NOT_FOUND"
	PayloadMismatch      ErrorKind = "PAYLOAD_MISMATCH"
	InvalidSignature     ErrorKind = "INVALID_SIGNATURE"
	ReceiptIDMismatch    ErrorKind = "RECEIPT_ID_MISMATCH"
	ConfigurationError   ErrorKind = "CONFIGURATION_ERROR"
	NetworkError         ErrorKind = "NETWORK_ERROR"
)

// Result is the outcome of verifying one receipt.
type Result struct {
	OK     bool      `json:"ok"`
	Code   ErrorKind `json:"code,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func valid() Result {
	return Result{OK: true}
}

func failed(code ErrorKind, format string, args ...any) Result {
	return Result{OK: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// UncheckedError reports that a receipt could not be checked at all, as
// opposed to a Result that says it was checked and found invalid.
type UncheckedError struct {
	Kind   ErrorKind
	Reason string
}

func (e *UncheckedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unchecked reports whether a failed result means the receipt could not be
// checked rather than that it is invalid.
func (r Result) Unchecked() bool {
	return !r.OK && (r.Code == NetworkError || r.Code == ConfigurationError)
}

// KindOf classifies an error returned while obtaining keys: invalid key
// material is a CONFIGURATION_ERROR, anything else means the keys could not
// be fetched and is a NETWORK_ERROR. An UncheckedError keeps its own kind.
func KindOf(err error) ErrorKind {
	var unchecked *UncheckedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unchecked):
		return unchecked.Kind
	case errors.Is(err, jwk.ErrInvalidKeySet), errors.Is(err, jwk.ErrInvalidKey), errors.Is(err, jwk.ErrUnsupportedKey):
		return ConfigurationError
	default:
		return NetworkError
	}
}
