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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidKeySet is returned when a key set fails structural validation.
var ErrInvalidKeySet = errors.New("invalid key set")

// KeySet is an ordered collection of keys. Identifiers are not required to
// be unique; lookups return the first match in list order.
type KeySet struct {
	Keys []JWK `json:"keys"`
}

const keySetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["keys"],
  "properties": {
    "keys": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["kty", "crv", "x"],
        "properties": {
          "kty": {"type": "string", "enum": ["EC", "OKP"]},
          "crv": {"type": "string"},
          "x":   {"type": "string"},
          "y":   {"type": "string"},
          "kid": {"type": "string"},
          "alg": {"type": "string"},
          "use": {"type": "string"}
        }
      }
    }
  }
}`

var compiledKeySetSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(keySetSchema))
})

// ParseKeySet decodes a JWKS document ({"keys": [...]}) and validates it
// against the key set schema and the per-key structural rules.
func ParseKeySet(data []byte) (*KeySet, error) {
	schema, err := compiledKeySetSchema()
	if err != nil {
		return nil, fmt.Errorf("loading key set schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySet, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeySet, strings.Join(msgs, "; "))
	}
	var ks KeySet
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySet, err)
	}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return &ks, nil
}

// Validate checks that the set is non-empty and that every key is a
// structurally valid supported key.
func (s *KeySet) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: key set is nil", ErrInvalidKeySet)
	}
	if len(s.Keys) == 0 {
		return fmt.Errorf("%w: key set contains no keys", ErrInvalidKeySet)
	}
	for i, k := range s.Keys {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("%w: key %d: %w", ErrInvalidKeySet, i, err)
		}
	}
	return nil
}

// Resolve looks up the key identified by kid. See Resolve.
func (s *KeySet) Resolve(kid string) (JWK, bool) {
	if s == nil {
		return JWK{}, false
	}
	return Resolve(kid, s.Keys)
}

// Thumbprints returns the thumbprints of all keys in list order, skipping
// keys that cannot produce one.
func (s *KeySet) Thumbprints() []string {
	if s == nil {
		return nil
	}
	thumbprints := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		tp, err := Thumbprint(k)
		if err != nil {
			continue
		}
		thumbprints = append(thumbprints, tp)
	}
	return thumbprints
}
