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

// Package jcs produces the RFC 8785 (JSON Canonicalization Scheme) encoding
// of JSON values, with object members ordered by Unicode code point as the
// CertNode signers order them. Signers and verifiers must agree on this
// encoding byte for byte: arrays keep their order, numbers and strings use
// the ECMAScript serialization and no whitespace is emitted.
package jcs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// ErrInvalidJSON is returned when the input is not a single well-formed JSON value.
var ErrInvalidJSON = errors.New("invalid JSON")

type undefined struct{}

// MarshalJSON encodes Undefined as null where it cannot be omitted, such as
// inside arrays or struct fields.
func (undefined) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Undefined marks an object member that is absent. Members holding Undefined
// are dropped from canonical output, unlike members holding nil, which are
// emitted as null.
var Undefined any = undefined{}

// Canonicalize returns the canonical encoding of v. Raw JSON (json.RawMessage
// or []byte) is parsed and re-encoded; any other value is first encoded with
// encoding/json.
func Canonicalize(v any) ([]byte, error) {
	switch value := v.(type) {
	case json.RawMessage:
		return Transform(value)
	case []byte:
		return Transform(value)
	case undefined:
		return nil, fmt.Errorf("%w: top-level value is undefined", ErrInvalidJSON)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(prune(v)); err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return Transform(buf.Bytes())
}

// Transform canonicalizes a serialized JSON value. Scalars are accepted at the
// top level as well as objects and arrays. Object members are ordered by the
// Unicode code points of their names.
func Transform(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, ErrInvalidJSON
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return buf.Bytes(), nil
}

type member struct {
	name  string
	value any
}

// decodeValue reads one value from dec, keeping object members as a list so
// duplicate names can be rejected.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		var members []member
		seen := make(map[string]struct{})
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			name := nameTok.(string)
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("duplicate key %q", name)
			}
			seen[name] = struct{}{}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			members = append(members, member{name: name, value: value})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		// UTF-8 byte order is code point order
		slices.SortFunc(members, func(a, b member) int {
			return strings.Compare(a.name, b.name)
		})
		return members, nil
	case '[':
		items := []any{}
		for dec.More() {
			item, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(value))
	case string:
		writeString(buf, value)
	case json.Number:
		f, err := strconv.ParseFloat(value.String(), 64)
		if err != nil {
			return fmt.Errorf("number %s: %w", value, err)
		}
		num, err := jsoncanonicalizer.NumberToJSON(f)
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case []member:
		buf.WriteByte('{')
		for i, m := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.name)
			buf.WriteByte(':')
			if err := writeValue(buf, m.value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unexpected value of type %T", v)
	}
	return nil
}

// writeString quotes s the way the canonicalizer library does: the short
// escapes for quote, backslash and the named controls, \u00xx for the other
// controls, and every other character literally.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, c)
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

// prune copies generic maps and slices, dropping object members set to
// Undefined. The input is never modified.
func prune(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, member := range value {
			if _, ok := member.(undefined); ok {
				continue
			}
			out[k] = prune(member)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = prune(item)
		}
		return out
	default:
		return v
	}
}
