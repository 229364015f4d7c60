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

// Resolve returns the key identified by kid. Keys whose thumbprint equals kid
// are preferred; only when no thumbprint matches is the explicit kid member
// consulted. Within each pass the first key in list order wins.
//
// Resolve performs no I/O and does not modify keys, so it may be called
// concurrently on a shared slice.
func Resolve(kid string, keys []JWK) (JWK, bool) {
	if kid == "" {
		return JWK{}, false
	}
	for _, k := range keys {
		if tp, err := Thumbprint(k); err == nil && tp == kid {
			return k, true
		}
	}
	for _, k := range keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}
