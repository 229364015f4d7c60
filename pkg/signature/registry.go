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

package signature

import (
	"fmt"
	"sort"
)

var (
	// AllowedAlgorithms is the default set of algorithms accepted for
	// receipt signatures.
	AllowedAlgorithms = []string{
		AlgES256,
		AlgEdDSA,
	}
)

// Registry holds the verifiers for an allow-listed set of algorithms.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry accepts a list of algorithm names and builds a registry of
// their verifiers. A nil list selects AllowedAlgorithms.
func NewRegistry(algorithms []string) (*Registry, error) {
	if algorithms == nil {
		algorithms = AllowedAlgorithms
	}
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("at least one signing algorithm must be allowed")
	}
	verifiers := make(map[string]Verifier, len(algorithms))
	for _, alg := range algorithms {
		v, err := ForAlgorithm(alg)
		if err != nil {
			return nil, fmt.Errorf("parsing signing algorithm: %w", err)
		}
		verifiers[alg] = v
	}
	return &Registry{verifiers: verifiers}, nil
}

// Verifier returns the verifier for alg if alg is permitted.
func (r *Registry) Verifier(alg string) (Verifier, error) {
	v, ok := r.verifiers[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not permitted", ErrUnsupportedAlgorithm, alg)
	}
	return v, nil
}

// Algorithms returns the permitted algorithm names, sorted.
func (r *Registry) Algorithms() []string {
	algs := make([]string, 0, len(r.verifiers))
	for alg := range r.verifiers {
		algs = append(algs, alg)
	}
	sort.Strings(algs)
	return algs
}
