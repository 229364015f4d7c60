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
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/certnode/receipt-verifier/pkg/jwk"
)

// VerifyBatch verifies receipts in parallel against the same key set. The
// returned results are in input order. workers bounds the parallelism; a
// value <= 0 uses GOMAXPROCS. The only error returned is the context's.
func (v *Validator) VerifyBatch(ctx context.Context, receipts []*Receipt, keys *jwk.KeySet, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(receipts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, r := range receipts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.Verify(r, keys)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// KeySource supplies key sets by URL, typically a keyset.Manager.
type KeySource interface {
	Fetch(ctx context.Context, url string) (*jwk.KeySet, error)
}

// VerifyWithSource obtains the key set for url from src and verifies r
// against it. When the key set cannot be obtained the receipt was not
// checked: the error is returned alongside a result carrying NETWORK_ERROR
// or CONFIGURATION_ERROR.
func (v *Validator) VerifyWithSource(ctx context.Context, r *Receipt, src KeySource, url string) (Result, error) {
	keys, err := src.Fetch(ctx, url)
	if err != nil {
		return failed(KindOf(err), "obtaining key set: %v", err), err
	}
	return v.Verify(r, keys), nil
}
