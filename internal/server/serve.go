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

package server

import (
	"context"
	"fmt"
	"sync"
)

// Serve starts the verification API and the metrics endpoint and blocks
// until both have shut down on SIGINT or SIGTERM.
func Serve(ctx context.Context, hc *HTTPConfig, svc *Service) error {
	if err := hc.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}
	var wg sync.WaitGroup

	apiServer := newHTTPServer(hc, svc)
	apiServer.start(&wg)

	metricsServer := newHTTPMetrics(ctx, hc)
	metricsServer.start(&wg)

	wg.Wait()
	return nil
}
