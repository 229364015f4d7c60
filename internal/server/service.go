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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/certnode/receipt-verifier/pkg/jwk"
	"github.com/certnode/receipt-verifier/pkg/receipt"
)

// VerifyRequest is the body of POST /api/v1/verify. When JWKS is omitted
// the service's configured key source is used.
type VerifyRequest struct {
	Receipt *receipt.Receipt `json:"receipt"`
	JWKS    *jwk.KeySet      `json:"jwks,omitempty"`
}

// Service exposes receipt verification over HTTP.
type Service struct {
	validator *receipt.Validator
	source    receipt.KeySource
	jwksURL   string
	logger    *slog.Logger
}

type ServiceOption func(*Service)

// WithKeySource makes the service fetch keys from jwksURL through src for
// requests that carry no key set.
func WithKeySource(src receipt.KeySource, jwksURL string) ServiceOption {
	return func(s *Service) {
		s.source = src
		s.jwksURL = jwksURL
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(validator *receipt.Validator, opts ...ServiceOption) *Service {
	s := &Service{
		validator: validator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes the service's endpoints.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/verify", s.verify)
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

func (s *Service) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		s.respond(w, status, receipt.Result{
			Code:   receipt.MalformedReceipt,
			Reason: fmt.Sprintf("decoding request: %v", err),
		})
		return
	}

	var res receipt.Result
	switch {
	case req.JWKS != nil:
		if err := req.JWKS.Validate(); err != nil {
			res = receipt.Result{Code: receipt.ConfigurationError, Reason: err.Error()}
			break
		}
		res = s.validator.Verify(req.Receipt, req.JWKS)
	case s.source != nil:
		var err error
		res, err = s.validator.VerifyWithSource(r.Context(), req.Receipt, s.source, s.jwksURL)
		if err != nil {
			s.logger.Warn("key set unavailable", "url", s.jwksURL, "error", err)
		}
	default:
		res = receipt.Result{Code: receipt.ConfigurationError, Reason: "no key set supplied and no key source configured"}
	}

	label := string(res.Code)
	if res.OK {
		label = "ok"
	}
	getMetrics().verifications.WithLabelValues(label).Inc()
	s.respond(w, StatusFor(res), res)
}

func (s *Service) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"SERVING"}` + "\n"))
}

func (s *Service) respond(w http.ResponseWriter, status int, res receipt.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

// StatusFor maps a verification result to an HTTP status code.
func StatusFor(res receipt.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Code {
	case receipt.InvalidSignature, receipt.KeyNotFound:
		return http.StatusUnauthorized
	case receipt.ConfigurationError:
		return http.StatusBadRequest
	case receipt.NetworkError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}
