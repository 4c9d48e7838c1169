// Copyright (c) 2026 CallVu Ltd.
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

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/callvu/leadbridge/internal/hubspot"
	"github.com/callvu/leadbridge/internal/pipeline"
	"github.com/callvu/leadbridge/internal/ratelimit"
	"github.com/callvu/leadbridge/internal/reconcile"
)

func testHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()

	crm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"42","new":true}]}`))
	}))
	t.Cleanup(crm.Close)

	orch := &pipeline.Orchestrator{
		TokenPresent: true,
		Limiter:      ratelimit.New(ratelimit.NewMemoryStore(), time.Hour, 10),
		Reconciler:   reconcile.New(hubspot.NewClient(crm.Client(), crm.URL), reconcile.StrategyUpsert),
	}
	return NewHandler(orch, []string{"callvu.com", "vercel.app"}, opts...)
}

func submitReq(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://www.callvu.com")
	return req
}

const validPayload = `{"email":"jane@acme-corp.com","industry":"BANKING","title":"VP","risk":"LOW","message":"hi"}`

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) pipeline.ErrorBody {
	t.Helper()
	var body pipeline.ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestServeSubmit_OK(t *testing.T) {
	h := testHandler(t)
	rr := httptest.NewRecorder()

	h.ServeSubmit(rr, submitReq(validPayload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body pipeline.SuccessBody
	json.Unmarshal(rr.Body.Bytes(), &body)
	if !body.Success || body.Action != "created" || body.ContactID != "42" {
		t.Errorf("body = %+v", body)
	}
}

func TestServeSubmit_MethodGate(t *testing.T) {
	h := testHandler(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/submit", nil)
		rr := httptest.NewRecorder()

		h.ServeSubmit(rr, req)

		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, rr.Code)
		}
		if body := decodeError(t, rr); body.Error != "METHOD_NOT_ALLOWED" {
			t.Errorf("%s: error = %q", method, body.Error)
		}
	}
}

func TestServeSubmit_OriginGate(t *testing.T) {
	h := testHandler(t)

	tests := []struct {
		name   string
		origin string
		want   int
	}{
		{"allowed domain", "https://www.callvu.com", http.StatusOK},
		{"preview deploy", "https://scorecard-abc.vercel.app", http.StatusOK},
		{"localhost", "http://localhost:3000", http.StatusOK},
		{"no origin", "", http.StatusOK},
		{"foreign domain", "https://evil.example.com", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validPayload))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			h.ServeSubmit(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				if body := decodeError(t, rr); body.Error != "UNAUTHORIZED_ORIGIN" {
					t.Errorf("error = %q", body.Error)
				}
			}
		})
	}
}

// TestServeSubmit_RefererFallback verifies Referer is consulted when
// Origin is absent.
func TestServeSubmit_RefererFallback(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validPayload))
	req.Header.Set("Referer", "https://blog.attacker.net/page")
	rr := httptest.NewRecorder()

	h.ServeSubmit(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestServeSubmit_GlobalThrottle(t *testing.T) {
	h := testHandler(t, WithGlobalThrottle(1, 1))

	rr := httptest.NewRecorder()
	h.ServeSubmit(rr, submitReq(validPayload))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeSubmit(rr, submitReq(validPayload))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rr.Code)
	}
	if body := decodeError(t, rr); body.Error != pipeline.CodeRateLimited {
		t.Errorf("error = %q", body.Error)
	}
}

// TestServeSubmit_PanicContained verifies a panic below the handler
// maps to the stable crash envelope.
func TestServeSubmit_PanicContained(t *testing.T) {
	// A nil reconciler makes the pipeline panic after admission.
	orch := &pipeline.Orchestrator{
		TokenPresent: true,
		Limiter:      ratelimit.New(ratelimit.NewMemoryStore(), time.Hour, 10),
	}
	h := NewHandler(orch, []string{"callvu.com"})

	rr := httptest.NewRecorder()
	h.ServeSubmit(rr, submitReq(validPayload))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Error != pipeline.CodeBridgeCrashed {
		t.Errorf("error = %q", body.Error)
	}
	if body.Message == "" {
		t.Error("expected panic detail outside production")
	}
}

// TestServeSubmit_PanicRedacted verifies production-mode redaction.
func TestServeSubmit_PanicRedacted(t *testing.T) {
	orch := &pipeline.Orchestrator{
		TokenPresent: true,
		Limiter:      ratelimit.New(ratelimit.NewMemoryStore(), time.Hour, 10),
	}
	h := NewHandler(orch, []string{"callvu.com"}, WithCrashRedaction(true))

	rr := httptest.NewRecorder()
	h.ServeSubmit(rr, submitReq(validPayload))

	body := decodeError(t, rr)
	if body.Message != "internal error" {
		t.Errorf("message = %q, want redacted", body.Message)
	}
}

func TestServeSubmit_BodyTooLarge(t *testing.T) {
	h := testHandler(t)

	huge := strings.Repeat("x", maxBodyBytes+1)
	rr := httptest.NewRecorder()
	h.ServeSubmit(rr, submitReq(`{"message":"`+huge+`"}`))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if body := decodeError(t, rr); body.Error != "INVALID_REQUEST_BODY" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestServeHealth(t *testing.T) {
	h := testHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
