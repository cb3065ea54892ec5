// Copyright 2026 fanjia1024
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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/ut"

	"docconv/internal/api/http/middleware"
)

func TestRouter_Metrics(t *testing.T) {
	s, _ := newTestServer(t)
	w := perform(s, "GET", "/metrics", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /metrics status = %d, want 200", got)
	}
	if !bytes.Contains(w.Result().Body(), []byte("docconv_worker_busy")) {
		t.Fatalf("metrics body missing docconv_worker_busy")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, middleware.WithCORSOrigins("https://app.example"))
	w := perform(s, "OPTIONS", "/api/formats", nil, ut.Header{Key: "Origin", Value: "https://app.example"})
	resp := w.Result()
	if resp.StatusCode() != 204 {
		t.Fatalf("OPTIONS status = %d, want 204", resp.StatusCode())
	}
	if got := string(resp.Header.Peek("Access-Control-Allow-Origin")); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	w = perform(s, "OPTIONS", "/api/formats", nil, ut.Header{Key: "Origin", Value: "https://other.example"})
	if got := string(w.Result().Header.Peek("Access-Control-Allow-Origin")); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	s, _ := newTestServer(t, middleware.WithRateLimit(1))
	if got := perform(s, "GET", "/api/health", nil).Result().StatusCode(); got != 200 {
		t.Fatalf("first request status = %d", got)
	}
	if got := perform(s, "GET", "/api/health", nil).Result().StatusCode(); got != 429 {
		t.Fatalf("second request status = %d, want 429", got)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []middleware.AccessRecord
}

func (s *recordingSink) Record(_ context.Context, rec middleware.AccessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func TestRouter_JWTAndAccessLog(t *testing.T) {
	_, r := newTestServer(t)
	jwtAuth, err := middleware.NewJWTAuth([]byte("test-key"), time.Hour, time.Hour, map[string]string{"alice": "secret"})
	if err != nil {
		t.Fatalf("NewJWTAuth: %v", err)
	}
	r.SetJWT(jwtAuth)
	sink := &recordingSink{}
	r.SetAccessSink(sink)
	s := r.Build(":0")

	if got := perform(s, "GET", "/api/formats", nil).Result().StatusCode(); got != 401 {
		t.Fatalf("unauthenticated status = %d, want 401", got)
	}
	if got := perform(s, "GET", "/api/health", nil).Result().StatusCode(); got != 200 {
		t.Fatalf("health should stay public, got %d", got)
	}
	if got := perform(s, "POST", "/api/auth/login", []byte(`{"username":"alice","password":"wrong"}`)).Result().StatusCode(); got != 401 {
		t.Fatalf("bad password status = %d, want 401", got)
	}

	w := perform(s, "POST", "/api/auth/login", []byte(`{"username":"alice","password":"secret"}`))
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("login status = %d: %s", got, w.Result().Body())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Result().Body(), &login); err != nil || login.Token == "" {
		t.Fatalf("login body: %s", w.Result().Body())
	}

	w = perform(s, "GET", "/api/formats/md/targets", nil, ut.Header{Key: "Authorization", Value: "Bearer " + login.Token})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("authenticated status = %d: %s", got, w.Result().Body())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	last := sink.records[len(sink.records)-1]
	if last.Action != "view_formats" || last.ResourceType != "format" || last.ResourceID != "md" {
		t.Fatalf("unexpected access record: %+v", last)
	}
	if last.Identity != "alice" || last.Status != 200 {
		t.Fatalf("unexpected identity/status: %+v", last)
	}
}
