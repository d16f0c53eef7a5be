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
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"datagen-platform/pkg/metrics"
)

func newTestEngine(progress ProgressFunc) *server.Hertz {
	h := server.Default(server.WithHostPorts(":0"))
	Register(h, NewHandler("datagen-test", progress))
	return h
}

func TestHealthCheck(t *testing.T) {
	h := newTestEngine(nil)
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		t.Fatalf("HealthCheck body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "datagen-test" {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestMetrics(t *testing.T) {
	metrics.CheckpointHits.WithLabelValues("http_test").Inc()
	h := newTestEngine(nil)
	w := ut.PerformRequest(h.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("Metrics status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`datagen_checkpoint_hits_total{step="http_test"} 1`)) {
		t.Errorf("Metrics body missing counter:\n%s", resp.Body())
	}
	if ct := string(resp.Header.ContentType()); !bytes.HasPrefix([]byte(ct), []byte("text/plain")) {
		t.Errorf("Metrics content type: %s", ct)
	}
}

func TestProgress(t *testing.T) {
	h := newTestEngine(func() interface{} {
		return map[string]int{"persisted": 3, "abandoned": 1}
	})
	w := ut.PerformRequest(h.Engine, "GET", "/api/progress", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	var body map[string]int
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		t.Fatalf("Progress body: %v", err)
	}
	if body["persisted"] != 3 || body["abandoned"] != 1 {
		t.Errorf("Progress body: %s", resp.Body())
	}

	h = newTestEngine(nil)
	w = ut.PerformRequest(h.Engine, "GET", "/api/progress", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if w.Result().StatusCode() != 200 {
		t.Errorf("Progress without provider: %d", w.Result().StatusCode())
	}
}
