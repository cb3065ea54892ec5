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

package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWritePrometheus_ContainsConversionMetrics(t *testing.T) {
	ConversionTotal.WithLabelValues("completed").Inc()
	ConversionDuration.WithLabelValues("docx", "pdf").Observe(0.2)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"docconv_conversion_total", "docconv_conversion_duration_seconds"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %s", name)
		}
	}
}

func TestWorkerBusyGauge(t *testing.T) {
	WorkerBusy.Set(0)
	WorkerBusy.Inc()
	WorkerBusy.Inc()
	WorkerBusy.Dec()
	if got := testutil.ToFloat64(WorkerBusy); got != 1 {
		t.Fatalf("WorkerBusy = %v, want 1", got)
	}
}
