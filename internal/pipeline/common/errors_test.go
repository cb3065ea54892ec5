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

package common

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPipelineError_Error(t *testing.T) {
	t.Run("no cause", func(t *testing.T) {
		e := NewPipelineError(StageValidate, "pdf -> zip", nil)
		if s := e.Error(); s != "validate: pdf -> zip" {
			t.Errorf("Error() = %q", s)
		}
	})
	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("io error")
		e := NewPipelineError(StageMaterial, "read blob", cause)
		if !strings.Contains(e.Error(), "io error") {
			t.Errorf("Error() = %q, want cause included", e.Error())
		}
		if e.Unwrap() != cause {
			t.Error("Unwrap() should return cause")
		}
	})
}

func TestPipelineError_IsSentinel(t *testing.T) {
	e := fmt.Errorf("wrapped: %w", NewPipelineError(StageEngine, "docx", ErrEngineFailed))
	if !errors.Is(e, ErrEngineFailed) {
		t.Error("errors.Is should reach the sentinel through PipelineError")
	}
	got, ok := GetPipelineError(e)
	if !ok || got.Stage != StageEngine {
		t.Errorf("GetPipelineError: ok=%v got=%v", ok, got)
	}
	if IsPipelineError(errors.New("other")) {
		t.Error("plain error is not a PipelineError")
	}
}

func TestValidationError(t *testing.T) {
	e := NewValidationError("target", "unknown format")
	if e.Error() != "invalid target: unknown format" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !IsValidationError(fmt.Errorf("x: %w", e)) {
		t.Error("IsValidationError should unwrap")
	}
}
