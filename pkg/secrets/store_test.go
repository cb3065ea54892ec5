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

package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore_Providers(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		errContains string
	}{
		{name: "memory", cfg: Config{Provider: "memory"}},
		{name: "env", cfg: Config{Provider: "env"}},
		{name: "default is env", cfg: Config{}},
		{name: "file", cfg: Config{Provider: "file", Config: map[string]string{"dir": t.TempDir()}}},
		{name: "file missing dir", cfg: Config{Provider: "file", Config: map[string]string{"dir": filepath.Join(t.TempDir(), "nope")}}, wantErr: true, errContains: "secrets dir"},
		{name: "unknown provider", cfg: Config{Provider: "unknown"}, wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestStoreBasicContract(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"env":    NewEnvStore("DOCCONV_TEST_"),
		"file":   fs,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "db.password", "value"); err != nil {
				t.Fatalf("set secret failed: %v", err)
			}
			got, err := s.Get(ctx, "db.password")
			if err != nil {
				t.Fatalf("get secret failed: %v", err)
			}
			if got != "value" {
				t.Fatalf("get secret = %q, want value", got)
			}
			keys, err := s.List(ctx, "db")
			if err != nil || len(keys) != 1 {
				t.Fatalf("list = %v, %v; want one key", keys, err)
			}
			if err := s.Delete(ctx, "db.password"); err != nil {
				t.Fatalf("delete secret failed: %v", err)
			}
			if _, err := s.Get(ctx, "db.password"); err == nil {
				t.Fatalf("expected error after delete")
			}
		})
	}
}

func TestEnvStore_KeyMapping(t *testing.T) {
	t.Setenv("DOCCONV_PDF_LICENSE", "abc")
	s := NewEnvStore("DOCCONV_")
	got, err := s.Get(context.Background(), "pdf-license")
	if err != nil || got != "abc" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestFileStore_TrimsNewlineAndRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "token"), []byte("t0k\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(context.Background(), "token")
	if err != nil || got != "t0k" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestMemoryStoreFrom_CopiesSeed(t *testing.T) {
	seed := map[string]string{"a": "1"}
	s := NewMemoryStoreFrom(seed)
	seed["a"] = "2"
	got, _ := s.Get(context.Background(), "a")
	if got != "1" {
		t.Fatalf("seed mutation leaked into store: %q", got)
	}
}
