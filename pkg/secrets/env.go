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
	"fmt"
	"os"
	"sort"
	"strings"
)

// envStore 以环境变量保存 secret，key 映射为 PREFIX + 大写 key（"." 与 "-" 替换为 "_"）
type envStore struct {
	prefix string
}

// NewEnvStore 创建环境变量 secret store
func NewEnvStore(prefix string) Store {
	return &envStore{prefix: prefix}
}

func (e *envStore) name(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_")
	return e.prefix + strings.ToUpper(r.Replace(key))
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(e.name(key))
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable not set: %s", e.name(key))
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(e.name(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(e.name(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	want := e.name(prefix)
	var keys []string
	for _, env := range os.Environ() {
		name, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(name, want) {
			keys = append(keys, strings.ToLower(strings.TrimPrefix(name, e.prefix)))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
