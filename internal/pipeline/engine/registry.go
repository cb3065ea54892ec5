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

package engine

import (
	"fmt"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
)

// Registry 类别 -> 引擎的只读映射，构建后可并发读
type Registry struct {
	engines map[format.Category]Engine
}

// NewRegistry 注册引擎并做一致性检查：每个类别恰好一个引擎
func NewRegistry(engines ...Engine) (*Registry, error) {
	r := &Registry{engines: make(map[format.Category]Engine, len(engines))}
	for _, e := range engines {
		if e == nil {
			continue
		}
		c := e.Category()
		if _, dup := r.engines[c]; dup {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicateEngine, c)
		}
		r.engines[c] = e
	}
	for _, c := range format.Categories() {
		if _, ok := r.engines[c]; !ok {
			return nil, fmt.Errorf("%w: %s", common.ErrMissingEngine, c)
		}
	}
	return r, nil
}

// NewDefaultRegistry 默认引擎集合的注册表
func NewDefaultRegistry(d Deps) (*Registry, error) {
	return NewRegistry(DefaultEngines(d)...)
}

// For 按类别取引擎
func (r *Registry) For(c format.Category) (Engine, bool) {
	e, ok := r.engines[c]
	return e, ok
}

// Supports 路径图之外由引擎给出的二次判断
func (r *Registry) Supports(source, target format.Format) bool {
	e, ok := r.engines[source.Category]
	return ok && e.SupportsConversion(source, target)
}
