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

package format

// categoryRule 类别内互转 + 跨类别汇点
type categoryRule struct {
	siblings bool
	sinks    []string
}

// categoryRules 固定的类别路由规则；ARCHIVE 仅可解包，不建模为转换
var categoryRules = map[Category]categoryRule{
	CategoryDocument:     {siblings: true, sinks: []string{"txt", "html", "md"}},
	CategorySpreadsheet:  {siblings: true, sinks: []string{"pdf", "html", "txt"}},
	CategoryPresentation: {siblings: true, sinks: []string{"pdf"}},
	CategoryEmail:        {siblings: true, sinks: []string{"pdf", "txt", "html"}},
	CategoryImage:        {siblings: true, sinks: []string{"pdf", "txt", "docx"}}, // txt/docx 经 OCR
	CategoryMarkup:       {siblings: true, sinks: []string{"pdf", "docx", "txt"}},
	CategoryEbook:        {siblings: true, sinks: []string{"pdf", "docx", "txt", "html"}},
	CategoryArchive:      {},
	CategoryPlainText:    {siblings: true, sinks: []string{"pdf", "docx", "html", "md", "rtf"}},
}

// PathGraph 源格式 id -> 可达目标格式 id 集合，构建后只读，可并发读
type PathGraph struct {
	formats []Format
	paths   map[string]map[string]struct{}
}

// NewPathGraph 基于给定格式集合按类别规则构建路径图；OutputSupported=false 的格式永不作为目标
func NewPathGraph(formats []Format) *PathGraph {
	known := make(map[string]Format, len(formats))
	for _, f := range formats {
		known[f.ID] = f
	}
	g := &PathGraph{
		formats: append([]Format(nil), formats...),
		paths:   make(map[string]map[string]struct{}, len(formats)),
	}
	for _, src := range formats {
		rule, ok := categoryRules[src.Category]
		if !ok {
			continue
		}
		targets := make(map[string]struct{})
		add := func(f Format) {
			if f.OutputSupported {
				targets[f.ID] = struct{}{}
			}
		}
		if rule.siblings {
			for _, f := range formats {
				if f.Category == src.Category {
					add(f)
				}
			}
		}
		for _, id := range rule.sinks {
			if f, ok := known[id]; ok {
				add(f)
			}
		}
		g.paths[src.ID] = targets
	}
	return g
}

// defaultGraph 默认目录上的路径图
var defaultGraph = NewPathGraph(all)

// DefaultPathGraph 返回基于完整目录的路径图
func DefaultPathGraph() *PathGraph {
	return defaultGraph
}

// IsConvertible 源到目标是否可转换；未知格式一律 false
func (g *PathGraph) IsConvertible(source, target Format) bool {
	targets, ok := g.paths[source.ID]
	if !ok {
		return false
	}
	_, ok = targets[target.ID]
	return ok
}

// SupportedTargets 源格式的全部可达目标，按目录顺序
func (g *PathGraph) SupportedTargets(source Format) []Format {
	targets := g.paths[source.ID]
	if len(targets) == 0 {
		return nil
	}
	out := make([]Format, 0, len(targets))
	for _, f := range g.formats {
		if _, ok := targets[f.ID]; ok {
			out = append(out, f)
		}
	}
	return out
}

// IsConvertible 默认路径图上的 IsConvertible
func IsConvertible(source, target Format) bool {
	return defaultGraph.IsConvertible(source, target)
}

// SupportedTargets 默认路径图上的 SupportedTargets
func SupportedTargets(source Format) []Format {
	return defaultGraph.SupportedTargets(source)
}
