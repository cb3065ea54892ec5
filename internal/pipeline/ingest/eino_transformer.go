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

package ingest

import (
	"context"

	einodoc "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
)

// SectionTransformer 实现 Eino document.Transformer，把整篇文档按标题切分为分节。
// 输入不带结构化内容时按空行分段、不切分
type SectionTransformer struct{}

// NewSectionTransformer 创建 Transformer
func NewSectionTransformer() *SectionTransformer {
	return &SectionTransformer{}
}

// Transform 实现 github.com/cloudwego/eino/components/document.Transformer
func (t *SectionTransformer) Transform(_ context.Context, src []*schema.Document, _ ...einodoc.TransformerOption) ([]*schema.Document, error) {
	if len(src) == 0 {
		return nil, nil
	}
	var out []*schema.Document
	for _, d := range src {
		if d == nil {
			continue
		}
		content, ok := d.MetaData[metaContent].(common.DocumentContent)
		if !ok {
			content = codec.TextContent(d.Content)
		}
		sections := Sections(SchemaToDocument(d), content)
		if source, ok := d.MetaData[MetaSource]; ok {
			for _, s := range sections {
				s.MetaData[MetaSource] = source
			}
		}
		out = append(out, sections...)
	}
	return out, nil
}
