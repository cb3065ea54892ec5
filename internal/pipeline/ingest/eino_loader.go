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
	"fmt"
	"strings"

	einodoc "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"docconv/internal/pipeline/common"
)

// URIScheme Loader 识别的文档 URI 前缀
const URIScheme = "docconv://"

// DocumentGetter 按 id 读取文档记录
type DocumentGetter interface {
	Get(ctx context.Context, id string) (*common.Document, error)
}

// ContentExtractor 提取文档内容
type ContentExtractor interface {
	ExtractContent(ctx context.Context, doc common.Document, opts common.ExtractionOptions) (common.DocumentContent, error)
}

// DocumentLoader 实现 Eino document.Loader：Source.URI 为 docconv://<id> 或裸 id
type DocumentLoader struct {
	docs      DocumentGetter
	extractor ContentExtractor
}

// NewDocumentLoader 创建 Loader
func NewDocumentLoader(docs DocumentGetter, extractor ContentExtractor) *DocumentLoader {
	return &DocumentLoader{docs: docs, extractor: extractor}
}

// Load 实现 github.com/cloudwego/eino/components/document.Loader
func (l *DocumentLoader) Load(ctx context.Context, src einodoc.Source, _ ...einodoc.LoaderOption) ([]*schema.Document, error) {
	id := strings.TrimSpace(src.URI)
	if strings.HasPrefix(strings.ToLower(id), URIScheme) {
		id = id[len(URIScheme):]
	}
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: unsupported source uri %q", common.ErrInvalidInput, src.URI)
	}

	doc, err := l.docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	opts := common.DefaultExtractionOptions()
	opts.ExtractImages = false
	content, err := l.extractor.ExtractContent(ctx, *doc, opts)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", id, err)
	}
	return []*schema.Document{ContentToSchema(*doc, content, src.URI)}, nil
}
