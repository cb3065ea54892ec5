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

// Package ingest 将提取出的文档内容转换为 eino schema.Document，供下游 RAG 索引使用
package ingest

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
)

// 元数据键
const (
	MetaDocumentID = "document_id"
	MetaName       = "name"
	MetaFormat     = "format"
	MetaTitle      = "title"
	MetaAuthor     = "author"
	MetaHeading    = "heading"
	MetaLevel      = "level"
	MetaIndex      = "index"
	MetaSource     = "_source"
	// metaContent Loader 附带的结构化内容，Transformer 据此按标题切分
	metaContent = "_docconv_content"
)

// baseMeta 文档级元数据
func baseMeta(doc common.Document) map[string]any {
	meta := map[string]any{
		MetaDocumentID: doc.ID,
		MetaName:       doc.Name,
		MetaFormat:     doc.Format.ID,
	}
	if doc.Metadata.Title != "" {
		meta[MetaTitle] = doc.Metadata.Title
	}
	if doc.Metadata.Author != "" {
		meta[MetaAuthor] = doc.Metadata.Author
	}
	return meta
}

// ContentToSchema 整个文档作为一个 schema.Document
func ContentToSchema(doc common.Document, content common.DocumentContent, sourceURI string) *schema.Document {
	meta := baseMeta(doc)
	if sourceURI != "" {
		meta[MetaSource] = sourceURI
	}
	meta[metaContent] = content
	return &schema.Document{
		ID:       doc.ID,
		Content:  strings.TrimSpace(codec.PlainText(content)),
		MetaData: meta,
	}
}

// Sections 按标题切分为多个 schema.Document：每个标题开启新分节，首个标题前的内容单独成节。
// 表格以制表符文本并入所在分节
func Sections(doc common.Document, content common.DocumentContent) []*schema.Document {
	type section struct {
		heading string
		level   int
		parts   []string
	}
	var sections []*section
	cur := &section{}
	for _, blk := range codec.Blocks(content) {
		if blk.Kind == codec.BlockHeading {
			if len(cur.parts) > 0 || cur.heading != "" {
				sections = append(sections, cur)
			}
			cur = &section{heading: blk.Text, level: blk.Level}
			continue
		}
		cur.parts = append(cur.parts, blk.Text)
	}
	if len(cur.parts) > 0 || cur.heading != "" {
		sections = append(sections, cur)
	}

	out := make([]*schema.Document, 0, len(sections))
	for i, s := range sections {
		meta := baseMeta(doc)
		meta[MetaIndex] = i
		text := strings.Join(s.parts, "\n\n")
		if s.heading != "" {
			meta[MetaHeading] = s.heading
			meta[MetaLevel] = s.level
			text = strings.TrimSpace(s.heading + "\n\n" + text)
		}
		out = append(out, &schema.Document{
			ID:       fmt.Sprintf("%s#%d", doc.ID, i),
			Content:  text,
			MetaData: meta,
		})
	}
	return out
}

// SchemaToDocument 从 schema.Document 元数据还原文档标识
func SchemaToDocument(d *schema.Document) common.Document {
	var doc common.Document
	if d == nil {
		return doc
	}
	doc.ID = d.ID
	if v, ok := d.MetaData[MetaDocumentID].(string); ok && v != "" {
		doc.ID = v
	}
	doc.Name, _ = d.MetaData[MetaName].(string)
	if id, ok := d.MetaData[MetaFormat].(string); ok {
		doc.Format, _ = format.ByID(id)
	}
	doc.Metadata.Title, _ = d.MetaData[MetaTitle].(string)
	doc.Metadata.Author, _ = d.MetaData[MetaAuthor].(string)
	return doc
}
