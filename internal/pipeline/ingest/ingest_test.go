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
	"errors"
	"testing"

	einodoc "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
)

func sampleContent() common.DocumentContent {
	return common.DocumentContent{
		Text: "Preface text\n\nIntro\n\nFirst body.\n\nUsage\n\nSecond body.",
		Structure: common.DocumentStructure{
			Headings: []common.Heading{
				{Text: "Intro", Level: 1},
				{Text: "Usage", Level: 2},
			},
			Paragraphs: 3,
		},
	}
}

func TestSections_SplitOnHeadings(t *testing.T) {
	doc := common.Document{ID: "doc1", Name: "guide.md", Format: format.MD, Metadata: common.DocumentMetadata{Title: "Guide"}}
	out := Sections(doc, sampleContent())
	if len(out) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(out))
	}
	if out[0].Content != "Preface text" {
		t.Errorf("preface: %q", out[0].Content)
	}
	if _, ok := out[0].MetaData[MetaHeading]; ok {
		t.Error("preface should have no heading")
	}
	if out[1].ID != "doc1#1" || out[1].MetaData[MetaHeading] != "Intro" || out[1].MetaData[MetaLevel] != 1 {
		t.Errorf("section 1: %+v", out[1])
	}
	if out[2].Content != "Usage\n\nSecond body." {
		t.Errorf("section 2 content: %q", out[2].Content)
	}
	if out[2].MetaData[MetaTitle] != "Guide" || out[2].MetaData[MetaFormat] != "md" {
		t.Errorf("section meta: %v", out[2].MetaData)
	}
}

func TestSchemaToDocument(t *testing.T) {
	sd := ContentToSchema(common.Document{ID: "d", Name: "a.docx", Format: format.DOCX}, sampleContent(), "docconv://d")
	doc := SchemaToDocument(sd)
	if doc.ID != "d" || doc.Name != "a.docx" || doc.Format.ID != "docx" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if sd.MetaData[MetaSource] != "docconv://d" {
		t.Errorf("source: %v", sd.MetaData[MetaSource])
	}
}

type fakeDocs map[string]*common.Document

func (f fakeDocs) Get(_ context.Context, id string) (*common.Document, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractContent(context.Context, common.Document, common.ExtractionOptions) (common.DocumentContent, error) {
	return sampleContent(), nil
}

func TestDocumentLoader_Load(t *testing.T) {
	docs := fakeDocs{"doc1": {ID: "doc1", Name: "guide.md", Format: format.MD}}
	var loader einodoc.Loader = NewDocumentLoader(docs, fakeExtractor{})
	ctx := context.Background()

	out, err := loader.Load(ctx, einodoc.Source{URI: "docconv://doc1"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || out[0].ID != "doc1" {
		t.Fatalf("unexpected output: %+v", out)
	}

	if _, err := loader.Load(ctx, einodoc.Source{URI: "missing"}); err == nil {
		t.Error("expected error for unknown id")
	}
	if _, err := loader.Load(ctx, einodoc.Source{URI: "https://example.com/a"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSectionTransformer_Transform(t *testing.T) {
	loader := NewDocumentLoader(fakeDocs{"doc1": {ID: "doc1", Format: format.MD}}, fakeExtractor{})
	ctx := context.Background()
	loaded, err := loader.Load(ctx, einodoc.Source{URI: "doc1"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var trans einodoc.Transformer = NewSectionTransformer()
	out, err := trans.Transform(ctx, loaded)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(out))
	}
	if out[0].MetaData[MetaSource] != "doc1" {
		t.Errorf("source not propagated: %v", out[0].MetaData)
	}

	// 无结构化内容时按纯文本处理
	plain, err := trans.Transform(ctx, []*schema.Document{{ID: "p", Content: "one\n\ntwo"}})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(plain) != 1 || plain[0].Content != "one\n\ntwo" {
		t.Errorf("plain: %+v", plain)
	}

	empty, err := trans.Transform(ctx, nil)
	if err != nil || empty != nil {
		t.Errorf("expected nil output, got %v, %v", empty, err)
	}
}
