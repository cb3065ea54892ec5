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
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/ocr"
)

// Deps 引擎依赖
type Deps struct {
	Codecs *codec.Set
	// OCR 为 nil 或未启用时图像不提供 txt/docx 路由
	OCR    *ocr.Recognizer
	Logger *slog.Logger
}

func (d Deps) codecs() *codec.Set {
	if d.Codecs == nil {
		return codec.NewSet()
	}
	return d.Codecs
}

// NewDocumentEngine 文字处理文档引擎
func NewDocumentEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryDocument, d.codecs(), d.Logger,
		[]string{"pdf", "docx", "odt", "rtf"},
		[]string{"pdf", "docx", "odt", "rtf", "txt", "html", "md"})
}

// NewSpreadsheetEngine 表格引擎
func NewSpreadsheetEngine(d Deps) Engine {
	return newCodecEngine(format.CategorySpreadsheet, d.codecs(), d.Logger,
		[]string{"xlsx", "ods", "csv", "tsv"},
		[]string{"xlsx", "csv", "tsv", "pdf", "html", "txt"})
}

// NewPresentationEngine 演示文稿引擎
func NewPresentationEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryPresentation, d.codecs(), d.Logger,
		[]string{"pptx", "odp"},
		[]string{"pdf"})
}

// NewEmailEngine 邮件引擎
func NewEmailEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryEmail, d.codecs(), d.Logger,
		[]string{"eml", "mbox", "msg"},
		[]string{"eml", "mbox", "pdf", "txt", "html"})
}

// NewImageEngine 图像引擎；OCR 可用时增加 txt/docx 路由，并在内容提取时补充识别文本
func NewImageEngine(d Deps) Engine {
	encodes := []string{"jpg", "png", "gif", "bmp", "tiff", "pdf"}
	ocrOn := d.OCR != nil && d.OCR.Enabled()
	if ocrOn {
		encodes = append(encodes, "txt", "docx")
	}
	e := newCodecEngine(format.CategoryImage, d.codecs(), d.Logger,
		[]string{"jpg", "png", "gif", "bmp", "tiff", "webp"},
		encodes)
	if ocrOn {
		r := &recognizer{ocr: d.OCR, logger: e.logger}
		e.transforms["txt"] = r.transform
		e.transforms["docx"] = r.transform
		e.enrich = r.enrich
	}
	return e
}

// NewMarkupEngine 标记语言引擎
func NewMarkupEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryMarkup, d.codecs(), d.Logger,
		[]string{"md", "html", "xml", "json", "yaml", "latex"},
		[]string{"md", "html", "xml", "json", "yaml", "latex", "pdf", "docx", "txt"})
}

// NewEbookEngine 电子书引擎
func NewEbookEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryEbook, d.codecs(), d.Logger,
		[]string{"epub"},
		[]string{"epub", "pdf", "docx", "txt", "html"})
}

// NewArchiveEngine 归档引擎：只列出条目，不参与转换
func NewArchiveEngine(d Deps) Engine {
	e := newCodecEngine(format.CategoryArchive, d.codecs(), d.Logger, []string{"zip"}, nil)
	e.copySame = false
	return e
}

// NewPlainTextEngine 纯文本引擎
func NewPlainTextEngine(d Deps) Engine {
	return newCodecEngine(format.CategoryPlainText, d.codecs(), d.Logger,
		[]string{"txt"},
		[]string{"txt", "pdf", "docx", "html", "md", "rtf"})
}

// DefaultEngines 每个类别一个引擎，共享同一 codec.Set
func DefaultEngines(d Deps) []Engine {
	d.Codecs = d.codecs()
	return []Engine{
		NewDocumentEngine(d),
		NewSpreadsheetEngine(d),
		NewPresentationEngine(d),
		NewEmailEngine(d),
		NewImageEngine(d),
		NewMarkupEngine(d),
		NewEbookEngine(d),
		NewArchiveEngine(d),
		NewPlainTextEngine(d),
	}
}

// recognizer 图像 OCR 路由
type recognizer struct {
	ocr    *ocr.Recognizer
	logger *slog.Logger
}

// transform 位图 -> 识别文本内容，元数据沿用源图像
func (r *recognizer) transform(ctx context.Context, doc *codec.Parsed, _ format.Format) (*codec.Parsed, error) {
	text, conf, err := r.recognize(ctx, doc)
	if err != nil {
		return nil, err
	}
	meta := doc.Metadata.Clone()
	if meta.Properties == nil {
		meta.Properties = make(map[string]string)
	}
	meta.Properties["ocr_confidence"] = strconv.FormatFloat(conf, 'f', 2, 64)
	return &codec.Parsed{Content: codec.TextContent(text), Metadata: meta}, nil
}

// enrich 内容提取时补充识别文本；识别失败只记录日志
func (r *recognizer) enrich(ctx context.Context, doc *codec.Parsed) *codec.Parsed {
	text, _, err := r.recognize(ctx, doc)
	if err != nil {
		r.logger.Warn("ocr skipped", "error", err)
		return doc
	}
	recognized := codec.TextContent(text)
	out := *doc
	out.Content.Text = recognized.Text
	out.Content.Structure.Paragraphs = recognized.Structure.Paragraphs
	return &out
}

func (r *recognizer) recognize(ctx context.Context, doc *codec.Parsed) (string, float64, error) {
	if doc.Bitmap == nil {
		return "", 0, codec.ErrNoBitmap
	}
	data, err := codec.PNG(doc.Bitmap)
	if err != nil {
		return "", 0, fmt.Errorf("encode png for ocr: %w", err)
	}
	res, err := r.ocr.Recognize(ctx, data)
	if err != nil {
		return "", 0, err
	}
	return res.Text, res.Confidence, nil
}
