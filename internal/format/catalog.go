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

// Package format 静态格式目录与转换路径图，启动时构建一次，之后只读
package format

import (
	"mime"
	"strings"
)

// Category 格式类别
type Category string

const (
	CategoryDocument     Category = "DOCUMENT"
	CategorySpreadsheet  Category = "SPREADSHEET"
	CategoryPresentation Category = "PRESENTATION"
	CategoryEmail        Category = "EMAIL"
	CategoryImage        Category = "IMAGE"
	CategoryMarkup       Category = "MARKUP"
	CategoryEbook        Category = "EBOOK"
	CategoryArchive      Category = "ARCHIVE"
	CategoryPlainText    Category = "PLAIN_TEXT"
)

// Categories 全部类别，按目录顺序
func Categories() []Category {
	return []Category{
		CategoryDocument, CategorySpreadsheet, CategoryPresentation, CategoryEmail,
		CategoryImage, CategoryMarkup, CategoryEbook, CategoryArchive, CategoryPlainText,
	}
}

// Format 不可变的格式描述；ID 全局唯一，Extension 不要求唯一
type Format struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Extension       string   `json:"extension"`
	MimeType        string   `json:"mime_type"`
	Category        Category `json:"category"`
	InputSupported  bool     `json:"input_supported"`
	OutputSupported bool     `json:"output_supported"`
	RequiresOCR     bool     `json:"requires_ocr"`
}

// IsZero 是否为零值（未知格式）
func (f Format) IsZero() bool {
	return f.ID == ""
}

func (f Format) String() string {
	return f.ID
}

func newFormat(id, name, ext, mimeType string, c Category) Format {
	return Format{ID: id, Name: name, Extension: ext, MimeType: mimeType, Category: c, InputSupported: true, OutputSupported: true}
}

func inputOnly(f Format) Format {
	f.OutputSupported = false
	return f
}

func ocr(f Format) Format {
	f.RequiresOCR = true
	return f
}

var (
	PDF   = newFormat("pdf", "PDF Document", "pdf", "application/pdf", CategoryDocument)
	DOCX  = newFormat("docx", "Microsoft Word", "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument)
	DOC   = newFormat("doc", "Microsoft Word 97-2003", "doc", "application/msword", CategoryDocument)
	RTF   = newFormat("rtf", "Rich Text Format", "rtf", "application/rtf", CategoryDocument)
	ODT   = newFormat("odt", "OpenDocument Text", "odt", "application/vnd.oasis.opendocument.text", CategoryDocument)
	PAGES = inputOnly(newFormat("pages", "Apple Pages", "pages", "application/x-iwork-pages-sffpages", CategoryDocument))

	XLSX = newFormat("xlsx", "Microsoft Excel", "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", CategorySpreadsheet)
	XLS  = newFormat("xls", "Microsoft Excel 97-2003", "xls", "application/vnd.ms-excel", CategorySpreadsheet)
	ODS  = newFormat("ods", "OpenDocument Spreadsheet", "ods", "application/vnd.oasis.opendocument.spreadsheet", CategorySpreadsheet)
	CSV  = newFormat("csv", "Comma Separated Values", "csv", "text/csv", CategorySpreadsheet)
	TSV  = newFormat("tsv", "Tab Separated Values", "tsv", "text/tab-separated-values", CategorySpreadsheet)

	PPTX = newFormat("pptx", "Microsoft PowerPoint", "pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation", CategoryPresentation)
	PPT  = newFormat("ppt", "Microsoft PowerPoint 97-2003", "ppt", "application/vnd.ms-powerpoint", CategoryPresentation)
	ODP  = newFormat("odp", "OpenDocument Presentation", "odp", "application/vnd.oasis.opendocument.presentation", CategoryPresentation)
	KEY  = inputOnly(newFormat("key", "Apple Keynote", "key", "application/x-iwork-keynote-sffkey", CategoryPresentation))

	MSG  = newFormat("msg", "Outlook Message", "msg", "application/vnd.ms-outlook", CategoryEmail)
	EML  = newFormat("eml", "Email Message", "eml", "message/rfc822", CategoryEmail)
	MBOX = newFormat("mbox", "Mailbox", "mbox", "application/mbox", CategoryEmail)

	JPG  = ocr(newFormat("jpg", "JPEG Image", "jpg", "image/jpeg", CategoryImage))
	PNG  = ocr(newFormat("png", "PNG Image", "png", "image/png", CategoryImage))
	TIFF = ocr(newFormat("tiff", "TIFF Image", "tiff", "image/tiff", CategoryImage))
	BMP  = ocr(newFormat("bmp", "Bitmap Image", "bmp", "image/bmp", CategoryImage))
	WEBP = ocr(newFormat("webp", "WebP Image", "webp", "image/webp", CategoryImage))
	GIF  = ocr(newFormat("gif", "GIF Image", "gif", "image/gif", CategoryImage))

	MD    = newFormat("md", "Markdown", "md", "text/markdown", CategoryMarkup)
	HTML  = newFormat("html", "HTML Document", "html", "text/html", CategoryMarkup)
	XML   = newFormat("xml", "XML Document", "xml", "text/xml", CategoryMarkup)
	JSON  = newFormat("json", "JSON Document", "json", "application/json", CategoryMarkup)
	YAML  = newFormat("yaml", "YAML Document", "yaml", "application/x-yaml", CategoryMarkup)
	LATEX = newFormat("latex", "LaTeX Document", "tex", "application/x-latex", CategoryMarkup)

	EPUB = newFormat("epub", "EPUB eBook", "epub", "application/epub+zip", CategoryEbook)
	MOBI = newFormat("mobi", "Mobipocket eBook", "mobi", "application/x-mobipocket-ebook", CategoryEbook)
	AZW  = newFormat("azw", "Kindle eBook", "azw", "application/vnd.amazon.ebook", CategoryEbook)
	AZW3 = newFormat("azw3", "Kindle eBook (KF8)", "azw3", "application/vnd.amazon.ebook", CategoryEbook)

	ZIP    = newFormat("zip", "ZIP Archive", "zip", "application/zip", CategoryArchive)
	RAR    = newFormat("rar", "RAR Archive", "rar", "application/x-rar-compressed", CategoryArchive)
	SevenZ = newFormat("7z", "7-Zip Archive", "7z", "application/x-7z-compressed", CategoryArchive)

	TXT = newFormat("txt", "Plain Text", "txt", "text/plain", CategoryPlainText)
)

// all 目录顺序
var all = []Format{
	PDF, DOCX, DOC, RTF, ODT, PAGES,
	XLSX, XLS, ODS, CSV, TSV,
	PPTX, PPT, ODP, KEY,
	MSG, EML, MBOX,
	JPG, PNG, TIFF, BMP, WEBP, GIF,
	MD, HTML, XML, JSON, YAML, LATEX,
	EPUB, MOBI, AZW, AZW3,
	ZIP, RAR, SevenZ,
	TXT,
}

var byID = func() map[string]Format {
	m := make(map[string]Format, len(all))
	for _, f := range all {
		if _, dup := m[f.ID]; dup {
			panic("format: duplicate id " + f.ID)
		}
		m[f.ID] = f
	}
	return m
}()

// extensionAliases 常见别名扩展名
var extensionAliases = map[string]string{
	"jpeg":     "jpg",
	"tif":      "tiff",
	"htm":      "html",
	"yml":      "yaml",
	"markdown": "md",
	"text":     "txt",
}

// All 返回全部格式（目录顺序的副本）
func All() []Format {
	out := make([]Format, len(all))
	copy(out, all)
	return out
}

// ByID 按 id 查找
func ByID(id string) (Format, bool) {
	f, ok := byID[strings.ToLower(id)]
	return f, ok
}

// ByExtension 按扩展名查找，大小写不敏感，允许前导 "."；多个格式共享扩展名时返回目录中第一个
func ByExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if alias, ok := extensionAliases[ext]; ok {
		ext = alias
	}
	for _, f := range all {
		if f.Extension == ext {
			return f, true
		}
	}
	return Format{}, false
}

// ByFileName 按文件名扩展名查找
func ByFileName(name string) (Format, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return Format{}, false
	}
	return ByExtension(name[i+1:])
}

// ByMimeType 按 MIME 查找，忽略参数（如 charset）与大小写
func ByMimeType(mimeType string) (Format, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	for _, f := range all {
		if f.MimeType == mt {
			return f, true
		}
	}
	return Format{}, false
}

// InCategory 返回某类别的全部格式（目录顺序）
func InCategory(c Category) []Format {
	var out []Format
	for _, f := range all {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}
