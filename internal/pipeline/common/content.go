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

package common

// DocumentContent 引擎提取的内容中间表示
type DocumentContent struct {
	Text          string            `json:"text"`
	FormattedText string            `json:"formatted_text,omitempty"` // HTML
	Images        []DocumentImage   `json:"images,omitempty"`
	Tables        []DocumentTable   `json:"tables,omitempty"`
	Links         []DocumentLink    `json:"links,omitempty"`
	Structure     DocumentStructure `json:"structure"`
}

// DocumentImage 文档内图片
type DocumentImage struct {
	ID          string `json:"id"`
	Data        []byte `json:"data,omitempty"`
	MimeType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description,omitempty"`
}

// DocumentTable 文档内表格
type DocumentTable struct {
	ID      string     `json:"id"`
	Rows    int        `json:"rows"`
	Columns int        `json:"columns"`
	Cells   [][]string `json:"cells"`
}

// DocumentLink 超链接
type DocumentLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// DocumentStructure 文档大纲
type DocumentStructure struct {
	Headings   []Heading `json:"headings,omitempty"`
	Paragraphs int       `json:"paragraphs"`
	Sections   int       `json:"sections"`
	Pages      int       `json:"pages"`
}

// Heading 标题，PageNumber 为 0 表示未知
type Heading struct {
	Text       string `json:"text"`
	Level      int    `json:"level"`
	PageNumber int    `json:"page_number,omitempty"`
}

// NewTable 由单元格构造表格，列数取最宽行
func NewTable(id string, cells [][]string) DocumentTable {
	cols := 0
	for _, row := range cells {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return DocumentTable{ID: id, Rows: len(cells), Columns: cols, Cells: cells}
}

// Filter 按提取选项裁剪内容
func (c DocumentContent) Filter(opts ExtractionOptions) DocumentContent {
	out := c
	if !opts.ExtractText {
		out.Text = ""
	}
	if !opts.PreserveFormatting {
		out.FormattedText = ""
	}
	if !opts.ExtractImages {
		out.Images = nil
	}
	if !opts.ExtractTables {
		out.Tables = nil
	}
	if !opts.ExtractHyperlinks {
		out.Links = nil
	}
	return out
}
