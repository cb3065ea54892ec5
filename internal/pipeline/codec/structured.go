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

package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"docconv/internal/pipeline/common"
)

// structuredDoc JSON/YAML/XML 的统一输出结构，解码时可无损还原
type structuredDoc struct {
	XMLName  xml.Name          `json:"-" yaml:"-" xml:"document"`
	Title    string            `json:"title,omitempty" yaml:"title,omitempty" xml:"title,omitempty"`
	Author   string            `json:"author,omitempty" yaml:"author,omitempty" xml:"author,omitempty"`
	Subject  string            `json:"subject,omitempty" yaml:"subject,omitempty" xml:"subject,omitempty"`
	Keywords []string          `json:"keywords,omitempty" yaml:"keywords,omitempty" xml:"keywords>keyword,omitempty"`
	Blocks   []structuredBlock `json:"blocks" yaml:"blocks" xml:"body>block"`
	Links    []structuredLink  `json:"links,omitempty" yaml:"links,omitempty" xml:"links>link,omitempty"`
}

type structuredBlock struct {
	Type  string     `json:"type" yaml:"type" xml:"type,attr"`
	Level int        `json:"level,omitempty" yaml:"level,omitempty" xml:"level,attr,omitempty"`
	Text  string     `json:"text,omitempty" yaml:"text,omitempty" xml:"text,omitempty"`
	Rows  [][]string `json:"rows,omitempty" yaml:"rows,omitempty" xml:"-"`
	XRows []xmlRow   `json:"-" yaml:"-" xml:"row,omitempty"`
}

type xmlRow struct {
	Cells []string `xml:"cell"`
}

type structuredLink struct {
	Text string `json:"text" yaml:"text" xml:"text,attr"`
	URL  string `json:"url" yaml:"url" xml:"href,attr"`
}

func toStructured(doc *Parsed, opts *common.ConversionOptions, forXML bool) structuredDoc {
	out := structuredDoc{Blocks: []structuredBlock{}}
	if opts.PreserveMetadata {
		out.Title = doc.Metadata.Title
		out.Author = doc.Metadata.Author
		out.Subject = doc.Metadata.Subject
		out.Keywords = doc.Metadata.Keywords
	}
	for _, blk := range Blocks(doc.Content) {
		switch blk.Kind {
		case BlockHeading:
			out.Blocks = append(out.Blocks, structuredBlock{Type: "heading", Level: blk.Level, Text: blk.Text})
		case BlockTable:
			sb := structuredBlock{Type: "table"}
			if forXML {
				for _, r := range blk.Table.Cells {
					sb.XRows = append(sb.XRows, xmlRow{Cells: r})
				}
			} else {
				sb.Rows = blk.Table.Cells
			}
			out.Blocks = append(out.Blocks, sb)
		default:
			out.Blocks = append(out.Blocks, structuredBlock{Type: "paragraph", Text: blk.Text})
		}
	}
	if opts.PreserveHyperlinks {
		for _, l := range doc.Content.Links {
			out.Links = append(out.Links, structuredLink{Text: l.Text, URL: l.URL})
		}
	}
	return out
}

func fromStructured(sd structuredDoc) *Parsed {
	b := newBuilder()
	for _, blk := range sd.Blocks {
		switch blk.Type {
		case "heading":
			b.heading(blk.Text, blk.Level)
		case "table":
			rows := blk.Rows
			for _, r := range blk.XRows {
				rows = append(rows, r.Cells)
			}
			b.table(rows)
		default:
			b.paragraph(blk.Text)
		}
	}
	for _, l := range sd.Links {
		b.link(l.Text, l.URL)
	}
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{
		Content: content,
		Metadata: common.DocumentMetadata{
			Title:     sd.Title,
			Author:    sd.Author,
			Subject:   sd.Subject,
			Keywords:  sd.Keywords,
			PageCount: 1,
		},
	}
}

func encodeJSON(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	return json.MarshalIndent(toStructured(doc, opts, false), "", "  ")
}

func encodeYAML(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	return yaml.Marshal(toStructured(doc, opts, false))
}

func encodeXML(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	out, err := xml.MarshalIndent(toStructured(doc, opts, true), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// decodeJSON JSON 是 YAML 的子集，校验后按 yaml.Node 遍历以保留键序
func decodeJSON(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	return decodeYAML(ctx, data, opts)
}

func decodeYAML(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if isStructured(&root) {
		var sd structuredDoc
		if err := root.Decode(&sd); err == nil {
			return fromStructured(sd), nil
		}
	}
	b := newBuilder()
	meta := common.DocumentMetadata{PageCount: 1}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			k, v := doc.Content[i].Value, doc.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				continue
			}
			switch strings.ToLower(k) {
			case "title":
				meta.Title = v.Value
			case "author":
				meta.Author = v.Value
			case "subject", "description":
				meta.Subject = v.Value
			case "keywords":
				meta.Keywords = splitKeywords(v.Value)
			}
		}
	}
	walkNode(b, doc, 1)
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{Content: content, Metadata: meta}, nil
}

func isStructured(root *yaml.Node) bool {
	n := root
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "blocks" && n.Content[i+1].Kind == yaml.SequenceNode {
			return true
		}
	}
	return false
}

// walkNode 映射中标量写为 "key: value" 段落，嵌套结构以键为标题；
// 元素均为标量映射的序列输出为表格
func walkNode(b *builder, n *yaml.Node, depth int) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			if val.Kind == yaml.AliasNode {
				val = val.Alias
			}
			if val.Kind == yaml.ScalarNode {
				b.paragraph(key + ": " + val.Value)
				continue
			}
			b.heading(key, depth)
			walkNode(b, val, depth+1)
		}
	case yaml.SequenceNode:
		if rows, ok := sequenceTable(n); ok {
			b.table(rows)
			return
		}
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode {
				b.paragraph(item.Value)
				continue
			}
			walkNode(b, item, depth)
		}
	case yaml.ScalarNode:
		b.paragraph(n.Value)
	case yaml.AliasNode:
		walkNode(b, n.Alias, depth)
	}
}

func sequenceTable(n *yaml.Node) ([][]string, bool) {
	if len(n.Content) == 0 {
		return nil, false
	}
	var header []string
	index := map[string]int{}
	for _, item := range n.Content {
		if item.Kind != yaml.MappingNode {
			return nil, false
		}
		for i := 0; i+1 < len(item.Content); i += 2 {
			if item.Content[i+1].Kind != yaml.ScalarNode {
				return nil, false
			}
			k := item.Content[i].Value
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
		}
	}
	rows := [][]string{header}
	for _, item := range n.Content {
		row := make([]string, len(header))
		for i := 0; i+1 < len(item.Content); i += 2 {
			row[index[item.Content[i].Value]] = item.Content[i+1].Value
		}
		rows = append(rows, row)
	}
	return rows, true
}

// decodeXML 本工具输出的 <document> 结构直接还原；
// 其它 XML 中 title/heading 元素视为标题，带 href 的元素视为链接，其余文本为段落
func decodeXML(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	var sd structuredDoc
	if err := xml.Unmarshal(data, &sd); err == nil && len(sd.Blocks) > 0 {
		return fromStructured(sd), nil
	}

	b := newBuilder()
	meta := common.DocumentMetadata{PageCount: 1}
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	var stack []xml.StartElement
	var text strings.Builder
	sawElement := false
	flush := func() {
		value := collapse(text.String())
		text.Reset()
		if value == "" || len(stack) == 0 {
			return
		}
		top := stack[len(stack)-1]
		switch strings.ToLower(top.Name.Local) {
		case "title", "heading", "h1", "h2", "h3", "head":
			if meta.Title == "" {
				meta.Title = value
			}
			b.heading(value, min(len(stack), 6))
		default:
			b.paragraph(value)
		}
		if href := attr(top, "href"); href != "" {
			b.link(value, href)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			flush()
			stack = append(stack, t.Copy())
		case xml.EndElement:
			flush()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text.Write(t)
		}
	}
	if !sawElement {
		return nil, fmt.Errorf("%w: no xml elements", ErrMalformed)
	}
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{Content: content, Metadata: meta}, nil
}
