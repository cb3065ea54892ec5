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
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"

	"docconv/internal/pipeline/common"
)

var (
	mdHeading  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	mdImage    = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	mdAutolink = regexp.MustCompile(`<(https?://[^>\s]+)>`)

	mdEmphasis = []*regexp.Regexp{
		regexp.MustCompile(`\*\*(\S(?:.*?\S)?)\*\*`),
		regexp.MustCompile(`\*(\S(?:.*?\S)?)\*`),
		regexp.MustCompile(`~~(\S(?:.*?\S)?)~~`),
		regexp.MustCompile("`([^`]+)`"),
	}

	mdRule      = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})\s*$`)
	mdListItem  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	mdTableSep  = regexp.MustCompile(`^\s*\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?\s*$`)
	mdSetextOne = regexp.MustCompile(`^=+\s*$`)
	mdSetextTwo = regexp.MustCompile(`^-+\s*$`)
)

// frontMatter Markdown 头部 YAML 元数据
type frontMatter struct {
	Title       string   `yaml:"title,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Subject     string   `yaml:"subject,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// decodeMarkdown 行扫描：ATX/Setext 标题、围栏代码、列表、管道表格、链接与图片
func decodeMarkdown(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	text := strings.ReplaceAll(toUTF8(data), "\r\n", "\n")
	meta := common.DocumentMetadata{PageCount: 1}
	if fm, rest, ok := splitFrontMatter(text); ok {
		var m frontMatter
		if err := yaml.Unmarshal([]byte(fm), &m); err != nil {
			return nil, fmt.Errorf("%w: front matter: %v", ErrMalformed, err)
		}
		meta.Title = m.Title
		meta.Author = m.Author
		meta.Subject = m.Subject
		if meta.Subject == "" {
			meta.Subject = m.Description
		}
		meta.Keywords = append(m.Keywords, m.Tags...)
		text = rest
	}

	b := newBuilder()
	var para []string
	var tableRows [][]string
	inFence := false
	var fence []string

	flushPara := func() {
		if len(para) > 0 {
			b.paragraph(mdInline(b, strings.Join(para, "\n")))
			para = nil
		}
	}
	flushTable := func() {
		if len(tableRows) > 0 {
			b.table(tableRows)
			tableRows = nil
		}
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if inFence {
				b.paragraph(strings.Join(fence, "\n"))
				fence = nil
				inFence = false
			} else {
				flushPara()
				flushTable()
				inFence = true
			}
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}
		if trimmed == "" {
			flushPara()
			flushTable()
			continue
		}
		if m := mdHeading.FindStringSubmatch(trimmed); m != nil {
			flushPara()
			flushTable()
			b.heading(mdInline(b, m[2]), len(m[1]))
			continue
		}
		if len(para) == 1 && i > 0 && (mdSetextOne.MatchString(trimmed) || mdSetextTwo.MatchString(trimmed)) {
			level := 1
			if mdSetextTwo.MatchString(trimmed) {
				level = 2
			}
			b.heading(mdInline(b, para[0]), level)
			para = nil
			continue
		}
		if len(para) == 0 && mdRule.MatchString(trimmed) {
			flushTable()
			continue
		}
		if strings.HasPrefix(trimmed, "|") || (len(tableRows) > 0 && strings.Contains(trimmed, "|")) {
			if i+1 < len(lines) && len(tableRows) == 0 && !mdTableSep.MatchString(lines[i+1]) {
				para = append(para, line)
				continue
			}
			flushPara()
			if mdTableSep.MatchString(trimmed) {
				continue
			}
			tableRows = append(tableRows, mdTableRow(b, trimmed))
			continue
		}
		flushTable()
		if m := mdListItem.FindStringSubmatch(line); m != nil {
			flushPara()
			para = append(para, m[1])
			flushPara()
			continue
		}
		if strings.HasPrefix(trimmed, ">") {
			line = strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
		}
		para = append(para, strings.TrimSpace(line))
	}
	if inFence {
		b.paragraph(strings.Join(fence, "\n"))
	}
	flushPara()
	flushTable()

	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{Content: content, Metadata: meta}, nil
}

func splitFrontMatter(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "---\n") {
		return "", text, false
	}
	end := strings.Index(text[4:], "\n---")
	if end < 0 {
		return "", text, false
	}
	fm := text[4 : 4+end]
	rest := text[4+end+4:]
	rest = strings.TrimPrefix(rest, "\n")
	return fm, rest, true
}

func mdTableRow(b *builder, line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = mdInline(b, strings.TrimSpace(c))
	}
	return cells
}

// mdInline 记录链接与图片，返回去除行内标记的文本
func mdInline(b *builder, s string) string {
	s = mdImage.ReplaceAllStringFunc(s, func(m string) string {
		sub := mdImage.FindStringSubmatch(m)
		img := common.DocumentImage{Description: sub[1]}
		if data, mimeType, ok := parseDataURI(sub[2]); ok {
			img.Data, img.MimeType = data, mimeType
			if cfg, ok := imageConfig(data); ok {
				img.Width, img.Height = cfg[0], cfg[1]
			}
		} else {
			img.MimeType = mimeForImage(sub[2])
			if img.Description == "" {
				img.Description = sub[2]
			}
		}
		b.image(img)
		return ""
	})
	s = mdLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := mdLink.FindStringSubmatch(m)
		text := stripEmphasis(sub[1])
		b.link(text, sub[2])
		return text
	})
	s = mdAutolink.ReplaceAllStringFunc(s, func(m string) string {
		url := m[1 : len(m)-1]
		b.link(url, url)
		return url
	})
	s = stripEmphasis(s)
	s = strings.ReplaceAll(s, `\*`, "*")
	s = strings.ReplaceAll(s, `\_`, "_")
	return strings.TrimSpace(s)
}

func stripEmphasis(s string) string {
	for _, re := range mdEmphasis {
		s = re.ReplaceAllString(s, "$1")
	}
	return s
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// encodeMarkdown 先渲染 HTML 正文，再转换为 CommonMark；保留元数据时写 YAML front matter
func encodeMarkdown(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	body := renderHTMLBody(doc, opts)
	md, err := mdConverter.ConvertString(body)
	if err != nil {
		return nil, fmt.Errorf("html to markdown: %w", err)
	}
	if opts.CustomOption("markdown.heading_style", "atx") == "setext" {
		md = toSetext(md)
	}
	var sb strings.Builder
	if opts.PreserveMetadata && (doc.Metadata.Title != "" || doc.Metadata.Author != "") {
		fm, err := yaml.Marshal(frontMatter{
			Title:    doc.Metadata.Title,
			Author:   doc.Metadata.Author,
			Subject:  doc.Metadata.Subject,
			Keywords: doc.Metadata.Keywords,
		})
		if err != nil {
			return nil, err
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}
	sb.WriteString(strings.TrimSpace(md))
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

// toSetext 一、二级 ATX 标题改写为 Setext 风格
func toSetext(md string) string {
	var out strings.Builder
	sc := bufio.NewScanner(strings.NewReader(md))
	for sc.Scan() {
		line := sc.Text()
		if m := mdHeading.FindStringSubmatch(line); m != nil && len(m[1]) <= 2 {
			underline := "="
			if len(m[1]) == 2 {
				underline = "-"
			}
			out.WriteString(m[2] + "\n" + strings.Repeat(underline, max(3, len([]rune(m[2])))) + "\n")
			continue
		}
		out.WriteString(line + "\n")
	}
	return out.String()
}
