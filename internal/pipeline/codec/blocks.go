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
	"fmt"
	"regexp"
	"strings"

	"docconv/internal/pipeline/common"
)

// BlockKind 块类型
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockTable
)

// Block 有序内容块，编码器据此输出
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
	Table *common.DocumentTable
}

var (
	blankLines = regexp.MustCompile(`\n[ \t]*\n+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Blocks 把内容文本切分为有序块：文本以空行分隔，
// 与 Structure.Headings / Tables 依次匹配的块还原为标题或表格
func Blocks(c common.DocumentContent) []Block {
	text := strings.ReplaceAll(c.Text, "\r\n", "\n")
	chunks := blankLines.Split(text, -1)
	headings := c.Structure.Headings
	hi, ti := 0, 0
	out := make([]Block, 0, len(chunks))
	for _, raw := range chunks {
		chunk := strings.Trim(raw, "\n")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if j := matchHeading(headings, hi, chunk); j >= 0 {
			out = append(out, Block{Kind: BlockHeading, Level: clampLevel(headings[j].Level), Text: headings[j].Text})
			hi = j + 1
			continue
		}
		if ti < len(c.Tables) && chunk == TableText(c.Tables[ti]) {
			t := c.Tables[ti]
			out = append(out, Block{Kind: BlockTable, Text: chunk, Table: &t})
			ti++
			continue
		}
		out = append(out, Block{Kind: BlockParagraph, Text: strings.TrimSpace(chunk)})
	}
	// 未出现在文本中的表格追加在末尾
	for ; ti < len(c.Tables); ti++ {
		t := c.Tables[ti]
		out = append(out, Block{Kind: BlockTable, Text: TableText(t), Table: &t})
	}
	return out
}

func matchHeading(hs []common.Heading, from int, chunk string) int {
	chunk = strings.TrimSpace(chunk)
	for j := from; j < len(hs); j++ {
		if hs[j].Text == chunk {
			return j
		}
	}
	return -1
}

func clampLevel(l int) int {
	if l < 1 {
		return 1
	}
	if l > 6 {
		return 6
	}
	return l
}

// TableText 表格的文本形式：行以换行分隔，单元格以制表符分隔
func TableText(t common.DocumentTable) string {
	rows := make([]string, 0, len(t.Cells))
	for _, row := range t.Cells {
		rows = append(rows, strings.Join(row, "\t"))
	}
	return strings.Join(rows, "\n")
}

// builder 解码器共用的内容构造器
type builder struct {
	blocks  []string
	content common.DocumentContent
}

func newBuilder() *builder {
	return &builder{}
}

func (b *builder) heading(text string, level int) {
	text = collapse(text)
	if text == "" {
		return
	}
	b.blocks = append(b.blocks, text)
	b.content.Structure.Headings = append(b.content.Structure.Headings, common.Heading{Text: text, Level: clampLevel(level)})
}

func (b *builder) headingOnPage(text string, level, page int) {
	b.heading(text, level)
	if n := len(b.content.Structure.Headings); n > 0 && collapse(text) != "" {
		b.content.Structure.Headings[n-1].PageNumber = page
	}
}

func (b *builder) paragraph(text string) {
	text = strings.TrimSpace(blankLines.ReplaceAllString(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
	if text == "" {
		return
	}
	b.blocks = append(b.blocks, text)
	b.content.Structure.Paragraphs++
}

func (b *builder) table(cells [][]string) {
	clean := make([][]string, 0, len(cells))
	for _, row := range cells {
		r := make([]string, len(row))
		empty := true
		for i, c := range row {
			r[i] = collapse(c)
			if r[i] != "" {
				empty = false
			}
		}
		if !empty {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return
	}
	t := common.NewTable(fmt.Sprintf("table-%d", len(b.content.Tables)+1), clean)
	b.content.Tables = append(b.content.Tables, t)
	b.blocks = append(b.blocks, TableText(t))
}

func (b *builder) link(text, url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	text = collapse(text)
	if text == "" {
		text = url
	}
	b.content.Links = append(b.content.Links, common.DocumentLink{Text: text, URL: url})
}

func (b *builder) image(img common.DocumentImage) {
	if img.ID == "" {
		img.ID = fmt.Sprintf("image-%d", len(b.content.Images)+1)
	}
	b.content.Images = append(b.content.Images, img)
}

func (b *builder) build() common.DocumentContent {
	c := b.content
	c.Text = strings.Join(b.blocks, "\n\n")
	for _, h := range c.Structure.Headings {
		if h.Level == 1 {
			c.Structure.Sections++
		}
	}
	if c.Structure.Sections == 0 && len(b.blocks) > 0 {
		c.Structure.Sections = 1
	}
	return c
}

// collapse 折叠空白为单个空格
func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// plainTitle 无元数据标题时取首个标题
func plainTitle(p *Parsed) string {
	if p.Metadata.Title != "" {
		return p.Metadata.Title
	}
	if hs := p.Content.Structure.Headings; len(hs) > 0 {
		return hs[0].Text
	}
	return ""
}
