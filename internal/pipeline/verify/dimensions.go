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

package verify

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
)

// carriage 目标格式经解码后能保留的信息
type carriage struct {
	links, images, tables, headings bool
	// meta 可保留的元数据字段
	meta []string
}

var allMeta = []string{"title", "author", "subject", "keywords"}

var carriages = map[string]carriage{
	"docx":  {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"odt":   {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"rtf":   {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"html":  {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"epub":  {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"md":    {links: true, images: true, tables: true, headings: true, meta: allMeta},
	"latex": {links: true, images: true, tables: true, headings: true, meta: []string{"title", "author"}},
	"pptx":  {links: true, images: true, tables: true, headings: true},
	"odp":   {links: true, images: true, tables: true, headings: true},
	"json":  {links: true, tables: true, headings: true, meta: allMeta},
	"yaml":  {links: true, tables: true, headings: true, meta: allMeta},
	"xml":   {links: true, tables: true, headings: true, meta: allMeta},
	"pdf":   {images: true, meta: allMeta},
	"xlsx":  {tables: true, meta: allMeta},
	"ods":   {tables: true},
	"csv":   {tables: true},
	"tsv":   {tables: true},
	"zip":   {tables: true},
	"eml":   {images: true, meta: []string{"title"}},
	"mbox":  {images: true, meta: []string{"title"}},
	"msg":   {images: true, meta: []string{"title"}},
	"jpg":   {images: true},
	"png":   {images: true},
	"gif":   {images: true},
	"bmp":   {images: true},
	"tiff":  {images: true},
	"webp":  {images: true},
}

// checker 维度检查，共享有序的问题列表
type checker struct {
	in     Input
	issues *[]common.VerificationIssue
}

func (c *checker) add(t common.IssueType, sev common.IssueSeverity, location, format string, args ...any) {
	*c.issues = append(*c.issues, common.VerificationIssue{
		Type:        t,
		Description: fmt.Sprintf(format, args...),
		Severity:    sev,
		Location:    location,
	})
}

func (c *checker) target() carriage {
	return carriages[c.in.ConvertedFormat.ID]
}

func (c *checker) source() *codec.Parsed {
	if c.in.Source == nil {
		return &codec.Parsed{}
	}
	return c.in.Source
}

// content 归一化文本的词袋 Dice 相似度
func (c *checker) content() float64 {
	src := tokens(codec.PlainText(c.source().Content))
	conv := tokens(codec.PlainText(c.in.Converted.Content))
	score := dice(src, conv)
	if score >= 1 {
		return 1
	}

	sev := common.SeverityLow
	switch {
	case score < 0.5:
		sev = common.SeverityHigh
	case score < 0.9:
		sev = common.SeverityMedium
	}
	c.add(common.IssueContentMismatch, sev, "text", "text similarity %.1f%% (%d source words, %d converted words)",
		score*100, total(src), total(conv))
	if missing := missingTokens(src, conv, 5); len(missing) > 0 {
		c.add(common.IssueContentMismatch, common.SeverityLow, "text", "words missing from converted document: %s", strings.Join(missing, ", "))
	}
	return score
}

// formatting 链接、图片、表格数量一致性，只比较目标格式能承载的部分
func (c *checker) formatting() float64 {
	src, conv := c.source().Content, c.in.Converted.Content
	t := c.target()

	type feature struct {
		name          string
		carried       bool
		source, value int
		issue         common.IssueType
		severity      common.IssueSeverity
	}
	features := []feature{
		{"hyperlinks", t.links, len(src.Links), len(conv.Links), common.IssueFormattingMismatch, common.SeverityMedium},
		{"images", t.images, len(src.Images), len(conv.Images), common.IssueResourceMissing, common.SeverityHigh},
		{"tables", t.tables, len(src.Tables), len(conv.Tables), common.IssueFormattingMismatch, common.SeverityMedium},
	}

	var sum float64
	var n int
	for _, f := range features {
		if f.source == 0 && f.value == 0 {
			continue
		}
		if !f.carried {
			if f.source > 0 {
				c.add(f.issue, common.SeverityInfo, f.name, "%s cannot carry %s (%d in source)", c.in.ConvertedFormat.ID, f.name, f.source)
			}
			continue
		}
		r := ratio(f.source, f.value)
		sum += r
		n++
		if r < 1 {
			sev := f.severity
			if f.value > f.source {
				sev = common.SeverityLow
			}
			c.add(f.issue, sev, f.name, "%s count differs: source %d, converted %d", f.name, f.source, f.value)
		}
	}

	if c.in.ConvertedFormat.ID == "pdf" && c.in.SourceFormat.ID != "pdf" && c.source().Content.Text != "" {
		c.add(common.IssueFontSubstitution, common.SeverityInfo, "fonts", "text rendered with standard Helvetica fonts")
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// structure 标题序列一致性与段落数比值
func (c *checker) structure() float64 {
	src, conv := c.source().Content.Structure, c.in.Converted.Content.Structure
	t := c.target()

	// 目标不保留标题或表格时，它们在结果中以普通段落出现
	expected := src.Paragraphs
	if !t.headings {
		expected += len(src.Headings)
	}
	if !t.tables {
		expected += len(c.source().Content.Tables)
	}
	paragraphs := ratio(expected, conv.Paragraphs)
	if paragraphs < 0.8 {
		c.add(common.IssueStructureMismatch, common.SeverityMedium, "paragraphs", "paragraph count differs: expected %d, converted %d", expected, conv.Paragraphs)
	}

	if !t.headings {
		if len(src.Headings) > 0 {
			c.add(common.IssueStructureMismatch, common.SeverityInfo, "headings", "%s cannot carry headings (%d in source)", c.in.ConvertedFormat.ID, len(src.Headings))
		}
		return paragraphs
	}

	a, b := headingKeys(src.Headings), headingKeys(conv.Headings)
	headings := 1.0
	if len(a)+len(b) > 0 {
		headings = 2 * float64(lcs(a, b)) / float64(len(a)+len(b))
	}
	if headings < 1 {
		sev := common.SeverityMedium
		if headings < 0.5 {
			sev = common.SeverityHigh
		}
		c.add(common.IssueStructureMismatch, sev, "headings", "heading outline differs: source %d, converted %d, %.0f%% aligned", len(a), len(b), headings*100)
	}
	return 0.6*headings + 0.4*paragraphs
}

// metadata 标题、作者、主题、关键词一致性，只比较源文档有值且目标格式可保留的字段
func (c *checker) metadata() float64 {
	src, conv := c.source().Metadata, c.in.Converted.Metadata
	carried := make(map[string]bool)
	for _, f := range c.target().meta {
		carried[f] = true
	}

	values := map[string][2]string{
		"title":   {src.Title, conv.Title},
		"author":  {src.Author, conv.Author},
		"subject": {src.Subject, conv.Subject},
	}
	var sum float64
	var n int
	for _, field := range allMeta {
		if field == "keywords" {
			if len(src.Keywords) == 0 {
				continue
			}
			if !carried[field] {
				c.add(common.IssueMetadataMismatch, common.SeverityInfo, "metadata.keywords", "%s cannot carry keywords", c.in.ConvertedFormat.ID)
				continue
			}
			s := jaccard(src.Keywords, conv.Keywords)
			sum += s
			n++
			if s < 1 {
				c.add(common.IssueMetadataMismatch, common.SeverityLow, "metadata.keywords", "keywords differ: %v vs %v", src.Keywords, conv.Keywords)
			}
			continue
		}
		v := values[field]
		if strings.TrimSpace(v[0]) == "" {
			continue
		}
		if !carried[field] {
			c.add(common.IssueMetadataMismatch, common.SeverityInfo, "metadata."+field, "%s cannot carry %s", c.in.ConvertedFormat.ID, field)
			continue
		}
		n++
		if sameText(v[0], v[1]) {
			sum++
			continue
		}
		c.add(common.IssueMetadataMismatch, common.SeverityLow, "metadata."+field, "%s differs: %q vs %q", field, v[0], v[1])
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// tokens 小写词袋
func tokens(s string) map[string]int {
	out := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w]++
	}
	return out
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// dice 多重集 Dice 系数；两边都为空时为 1
func dice(a, b map[string]int) float64 {
	na, nb := total(a), total(b)
	if na+nb == 0 {
		return 1
	}
	inter := 0
	for w, ca := range a {
		if cb := b[w]; cb > 0 {
			inter += min(ca, cb)
		}
	}
	return 2 * float64(inter) / float64(na+nb)
}

// missingTokens 源文档中出现、结果中缺失的词，按出现次数降序取前 limit 个
func missingTokens(src, conv map[string]int, limit int) []string {
	var out []string
	for w := range src {
		if conv[w] == 0 {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if src[out[i]] != src[out[j]] {
			return src[out[i]] > src[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ratio min/max；两边都为 0 时为 1
func ratio(a, b int) float64 {
	if a == b {
		return 1
	}
	return float64(min(a, b)) / float64(max(a, b))
}

func headingKeys(hs []common.Heading) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = normalize(h.Text)
	}
	return out
}

// lcs 最长公共子序列长度
func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sameText(a, b string) bool {
	return normalize(a) == normalize(b)
}

// jaccard 关键词集合相似度，大小写不敏感
func jaccard(a, b []string) float64 {
	set := func(xs []string) map[string]bool {
		m := make(map[string]bool, len(xs))
		for _, x := range xs {
			if x = normalize(x); x != "" {
				m[x] = true
			}
		}
		return m
	}
	sa, sb := set(a), set(b)
	if len(sa)+len(sb) == 0 {
		return 1
	}
	inter := 0
	for k := range sa {
		if sb[k] {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}
