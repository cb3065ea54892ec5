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
	"context"
	"fmt"
	"regexp"
	"strings"

	"docconv/internal/pipeline/common"
)

var (
	texComment   = regexp.MustCompile(`(?m)(^|[^\\])%.*$`)
	texMeta      = regexp.MustCompile(`\\(title|author|date)\{((?:[^{}]|\{[^{}]*\})*)\}`)
	texSection   = regexp.MustCompile(`^\\(part|chapter|section|subsection|subsubsection|paragraph)\*?\{(.*)\}\s*$`)
	texHref      = regexp.MustCompile(`\\href\{([^}]*)\}\{([^}]*)\}`)
	texURL       = regexp.MustCompile(`\\url\{([^}]*)\}`)
	texGraphics  = regexp.MustCompile(`\\includegraphics(?:\[[^\]]*\])?\{([^}]*)\}`)
	texTabular   = regexp.MustCompile(`(?s)\\begin\{tabular\}\{[^}]*\}(.*?)\\end\{tabular\}`)
	texCommand   = regexp.MustCompile(`\\[a-zA-Z]+\*?(?:\[[^\]]*\])?\{([^{}]*)\}`)
	texBare      = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	texEnvLine   = regexp.MustCompile(`(?m)^\s*\\(begin|end)\{[^}]*\}(\{[^}]*\})?\s*$`)
	texDecoder   = strings.NewReplacer(`\&`, "&", `\%`, "%", `\$`, "$", `\#`, "#", `\_`, "_", `\{`, "\x02", `\}`, "\x03", `~`, " ", `\\`, "\n")
	texEncoder   = strings.NewReplacer(`\`, `\textbackslash{}`, "&", `\&`, "%", `\%`, "$", `\$`, "#", `\#`, "_", `\_`, "{", `\{`, "}", `\}`, "~", `\textasciitilde{}`, "^", `\textasciicircum{}`)
)

var texLevels = map[string]int{
	"part": 1, "chapter": 1, "section": 1, "subsection": 2, "subsubsection": 3, "paragraph": 4,
}

// decodeLaTeX 只处理常见结构命令：章节、tabular、href/url、includegraphics
func decodeLaTeX(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	src := strings.ReplaceAll(toUTF8(data), "\r\n", "\n")
	src = texComment.ReplaceAllString(src, "$1")

	meta := common.DocumentMetadata{PageCount: 1}
	for _, m := range texMeta.FindAllStringSubmatch(src, -1) {
		switch m[1] {
		case "title":
			meta.Title = texPlain(m[2])
		case "author":
			meta.Author = texPlain(m[2])
		}
	}
	if i := strings.Index(src, `\begin{document}`); i >= 0 {
		src = src[i+len(`\begin{document}`):]
		if j := strings.Index(src, `\end{document}`); j >= 0 {
			src = src[:j]
		}
	}

	b := newBuilder()
	var tables [][][]string
	src = texTabular.ReplaceAllStringFunc(src, func(m string) string {
		inner := texTabular.FindStringSubmatch(m)[1]
		var rows [][]string
		for _, line := range strings.Split(inner, `\\`) {
			line = strings.TrimSpace(strings.ReplaceAll(line, `\hline`, ""))
			if line == "" {
				continue
			}
			cells := strings.Split(line, "&")
			for i := range cells {
				cells[i] = texPlain(cells[i])
			}
			rows = append(rows, cells)
		}
		tables = append(tables, rows)
		return fmt.Sprintf("\n\n\x00table%d\x00\n\n", len(tables)-1)
	})

	for _, chunk := range blankLines.Split(src, -1) {
		var para []string
		flush := func() {
			if len(para) > 0 {
				b.paragraph(texInline(b, strings.Join(para, "\n")))
				para = nil
			}
		}
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if m := texSection.FindStringSubmatch(trimmed); m != nil {
				flush()
				b.heading(texInline(b, m[2]), texLevels[m[1]])
				continue
			}
			var n int
			if _, err := fmt.Sscanf(trimmed, "\x00table%d\x00", &n); err == nil && n < len(tables) {
				flush()
				b.table(tables[n])
				continue
			}
			if trimmed == `\maketitle` || texEnvLine.MatchString(trimmed) || trimmed == "" {
				continue
			}
			para = append(para, trimmed)
		}
		flush()
	}
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{Content: content, Metadata: meta}, nil
}

// texInline 记录链接和图片后去除命令
func texInline(b *builder, s string) string {
	s = texHref.ReplaceAllStringFunc(s, func(m string) string {
		sub := texHref.FindStringSubmatch(m)
		text := texPlain(sub[2])
		b.link(text, sub[1])
		return text
	})
	s = texURL.ReplaceAllStringFunc(s, func(m string) string {
		url := texURL.FindStringSubmatch(m)[1]
		b.link(url, url)
		return url
	})
	s = texGraphics.ReplaceAllStringFunc(s, func(m string) string {
		file := texGraphics.FindStringSubmatch(m)[1]
		b.image(common.DocumentImage{MimeType: mimeForImage(file), Description: file})
		return ""
	})
	return texPlain(s)
}

func texPlain(s string) string {
	s = strings.ReplaceAll(s, `\textbackslash{}`, "\x01")
	for i := 0; i < 4; i++ {
		next := texCommand.ReplaceAllString(s, "$1")
		if next == s {
			break
		}
		s = next
	}
	s = texDecoder.Replace(s)
	s = texBare.ReplaceAllString(s, "")
	s = strings.NewReplacer("{", "", "}", "", "\x01", `\`, "\x02", "{", "\x03", "}").Replace(s)
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = collapse(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func texEscape(s string) string {
	return strings.ReplaceAll(texEncoder.Replace(s), "\n", "\\\\\n")
}

var texSections = []string{"section", "subsection", "subsubsection", "paragraph", "paragraph", "paragraph"}

// encodeLaTeX article 文档类；表格输出为带边框的 tabular
func encodeLaTeX(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("\\documentclass{article}\n\\usepackage[utf8]{inputenc}\n\\usepackage{hyperref}\n")
	title := ""
	if opts.PreserveMetadata {
		title = doc.Metadata.Title
		if title != "" {
			fmt.Fprintf(&sb, "\\title{%s}\n", texEscape(title))
		}
		if doc.Metadata.Author != "" {
			fmt.Fprintf(&sb, "\\author{%s}\n", texEscape(doc.Metadata.Author))
		}
	}
	sb.WriteString("\n\\begin{document}\n")
	if title != "" {
		sb.WriteString("\\maketitle\n")
	}
	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	for _, blk := range Blocks(doc.Content) {
		sb.WriteByte('\n')
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&sb, "\\%s{%s}\n", texSections[blk.Level-1], texEscape(blk.Text))
		case BlockTable:
			sb.WriteString("\\begin{tabular}{|" + strings.Repeat("l|", blk.Table.Columns) + "}\n\\hline\n")
			for _, row := range blk.Table.Cells {
				cells := make([]string, blk.Table.Columns)
				for i := range cells {
					if i < len(row) {
						cells[i] = texEscape(row[i])
					}
				}
				sb.WriteString(strings.Join(cells, " & ") + " \\\\\n\\hline\n")
			}
			sb.WriteString("\\end{tabular}\n")
		default:
			for _, seg := range links.split(blk.Text) {
				if seg.url != "" {
					fmt.Fprintf(&sb, "\\href{%s}{%s}", strings.NewReplacer("%", `\%`, "#", `\#`).Replace(seg.url), texEscape(seg.text))
				} else {
					sb.WriteString(texEscape(seg.text))
				}
			}
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("\n\\end{document}\n")
	return []byte(sb.String()), nil
}
