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
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docconv/internal/pipeline/common"
)

var (
	// ugcPolicy 保留格式的 HTML 输出，允许 data: 内嵌图片
	ugcPolicy = func() *bluemonday.Policy {
		p := bluemonday.UGCPolicy()
		p.AllowDataURIImages()
		return p
	}()
	// strictPolicy 去除全部标签
	strictPolicy = bluemonday.StrictPolicy()
)

// StripTags 去除 HTML 标签，保留文本
func StripTags(s string) string {
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// decodeHTML 解析正文结构；<head> 中的 title/meta 进入元数据
func decodeHTML(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrMalformed, err)
	}
	b := newBuilder()
	body := findAtom(root, atom.Body)
	if body == nil {
		body = root
	}
	walkHTML(b, body)
	var inner bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&inner, c)
	}
	b.content.FormattedText = strings.TrimSpace(ugcPolicy.Sanitize(inner.String()))
	return &Parsed{Content: b.build(), Metadata: htmlMetadata(root)}, nil
}

func htmlMetadata(root *html.Node) common.DocumentMetadata {
	meta := common.DocumentMetadata{PageCount: 1}
	if t := findAtom(root, atom.Title); t != nil {
		meta.Title = textOf(t)
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			content := strings.TrimSpace(getAttr(n, "content"))
			switch strings.ToLower(getAttr(n, "name")) {
			case "author":
				meta.Author = content
			case "description", "subject":
				meta.Subject = content
			case "keywords":
				meta.Keywords = splitKeywords(content)
			case "generator":
				meta.Creator = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return meta
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAtom(c, a); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf 子树可见文本，空白折叠
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(sb.String())
}

var htmlBlocks = map[atom.Atom]bool{
	atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Aside: true,
	atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Figure: true, atom.Form: true,
	atom.Body: true, atom.Html: true, atom.Hr: true, atom.Center: true,
}

var htmlParagraphs = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Pre: true, atom.Blockquote: true,
	atom.Dt: true, atom.Dd: true, atom.Figcaption: true, atom.Address: true,
}

// htmlWalker 把 DOM 展平为标题/段落/表格；相邻行内节点合并为一个段落
type htmlWalker struct {
	b      *builder
	inline strings.Builder
	// resolve 解析非 data: 的图片地址，可为空
	resolve func(src string) (common.DocumentImage, bool)
}

// walkHTML 遍历 DOM，结果写入 builder
func walkHTML(b *builder, root *html.Node) {
	walkHTMLWith(b, root, nil)
}

func walkHTMLWith(b *builder, root *html.Node, resolve func(string) (common.DocumentImage, bool)) {
	w := &htmlWalker{b: b, resolve: resolve}
	w.children(root)
	w.flush()
}

const lineBreak = "\x00"

func (w *htmlWalker) flush() {
	text := collapse(w.inline.String())
	text = strings.ReplaceAll(strings.ReplaceAll(text, " "+lineBreak, lineBreak), lineBreak+" ", lineBreak)
	w.b.paragraph(strings.ReplaceAll(text, lineBreak, "\n"))
	w.inline.Reset()
}

func (w *htmlWalker) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *htmlWalker) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.inline.WriteString(n.Data)
		return
	case html.ElementNode:
	case html.DocumentNode:
		w.children(n)
		return
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.flush()
		w.b.heading(textOf(n), int(n.Data[1]-'0'))
		return
	case atom.Table:
		w.flush()
		w.b.table(w.table(n))
		return
	case atom.Img:
		w.image(n)
		return
	case atom.Br:
		w.inline.WriteString(lineBreak)
		return
	case atom.A:
		text := textOf(n)
		w.b.link(text, getAttr(n, "href"))
		w.inline.WriteString(" " + text + " ")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Img {
				w.image(c)
			}
		}
		return
	}
	if htmlParagraphs[n.DataAtom] || htmlBlocks[n.DataAtom] {
		w.flush()
		w.children(n)
		w.flush()
		return
	}
	w.children(n)
}

// table 收集行/单元格，不进入嵌套表格
func (w *htmlWalker) table(t *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				var row []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						row = append(row, textOf(cell))
						w.links(cell)
					}
				}
				rows = append(rows, row)
			default:
				walk(c)
			}
		}
	}
	walk(t)
	return rows
}

func (w *htmlWalker) links(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		w.b.link(textOf(n), getAttr(n, "href"))
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.links(c)
	}
}

func (w *htmlWalker) image(n *html.Node) {
	src := getAttr(n, "src")
	img := common.DocumentImage{Description: getAttr(n, "alt")}
	if data, mimeType, ok := parseDataURI(src); ok {
		img.Data, img.MimeType = data, mimeType
		if cfg, ok := imageConfig(data); ok {
			img.Width, img.Height = cfg[0], cfg[1]
		}
	} else if resolved, ok := w.resolveImage(src); ok {
		resolved.Description = img.Description
		img = resolved
	} else {
		img.MimeType = mimeForImage(src)
		if img.Description == "" {
			img.Description = src
		}
	}
	w.b.image(img)
}

func (w *htmlWalker) resolveImage(src string) (common.DocumentImage, bool) {
	if w.resolve == nil || src == "" {
		return common.DocumentImage{}, false
	}
	return w.resolve(src)
}

func parseDataURI(src string) ([]byte, string, bool) {
	if !strings.HasPrefix(src, "data:") {
		return nil, "", false
	}
	header, payload, ok := strings.Cut(src[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	return data, strings.TrimSuffix(header, ";base64"), true
}

// collectHTMLLinks 只提取链接（正文已来自 text/plain 部件）
func collectHTMLLinks(b *builder, s string) {
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return
	}
	w := &htmlWalker{b: b}
	w.links(root)
}

func encodeHTML(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	return []byte(renderHTML(doc, opts)), nil
}

// renderHTML 完整 HTML 文档
func renderHTML(doc *Parsed, opts *common.ConversionOptions) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if title := plainTitle(doc); title != "" {
		fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	}
	if opts.PreserveMetadata {
		meta := func(name, content string) {
			if content != "" {
				fmt.Fprintf(&sb, "<meta name=\"%s\" content=\"%s\">\n", name, html.EscapeString(content))
			}
		}
		meta("author", doc.Metadata.Author)
		meta("description", doc.Metadata.Subject)
		meta("keywords", strings.Join(doc.Metadata.Keywords, ", "))
	}
	sb.WriteString("<meta name=\"generator\" content=\"docconv\">\n</head>\n<body>\n")
	sb.WriteString(renderHTMLBody(doc, opts))
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// renderHTMLBody 保留格式且有格式化文本时输出净化后的原文，否则按块生成
func renderHTMLBody(doc *Parsed, opts *common.ConversionOptions) string {
	if opts.PreserveFormatting && doc.Content.FormattedText != "" {
		return ugcPolicy.Sanitize(doc.Content.FormattedText) + "\n"
	}
	var sb strings.Builder
	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	for _, blk := range Blocks(doc.Content) {
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&sb, "<h%d>%s</h%d>\n", blk.Level, html.EscapeString(blk.Text), blk.Level)
		case BlockTable:
			sb.WriteString("<table>\n")
			for i, row := range blk.Table.Cells {
				tag := "td"
				if i == 0 {
					tag = "th"
				}
				sb.WriteString("<tr>")
				for col := 0; col < blk.Table.Columns; col++ {
					v := ""
					if col < len(row) {
						v = row[col]
					}
					fmt.Fprintf(&sb, "<%s>%s</%s>", tag, html.EscapeString(v), tag)
				}
				sb.WriteString("</tr>\n")
			}
			sb.WriteString("</table>\n")
		default:
			sb.WriteString("<p>")
			for _, seg := range links.split(blk.Text) {
				text := strings.ReplaceAll(html.EscapeString(seg.text), "\n", "<br>")
				if seg.url != "" {
					fmt.Fprintf(&sb, "<a href=\"%s\">%s</a>", html.EscapeString(seg.url), text)
				} else {
					sb.WriteString(text)
				}
			}
			sb.WriteString("</p>\n")
		}
	}
	if rest := links.remaining(); len(rest) > 0 {
		sb.WriteString("<ul>\n")
		for _, l := range rest {
			fmt.Fprintf(&sb, "<li><a href=\"%s\">%s</a></li>\n", html.EscapeString(l.URL), html.EscapeString(l.Text))
		}
		sb.WriteString("</ul>\n")
	}
	if opts.PreserveImages {
		for _, img := range doc.Content.Images {
			if uri, ok := dataURI(img); ok {
				fmt.Fprintf(&sb, "<img src=\"%s\" alt=\"%s\">\n", uri, html.EscapeString(img.Description))
			}
		}
	}
	return sb.String()
}

// dataURI 浏览器可直接显示的格式原样内嵌，其余转 PNG
func dataURI(img common.DocumentImage) (string, bool) {
	if len(img.Data) == 0 {
		return "", false
	}
	data, mimeType := img.Data, img.MimeType
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml":
	default:
		decoded, ok := decodeEmbedded(img)
		if !ok {
			return "", false
		}
		encoded, err := PNG(decoded)
		if err != nil {
			return "", false
		}
		data, mimeType = encoded, "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), true
}
