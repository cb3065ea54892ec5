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
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"docconv/internal/pipeline/common"
)

// rtfSkipped 不输出正文的目标组
var rtfSkipped = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "listtable": true,
	"listoverridetable": true, "revtbl": true, "rsidtbl": true, "generator": true,
	"header": true, "headerl": true, "headerr": true, "headerf": true,
	"footer": true, "footerl": true, "footerr": true, "footerf": true,
	"footnote": true, "xmlnstbl": true, "themedata": true, "colorschememapping": true,
	"latentstyles": true, "datastore": true, "object": true,
	"nonshppict": true, "filetbl": true, "operator": true,
}

// rtfInfo info 组内收集文本的字段
var rtfInfo = map[string]bool{"title": true, "author": true, "subject": true, "keywords": true}

var rtfHyperlink = regexp.MustCompile(`HYPERLINK\s+"([^"]+)"`)

type rtfGroup struct {
	skip  bool
	dest  string
	field bool
}

type rtfParser struct {
	src   []byte
	pos   int
	cur   rtfGroup
	stack []rtfGroup
	uc    int
	// pendingSkip \uN 之后需跳过的替代字符数
	pendingSkip int
	high        rune

	b       *builder
	para    strings.Builder
	level   int
	intbl   bool
	cell    strings.Builder
	row     []string
	rows    [][]string
	info    map[string]*strings.Builder
	created [5]int
	inst    strings.Builder
	linkTxt strings.Builder
	pict    strings.Builder
	pictW   int
	pictH   int
	pictPNG bool
}

// decodeRTF 流式解析控制字：段落、大纲级别标题、表格、字段超链接、PNG/JPEG 图片与 info 元数据
func decodeRTF(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \r\n\t\ufeff"), []byte(`{\rtf`)) {
		return nil, fmt.Errorf("%w: missing {\\rtf header", ErrMalformed)
	}
	p := &rtfParser{src: data, uc: 1, b: newBuilder(), info: map[string]*strings.Builder{}}
	if err := p.run(ctx); err != nil {
		return nil, err
	}
	p.endParagraph()
	p.flushTable()

	meta := common.DocumentMetadata{}
	if v, ok := p.info["title"]; ok {
		meta.Title = strings.TrimSpace(v.String())
	}
	if v, ok := p.info["author"]; ok {
		meta.Author = strings.TrimSpace(v.String())
	}
	if v, ok := p.info["subject"]; ok {
		meta.Subject = strings.TrimSpace(v.String())
	}
	if v, ok := p.info["keywords"]; ok {
		meta.Keywords = splitKeywords(v.String())
	}
	if c := p.created; c[0] > 0 {
		t := time.Date(c[0], time.Month(max(c[1], 1)), max(c[2], 1), c[3], c[4], 0, 0, time.UTC)
		meta.CreationDate = &t
	}
	content := p.b.build()
	meta.PageCount = 1
	content.Structure.Pages = 1
	return &Parsed{Content: content, Metadata: meta}, nil
}

func (p *rtfParser) run(ctx context.Context) error {
	for p.pos < len(p.src) {
		if p.pos%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		c := p.src[p.pos]
		switch c {
		case '{':
			p.stack = append(p.stack, p.cur)
			p.cur.field = false
			p.pos++
		case '}':
			p.closeGroup()
			p.pos++
		case '\\':
			p.control()
		case '\r', '\n':
			p.pos++
		default:
			p.pos++
			p.emitByte(c)
		}
	}
	return nil
}

func (p *rtfParser) closeGroup() {
	closing := p.cur
	if len(p.stack) == 0 {
		return
	}
	p.cur = p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	switch {
	case closing.field:
		if m := rtfHyperlink.FindStringSubmatch(p.inst.String()); m != nil {
			p.b.link(p.linkTxt.String(), m[1])
		}
		p.inst.Reset()
		p.linkTxt.Reset()
	case closing.dest == "pict" && p.cur.dest != "pict":
		p.finishPicture()
	}
}

// control 解析控制字或控制符号
func (p *rtfParser) control() {
	p.pos++
	if p.pos >= len(p.src) {
		return
	}
	c := p.src[p.pos]
	if !isASCIILetter(c) {
		p.pos++
		switch c {
		case '\'':
			if p.pos+2 <= len(p.src) {
				if v, err := strconv.ParseUint(string(p.src[p.pos:p.pos+2]), 16, 8); err == nil {
					p.pos += 2
					p.emitRune(charmap.Windows1252.DecodeByte(byte(v)), false)
				}
			}
		case '\\', '{', '}':
			p.emitRune(rune(c), true)
		case '~':
			p.emitRune('\u00a0', true)
		case '_':
			p.emitRune('-', true)
		case '*':
			// 不认识的可忽略目标整体跳过，字段指令除外
			if word, _ := p.peekWord(); word != "fldinst" && word != "shppict" && !rtfInfo[word] {
				p.cur.skip = true
			}
		case '\n', '\r':
			p.word("par", 0, false)
		}
		return
	}
	start := p.pos
	for p.pos < len(p.src) && isASCIILetter(p.src[p.pos]) {
		p.pos++
	}
	word := string(p.src[start:p.pos])
	numStart := p.pos
	if p.pos < len(p.src) && p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	arg, hasArg := 0, false
	if p.pos > numStart {
		if v, err := strconv.Atoi(string(p.src[numStart:p.pos])); err == nil {
			arg, hasArg = v, true
		}
	}
	if p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	p.word(word, arg, hasArg)
}

func (p *rtfParser) peekWord() (string, bool) {
	i := p.pos
	for i < len(p.src) && (p.src[i] == ' ' || p.src[i] == '\r' || p.src[i] == '\n') {
		i++
	}
	if i >= len(p.src) || p.src[i] != '\\' {
		return "", false
	}
	i++
	start := i
	for i < len(p.src) && isASCIILetter(p.src[i]) {
		i++
	}
	return string(p.src[start:i]), true
}

func (p *rtfParser) word(word string, arg int, hasArg bool) {
	if p.cur.skip {
		return
	}
	if p.cur.dest == "creatim" {
		switch word {
		case "yr":
			p.created[0] = arg
		case "mo":
			p.created[1] = arg
		case "dy":
			p.created[2] = arg
		case "hr":
			p.created[3] = arg
		case "min":
			p.created[4] = arg
		}
		return
	}
	if p.cur.dest == "pict" {
		switch word {
		case "pngblip":
			p.pictPNG = true
		case "jpegblip":
			p.pictPNG = false
		case "picw":
			p.pictW = arg
		case "pich":
			p.pictH = arg
		}
		return
	}
	switch {
	case rtfSkipped[word]:
		p.cur.skip = true
		return
	case rtfInfo[word]:
		p.cur.dest = word
		p.info[word] = &strings.Builder{}
		return
	}
	switch word {
	case "info", "revtim", "printim", "buptim":
		p.cur.dest = word
	case "creatim":
		p.cur.dest = word
	case "pict":
		p.cur.dest = "pict"
		p.pict.Reset()
		p.pictW, p.pictH, p.pictPNG = 0, 0, false
	case "field":
		p.cur.field = true
	case "fldinst":
		p.cur.dest = "fldinst"
	case "fldrslt":
		p.cur.dest = "fldrslt"
	case "uc":
		if hasArg {
			p.uc = arg
		}
	case "u":
		if arg < 0 {
			arg += 65536
		}
		p.emitRune(rune(arg), true)
		p.pendingSkip = p.uc
	case "par", "sect", "page":
		if p.intbl {
			p.cell.WriteByte('\n')
			return
		}
		p.endParagraph()
	case "line":
		p.emitRune('\n', true)
	case "tab":
		p.emitRune('\t', true)
	case "emdash":
		p.emitRune('\u2014', true)
	case "endash":
		p.emitRune('\u2013', true)
	case "bullet":
		p.emitRune('\u2022', true)
	case "lquote":
		p.emitRune('\u2018', true)
	case "rquote":
		p.emitRune('\u2019', true)
	case "ldblquote":
		p.emitRune('\u201c', true)
	case "rdblquote":
		p.emitRune('\u201d', true)
	case "pard":
		p.intbl = false
		p.level = 0
	case "intbl":
		p.intbl = true
	case "outlinelevel":
		p.level = arg + 1
	case "trowd":
		p.endParagraph()
	case "cell":
		p.row = append(p.row, strings.TrimSpace(p.cell.String()))
		p.cell.Reset()
	case "row":
		if len(p.row) > 0 {
			p.rows = append(p.rows, p.row)
		}
		p.row = nil
		p.intbl = false
	}
}

func (p *rtfParser) emitByte(c byte) {
	if c < 0x80 {
		p.emitRune(rune(c), false)
		return
	}
	p.emitRune(charmap.Windows1252.DecodeByte(c), false)
}

// emitRune 按当前目标组分发字符；literal 为 false 的字符可能是 \uN 的替代字符
func (p *rtfParser) emitRune(r rune, literal bool) {
	if p.cur.skip {
		return
	}
	if p.pendingSkip > 0 && !literal {
		p.pendingSkip--
		return
	}
	p.pendingSkip = 0
	if utf16.IsSurrogate(r) {
		if r < 0xDC00 {
			p.high = r
			return
		}
		r = utf16.DecodeRune(p.high, r)
		p.high = 0
	}
	switch p.cur.dest {
	case "info", "creatim", "revtim", "printim", "buptim":
		return
	case "fldinst":
		p.inst.WriteRune(r)
		return
	case "pict":
		p.pict.WriteRune(r)
		return
	}
	if b, ok := p.info[p.cur.dest]; ok && rtfInfo[p.cur.dest] {
		b.WriteRune(r)
		return
	}
	if p.cur.dest == "fldrslt" {
		p.linkTxt.WriteRune(r)
	}
	if p.intbl {
		p.cell.WriteRune(r)
		return
	}
	if len(p.rows) > 0 && r != ' ' {
		p.flushTable()
	}
	p.para.WriteRune(r)
}

func (p *rtfParser) endParagraph() {
	text := p.para.String()
	p.para.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	p.flushTable()
	if p.level > 0 {
		p.b.heading(text, p.level)
	} else {
		p.b.paragraph(text)
	}
	p.level = 0
}

func (p *rtfParser) flushTable() {
	if len(p.rows) == 0 {
		return
	}
	p.b.table(p.rows)
	p.rows = nil
}

func (p *rtfParser) finishPicture() {
	raw := strings.Map(func(r rune) rune {
		if strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return r
		}
		return -1
	}, p.pict.String())
	p.pict.Reset()
	data, err := hex.DecodeString(raw)
	if err != nil || len(data) == 0 {
		return
	}
	img := common.DocumentImage{Data: data, MimeType: "image/jpeg", Width: p.pictW, Height: p.pictH}
	if p.pictPNG {
		img.MimeType = "image/png"
	}
	if cfg, ok := imageConfig(data); ok {
		img.Width, img.Height = cfg[0], cfg[1]
	}
	p.b.image(img)
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// rtfHeadingSize 各级标题字号（半磅）
var rtfHeadingSize = [...]int{36, 32, 28, 26, 24, 24}

// encodeRTF 输出 RTF 1.9：标题写 \outlinelevel，链接写 HYPERLINK 字段
func encodeRTF(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(`{\rtf1\ansi\ansicpg1252\deff0\uc1`)
	sb.WriteString(`{\fonttbl{\f0\fswiss Helvetica;}{\f1\fmodern Courier;}}`)
	if opts.PreserveMetadata {
		sb.WriteString(rtfInfoGroup(doc.Metadata, plainTitle(doc)))
	}
	sb.WriteString("\n\\viewkind4\\f0\\fs24\n")

	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	for _, blk := range Blocks(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch blk.Kind {
		case BlockHeading:
			lvl := clampLevel(blk.Level)
			fmt.Fprintf(&sb, "\\pard\\s%d\\outlinelevel%d\\b\\fs%d %s\\b0\\fs24\\par\n", lvl, lvl-1, rtfHeadingSize[lvl-1], rtfEscape(blk.Text))
		case BlockTable:
			rtfTable(&sb, blk.Table)
		default:
			sb.WriteString(`\pard `)
			for _, seg := range links.split(blk.Text) {
				if seg.url != "" {
					fmt.Fprintf(&sb, `{\field{\*\fldinst HYPERLINK "%s"}{\fldrslt \ul %s\ul0}}`, strings.ReplaceAll(seg.url, `"`, "%22"), rtfEscape(seg.text))
				} else {
					sb.WriteString(rtfEscape(seg.text))
				}
			}
			sb.WriteString("\\par\n")
		}
	}
	if opts.PreserveImages {
		for _, img := range pngImages(doc.Content.Images) {
			fmt.Fprintf(&sb, "\\pard{\\pict\\pngblip\\picw%d\\pich%d\n%s}\\par\n", img.Width, img.Height, hex.EncodeToString(img.Data))
		}
	}
	sb.WriteString("}")
	return []byte(sb.String()), nil
}

func rtfInfoGroup(meta common.DocumentMetadata, title string) string {
	var sb strings.Builder
	sb.WriteString(`{\info`)
	if title != "" {
		sb.WriteString(`{\title ` + rtfEscape(title) + `}`)
	}
	if meta.Author != "" {
		sb.WriteString(`{\author ` + rtfEscape(meta.Author) + `}`)
	}
	if meta.Subject != "" {
		sb.WriteString(`{\subject ` + rtfEscape(meta.Subject) + `}`)
	}
	if len(meta.Keywords) > 0 {
		sb.WriteString(`{\keywords ` + rtfEscape(strings.Join(meta.Keywords, ", ")) + `}`)
	}
	if t := meta.CreationDate; t != nil {
		fmt.Fprintf(&sb, `{\creatim\yr%d\mo%d\dy%d\hr%d\min%d}`, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
	}
	sb.WriteString("}")
	return sb.String()
}

func rtfTable(sb *strings.Builder, t *common.DocumentTable) {
	if t == nil || t.Columns == 0 {
		return
	}
	width := 9000 / t.Columns
	for _, row := range t.Cells {
		sb.WriteString(`\trowd\trgaph108`)
		for i := 1; i <= t.Columns; i++ {
			fmt.Fprintf(sb, `\cellx%d`, i*width)
		}
		sb.WriteString("\n")
		for i := 0; i < t.Columns; i++ {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			sb.WriteString(`\pard\intbl ` + rtfEscape(v) + `\cell` + "\n")
		}
		sb.WriteString("\\row\n")
	}
	sb.WriteString(`\pard` + "\n")
}

// rtfEscape 转义控制字符；非 ASCII 写为 \uN?（BMP 之外拆为代理对）
func rtfEscape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\line `)
		case r == '\t':
			sb.WriteString(`\tab `)
		case r < 0x80:
			sb.WriteRune(r)
		case r > 0xFFFF:
			h, l := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%d?\u%d?`, int16(h), int16(l))
		default:
			fmt.Fprintf(&sb, `\u%d?`, int16(r))
		}
	}
	return sb.String()
}
