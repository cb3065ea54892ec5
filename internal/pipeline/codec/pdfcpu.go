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
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"docconv/internal/pipeline/common"
)

// errPDFWrongPassword 提供的密码无法解密
var errPDFWrongPassword = errors.New("decrypt pdf: wrong password")

// readPDFContext 读取并校验 PDF；加密文档用 password 解密
func readPDFContext(data []byte, password string) (*pdfmodel.Context, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.UserPW = password
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err == nil {
		return pctx, nil
	}
	if errors.Is(err, pdfcpu.ErrWrongPassword) {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		return nil, errPDFWrongPassword
	}
	return nil, fmt.Errorf("%w: read pdf: %v", ErrMalformed, err)
}

// decodePDFContent pdfcpu 解码：逐页取内容流解析文本算子，文档信息取自 Info 字典
func decodePDFContent(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	pctx, err := readPDFContext(data, opts.Password)
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	for i := 1; i <= pctx.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pctx, i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		addPDFPage(b, contentStreamText(stream), i, i == 1)
	}
	for i := 0; i < pdfImageObjects(pctx); i++ {
		b.image(common.DocumentImage{MimeType: "image/x-pdf-xobject"})
	}

	content := b.build()
	content.Structure.Pages = pctx.PageCount

	info := pctx.XRefTable
	encrypted := info.Encrypt != nil
	meta := common.DocumentMetadata{
		PageCount:         pctx.PageCount,
		Encrypted:         encrypted,
		PasswordProtected: encrypted && opts.Password != "",
		Title:             strings.TrimSpace(info.Title),
		Author:            strings.TrimSpace(info.Author),
		Subject:           strings.TrimSpace(info.Subject),
		Keywords:          splitKeywords(info.Keywords),
		Creator:           strings.TrimSpace(info.Creator),
		Producer:          strings.TrimSpace(info.Producer),
	}
	if t, ok := types.DateTime(info.CreationDate, true); ok && info.CreationDate != "" {
		meta.CreationDate = &t
	}
	if t, ok := types.DateTime(info.ModDate, true); ok && info.ModDate != "" {
		meta.ModificationDate = &t
	}
	return &Parsed{Content: content, Metadata: meta}, nil
}

// pdfName 内容流中的名字对象
type pdfName string

// pdfTextRun 一次文本绘制，y 为所在基线
type pdfTextRun struct {
	y     float64
	size  float64
	moved bool
	text  string
}

// contentStreamText 按绘制顺序拼接文本：基线不变时续接，
// 下移不超过 1.5 倍字号时换行，其余视为分段
func contentStreamText(stream []byte) string {
	runs := scanTextRuns(stream)
	var sb strings.Builder
	for i, r := range runs {
		if i > 0 {
			dy := runs[i-1].y - r.y
			switch {
			case math.Abs(dy) < 0.5:
				if r.moved && !strings.HasSuffix(sb.String(), " ") && !strings.HasPrefix(r.text, " ") {
					sb.WriteByte(' ')
				}
			case dy < 0 || dy > 1.5*r.size:
				sb.WriteString("\n\n")
			default:
				sb.WriteByte('\n')
			}
		}
		sb.WriteString(r.text)
	}
	return sb.String()
}

// scanTextRuns 解释文本相关算子（Tf TL Td TD Tm T* Tj TJ ' "），忽略图形算子
func scanTextRuns(stream []byte) []pdfTextRun {
	var (
		runs     []pdfTextRun
		operands []any
		size     = 12.0
		leading  float64
		lineY    float64
		moved    bool
	)
	lead := func() float64 {
		if leading > 0 {
			return leading
		}
		return size * 1.2
	}
	emit := func(raw []byte) {
		text := pdfRunText(raw)
		if text == "" {
			return
		}
		runs = append(runs, pdfTextRun{y: lineY, size: size, moved: moved, text: text})
		moved = false
	}
	number := func(fromEnd int) (float64, bool) {
		if len(operands) < fromEnd {
			return 0, false
		}
		f, ok := operands[len(operands)-fromEnd].(float64)
		return f, ok
	}
	lastString := func() ([]byte, bool) {
		if len(operands) == 0 {
			return nil, false
		}
		s, ok := operands[len(operands)-1].([]byte)
		return s, ok
	}

	lx := &pdfLexer{data: stream}
	for {
		v, op, ok := lx.next()
		if !ok {
			break
		}
		if op == "" {
			if v != nil {
				operands = append(operands, v)
			}
			continue
		}
		switch op {
		case "BT":
			lineY, moved = 0, true
		case "Tf":
			if n, ok := number(1); ok && n > 0 {
				size = n
			}
		case "TL":
			if n, ok := number(1); ok {
				leading = n
			}
		case "Td", "TD":
			if dy, ok := number(1); ok {
				lineY += dy
				if op == "TD" {
					leading = -dy
				}
			}
			moved = true
		case "Tm":
			if f, ok := number(1); ok && len(operands) >= 6 {
				lineY = f
			}
			moved = true
		case "T*":
			lineY -= lead()
			moved = true
		case "Tj":
			if s, ok := lastString(); ok {
				emit(s)
			}
		case "'", "\"":
			lineY -= lead()
			moved = true
			if s, ok := lastString(); ok {
				emit(s)
			}
		case "TJ":
			if len(operands) > 0 {
				if arr, ok := operands[len(operands)-1].([]any); ok {
					emit(joinTJ(arr))
				}
			}
		case "ID":
			lx.skipInlineImage()
		}
		operands = operands[:0]
	}
	return runs
}

// joinTJ 拼接 TJ 数组；较大的负字距视为词间空格
func joinTJ(arr []any) []byte {
	var out []byte
	for _, v := range arr {
		switch x := v.(type) {
		case []byte:
			out = append(out, x...)
		case float64:
			if x < -250 && len(out) > 0 && out[len(out)-1] != ' ' {
				out = append(out, ' ')
			}
		}
	}
	return out
}

// pdfRunText 字符串字节按 UTF-8 或 Windows-1252 解码并去掉控制字符
func pdfRunText(raw []byte) string {
	text := toUTF8(raw)
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if !unicode.IsPrint(r) && r != ' ' {
			return -1
		}
		return r
	}, text)
}

// pdfLexer 内容流词法分析
type pdfLexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	return isPDFSpace(c) || strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *pdfLexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		if !isPDFSpace(c) {
			return
		}
		l.pos++
	}
}

// next 返回一个操作数或一个算子；数组作为单个 []any 操作数返回
func (l *pdfLexer) next() (operand any, op string, ok bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return nil, "", false
	}
	switch c := l.data[l.pos]; c {
	case '(':
		return l.literal(), "", true
	case '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return nil, "", true
		}
		return l.hex(), "", true
	case '>':
		l.pos++
		if l.pos < len(l.data) && l.data[l.pos] == '>' {
			l.pos++
		}
		return nil, "", true
	case '[':
		l.pos++
		var arr []any
		for {
			l.skipSpace()
			if l.pos >= len(l.data) {
				break
			}
			if l.data[l.pos] == ']' {
				l.pos++
				break
			}
			v, op, ok := l.next()
			if !ok {
				break
			}
			if op == "" && v != nil {
				arr = append(arr, v)
			}
		}
		return arr, "", true
	case '/':
		l.pos++
		return pdfName(l.word()), "", true
	default:
		w := l.word()
		if w == "" {
			l.pos++
			return nil, "", true
		}
		if f, err := strconv.ParseFloat(w, 64); err == nil {
			return f, "", true
		}
		return nil, w, true
	}
}

func (l *pdfLexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// literal 解析 (...) 字符串，支持嵌套括号与转义
func (l *pdfLexer) literal() []byte {
	l.pos++
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// hex 解析 <...> 十六进制字符串，奇数位补 0
func (l *pdfLexer) hex() []byte {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage 跳过 ID 与 EI 之间的内联图像数据
func (l *pdfLexer) skipInlineImage() {
	for l.pos < len(l.data) {
		i := bytes.Index(l.data[l.pos:], []byte("EI"))
		if i < 0 {
			l.pos = len(l.data)
			return
		}
		at := l.pos + i
		l.pos = at + 2
		if at > 0 && isPDFSpace(l.data[at-1]) && (l.pos >= len(l.data) || isPDFDelim(l.data[l.pos])) {
			return
		}
	}
}

const (
	pdfMarginX      = 50.0
	pdfMarginTop    = 60.0
	pdfMarginBottom = 60.0
	pdfFontRegular  = "Helvetica"
	pdfFontBold     = "Helvetica-Bold"
)

type pdfFontSpec struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type pdfTextBox struct {
	Value string      `json:"value"`
	Pos   [2]float64  `json:"pos"`
	Font  pdfFontSpec `json:"font"`
}

type pdfPageSpec struct {
	Content struct {
		Text []pdfTextBox `json:"text"`
	} `json:"content"`
}

// pdfCreateSpec pdfcpu create 的 JSON 页面描述
type pdfCreateSpec struct {
	Paper  string                  `json:"paper"`
	Origin string                  `json:"origin"`
	Pages  map[string]*pdfPageSpec `json:"pages"`
}

// pdfLayout 自上而下逐行排版，超出下边距时换页
type pdfLayout struct {
	width, height float64
	pages         []*pdfPageSpec
	y             float64
}

func (l *pdfLayout) newPage() {
	l.pages = append(l.pages, &pdfPageSpec{})
	l.y = l.height - pdfMarginTop
}

func (l *pdfLayout) place(text, fontName string, size int, x, y float64) {
	p := l.pages[len(l.pages)-1]
	p.Content.Text = append(p.Content.Text, pdfTextBox{
		Value: escapePDFPercent(text),
		Pos:   [2]float64{x, y},
		Font:  pdfFontSpec{Name: fontName, Size: size},
	})
}

// block 折行输出一个块；块前留 before，块后留 0.8 倍字号
func (l *pdfLayout) block(text, fontName string, size int, before float64) {
	lh := pdffont.LineHeight(fontName, size)
	if len(l.pages) == 0 {
		l.newPage()
	} else {
		l.y -= before
	}
	for _, raw := range strings.Split(text, "\n") {
		for _, line := range wrapPDFText(raw, fontName, size, l.width-2*pdfMarginX) {
			if l.y-lh < pdfMarginBottom {
				l.newPage()
			}
			l.y -= lh
			l.place(line, fontName, size, pdfMarginX, l.y)
		}
	}
	l.y -= float64(size) * 0.8
}

// wrapPDFText 按字宽折行；超宽的单词独占一行
func wrapPDFText(text, fontName string, size int, width float64) []string {
	var lines []string
	cur := ""
	for _, w := range strings.Fields(text) {
		if cur == "" {
			cur = w
			continue
		}
		if pdffont.TextWidth(cur+" "+w, fontName, size) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// escapePDFPercent pdfcpu 会把 %p %P %t %v 替换为页码等占位值
func escapePDFPercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// renderPDF 无 unipdf 许可时用 pdfcpu create 生成文本 PDF：
// 标题、段落与表格行按块排版，页眉为文档标题，页脚为页码
func renderPDF(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	paper := "A4"
	if strings.EqualFold(opts.CustomOption("pdf.page_size", "A4"), "letter") {
		paper = "Letter"
	}
	dim := types.PaperSize[paper]
	l := &pdfLayout{width: dim.Width, height: dim.Height}

	for _, blk := range Blocks(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch blk.Kind {
		case BlockHeading:
			size := int(headingFontSize(blk.Level))
			l.block(blk.Text, pdfFontBold, size, float64(size)*0.6)
		case BlockTable:
			l.block(pdfTableRows(blk), pdfFontRegular, 9, 4)
		default:
			l.block(blk.Text, pdfFontRegular, 11, 0)
		}
	}
	if len(l.pages) == 0 {
		l.newPage()
	}

	title := plainTitle(doc)
	spec := pdfCreateSpec{Paper: paper, Origin: "LowerLeft", Pages: make(map[string]*pdfPageSpec, len(l.pages))}
	for i, p := range l.pages {
		if opts.PreserveHeadersFooters && title != "" {
			p.Content.Text = append([]pdfTextBox{{
				Value: escapePDFPercent(title),
				Pos:   [2]float64{pdfMarginX, dim.Height - 30},
				Font:  pdfFontSpec{Name: pdfFontRegular, Size: 8},
			}}, p.Content.Text...)
		}
		if opts.PreservePageNumbers {
			p.Content.Text = append(p.Content.Text, pdfTextBox{
				Value: fmt.Sprintf("Page %d of %d", i+1, len(l.pages)),
				Pos:   [2]float64{pdfMarginX, 25},
				Font:  pdfFontSpec{Name: pdfFontRegular, Size: 8},
			})
		}
		spec.Pages[strconv.Itoa(i+1)] = p
	}

	layout, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(layout), &out, pdfmodel.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("create pdf: %w", err)
	}
	if !opts.PreserveMetadata {
		return out.Bytes(), nil
	}

	props := map[string]string{}
	for k, v := range map[string]string{
		"Title":    doc.Metadata.Title,
		"Author":   doc.Metadata.Author,
		"Subject":  doc.Metadata.Subject,
		"Keywords": strings.Join(doc.Metadata.Keywords, ", "),
		"Creator":  doc.Metadata.Creator,
	} {
		if v != "" {
			props[k] = v
		}
	}
	if len(props) == 0 {
		return out.Bytes(), nil
	}
	var withInfo bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(out.Bytes()), &withInfo, props, nil); err != nil {
		return nil, fmt.Errorf("pdf info: %w", err)
	}
	return withInfo.Bytes(), nil
}

// pdfTableRows 表格逐行输出，单元格以空格分隔
func pdfTableRows(blk Block) string {
	if blk.Table == nil {
		return blk.Text
	}
	rows := make([]string, 0, len(blk.Table.Cells))
	for _, row := range blk.Table.Cells {
		rows = append(rows, strings.Join(row, "   "))
	}
	return strings.Join(rows, "\n")
}
