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
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/core"
	"github.com/unidoc/unipdf/v3/creator"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/model/optimize"

	"docconv/internal/pipeline/common"
)

// pdfLicensed unipdf 许可已生效；未生效时 PDF 读写全部走 pdfcpu
var pdfLicensed atomic.Bool

// SetPDFLicense 设置 unipdf 计量许可；空 key 或设置失败时保持 pdfcpu 模式
func SetPDFLicense(key string) error {
	if key == "" {
		pdfLicensed.Store(false)
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		pdfLicensed.Store(false)
		return err
	}
	pdfLicensed.Store(true)
	return nil
}

// PDFLicensed unipdf 是否可用
func PDFLicensed() bool {
	return pdfLicensed.Load()
}

// decodePDF 有 unipdf 许可时用 unipdf 提取正文与文档信息，否则退回 pdfcpu
func decodePDF(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	if !pdfLicensed.Load() {
		return decodePDFContent(ctx, data, opts)
	}
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrMalformed, err)
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return nil, fmt.Errorf("%w: pdf encryption: %v", ErrMalformed, err)
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(opts.Password))
		if err != nil || !ok {
			if opts.Password == "" {
				return nil, ErrPasswordRequired
			}
			return nil, errPDFWrongPassword
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("%w: page count: %v", ErrMalformed, err)
	}

	b := newBuilder()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("get page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("page %d extractor: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("extract page %d text: %w", i, err)
		}
		addPDFPage(b, text, i, i == 1)
	}

	imageCount := pdfImageCount(data, opts.Password)
	for i := 0; i < imageCount; i++ {
		b.image(common.DocumentImage{MimeType: "image/x-pdf-xobject"})
	}

	content := b.build()
	content.Structure.Pages = numPages

	meta := common.DocumentMetadata{
		PageCount:         numPages,
		Encrypted:         encrypted,
		PasswordProtected: encrypted && opts.Password != "",
	}
	if info, err := reader.GetPdfInfo(); err == nil && info != nil {
		meta.Title = pdfString(info.Title)
		meta.Author = pdfString(info.Author)
		meta.Subject = pdfString(info.Subject)
		meta.Keywords = splitKeywords(pdfString(info.Keywords))
		meta.Creator = pdfString(info.Creator)
		meta.Producer = pdfString(info.Producer)
		if info.CreationDate != nil {
			t := info.CreationDate.ToGoTime()
			meta.CreationDate = &t
		}
		if info.ModifiedDate != nil {
			t := info.ModifiedDate.ToGoTime()
			meta.ModificationDate = &t
		}
	}
	return &Parsed{Content: content, Metadata: meta}, nil
}

// addPDFPage 页内以空行分段；独立的短行视为标题
func addPDFPage(b *builder, text string, page int, first bool) {
	chunks := blankLines.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1)
	for i, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if i < len(chunks)-1 && looksLikeHeading(chunk) {
			level := 2
			if first && len(b.content.Structure.Headings) == 0 {
				level = 1
			}
			b.headingOnPage(chunk, level, page)
			continue
		}
		b.paragraph(chunk)
	}
}

func looksLikeHeading(s string) bool {
	if strings.Contains(s, "\n") || utf8.RuneCountInString(s) > 80 {
		return false
	}
	return !strings.ContainsAny(s[len(s)-1:], ".,;:!?")
}

// pdfImageCount 通过 pdfcpu 统计图像 XObject，失败返回 0
func pdfImageCount(data []byte, password string) int {
	pctx, err := readPDFContext(data, password)
	if err != nil {
		return 0
	}
	return pdfImageObjects(pctx)
}

func pdfImageObjects(pctx *pdfmodel.Context) int {
	n := 0
	for page := 1; page <= pctx.PageCount; page++ {
		n += len(pdfcpu.ImageObjNrs(pctx, page))
	}
	return n
}

func pdfString(s *core.PdfObjectString) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.Decoded())
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// pdfInfoMu unipdf 文档信息为进程级设置
var pdfInfoMu sync.Mutex

// encodePDF 位图来源走 pdfcpu 导入；其余有许可时用 unipdf creator 排版，否则用 pdfcpu 生成
func encodePDF(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	if doc.Bitmap != nil {
		return imageToPDF(doc.Bitmap)
	}
	if !pdfLicensed.Load() {
		return renderPDF(ctx, doc, opts)
	}

	c := creator.New()
	if strings.EqualFold(opts.CustomOption("pdf.page_size", "A4"), "letter") {
		c.SetPageSize(creator.PageSizeLetter)
	} else {
		c.SetPageSize(creator.PageSizeA4)
	}
	c.SetPageMargins(50, 50, 60, 60)
	if opts.Compression == common.CompressionHigh {
		c.SetOptimizer(optimize.New(optimize.Options{
			CombineDuplicateStreams:         true,
			CombineIdenticalIndirectObjects: true,
			CompressStreams:                 true,
			UseObjectStreams:                true,
			ImageQuality:                    jpegQuality(opts),
		}))
	}

	regular, err := model.NewStandard14Font(model.HelveticaName)
	if err != nil {
		return nil, err
	}
	bold, err := model.NewStandard14Font(model.HelveticaBoldName)
	if err != nil {
		return nil, err
	}

	title := plainTitle(doc)
	if opts.PreserveHeadersFooters && title != "" {
		c.DrawHeader(func(block *creator.Block, args creator.HeaderFunctionArgs) {
			p := c.NewStyledParagraph()
			chunk := p.Append(title)
			chunk.Style.Font = regular
			chunk.Style.FontSize = 8
			p.SetPos(50, 25)
			_ = block.Draw(p)
		})
	}
	if opts.PreservePageNumbers {
		c.DrawFooter(func(block *creator.Block, args creator.FooterFunctionArgs) {
			p := c.NewStyledParagraph()
			chunk := p.Append(fmt.Sprintf("Page %d of %d", args.PageNum, args.TotalPages))
			chunk.Style.Font = regular
			chunk.Style.FontSize = 8
			p.SetPos(50, block.Height()-30)
			_ = block.Draw(p)
		})
	}

	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	for _, blk := range Blocks(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch blk.Kind {
		case BlockHeading:
			p := c.NewStyledParagraph()
			chunk := p.Append(blk.Text)
			chunk.Style.Font = bold
			chunk.Style.FontSize = headingFontSize(blk.Level)
			p.SetMargins(0, 0, 12, 6)
			if err := c.Draw(p); err != nil {
				return nil, err
			}
		case BlockTable:
			if err := drawPDFTable(c, blk.Table); err != nil {
				return nil, err
			}
		default:
			p := c.NewStyledParagraph()
			for _, seg := range links.split(blk.Text) {
				var chunk *creator.TextChunk
				if seg.url != "" {
					chunk = p.AddExternalLink(seg.text, seg.url)
				} else {
					chunk = p.Append(seg.text)
				}
				chunk.Style.Font = regular
				chunk.Style.FontSize = 11
			}
			p.SetMargins(0, 0, 0, 8)
			if err := c.Draw(p); err != nil {
				return nil, err
			}
		}
	}

	if opts.PreserveImages {
		for _, img := range doc.Content.Images {
			goImg, ok := decodeEmbedded(img)
			if !ok {
				continue
			}
			pimg, err := c.NewImageFromGoImage(goImg)
			if err != nil {
				continue
			}
			if maxW := c.Width() - 100; pimg.Width() > maxW {
				pimg.ScaleToWidth(maxW)
			}
			pimg.SetMargins(0, 0, 6, 6)
			if err := c.Draw(pimg); err != nil {
				return nil, err
			}
		}
	}

	pdfInfoMu.Lock()
	defer pdfInfoMu.Unlock()
	if opts.PreserveMetadata {
		model.SetPdfTitle(doc.Metadata.Title)
		model.SetPdfAuthor(doc.Metadata.Author)
		model.SetPdfSubject(doc.Metadata.Subject)
		model.SetPdfKeywords(strings.Join(doc.Metadata.Keywords, ", "))
		model.SetPdfCreator(doc.Metadata.Creator)
	} else {
		model.SetPdfTitle("")
		model.SetPdfAuthor("")
		model.SetPdfSubject("")
		model.SetPdfKeywords("")
		model.SetPdfCreator("")
	}
	model.SetPdfProducer("docconv")
	model.SetPdfCreationDate(time.Now())

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func headingFontSize(level int) float64 {
	switch level {
	case 1:
		return 20
	case 2:
		return 16
	case 3:
		return 14
	default:
		return 12
	}
}

func drawPDFTable(c *creator.Creator, t *common.DocumentTable) error {
	if t == nil || t.Columns == 0 {
		return nil
	}
	table := c.NewTable(t.Columns)
	table.SetMargins(0, 0, 6, 10)
	for _, row := range t.Cells {
		for col := 0; col < t.Columns; col++ {
			text := ""
			if col < len(row) {
				text = row[col]
			}
			cell := table.NewCell()
			cell.SetBorder(creator.CellBorderSideAll, creator.CellBorderStyleSingle, 1)
			p := c.NewParagraph(text)
			p.SetFontSize(9)
			p.SetMargins(3, 3, 2, 2)
			if err := cell.SetContent(p); err != nil {
				return err
			}
		}
	}
	return c.Draw(table)
}

// imageToPDF 位图统一转 PNG 后由 pdfcpu 导入为单页 PDF
func imageToPDF(img image.Image) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, &out, []io.Reader{&pngBuf}, imp, pdfmodel.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("import image: %w", err)
	}
	return out.Bytes(), nil
}
