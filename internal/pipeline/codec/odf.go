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
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docconv/internal/pipeline/common"
)

type odfKind int

const (
	odfDocument odfKind = iota
	odfSheet
	odfSlides
)

func decodeODT(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	return decodeODF(ctx, data, odfDocument)
}

func decodeODS(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	return decodeODF(ctx, data, odfSheet)
}

func decodeODP(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	return decodeODF(ctx, data, odfSlides)
}

// maxRepeated 限制 number-columns-repeated 展开
const maxRepeated = 64

// decodeODF 读取 content.xml 与 meta.xml
func decodeODF(ctx context.Context, data []byte, kind odfKind) (*Parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	contentXML, err := mustZipFile(zr, "content.xml")
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	decoder := xml.NewDecoder(strings.NewReader(string(contentXML)))
	var (
		text       strings.Builder
		inPara     bool
		heading    int
		linkURL    string
		linkStart  int
		tblDepth   int
		table      [][]string
		row        []string
		cell       strings.Builder
		inCell     bool
		repeat     int
		titleFrame bool
		pages      int
	)
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
			switch t.Name.Local {
			case "page":
				pages++
			case "frame":
				titleFrame = kind == odfSlides && attr(t, "class") == "title"
			case "h":
				inPara = true
				text.Reset()
				heading = 1
				if n, err := strconv.Atoi(attr(t, "outline-level")); err == nil {
					heading = n
				}
			case "p":
				if !inPara {
					inPara = true
					heading = 0
					text.Reset()
				}
			case "s":
				n, err := strconv.Atoi(attr(t, "c"))
				if err != nil || n < 1 {
					n = 1
				}
				text.WriteString(strings.Repeat(" ", n))
			case "tab":
				text.WriteByte(' ')
			case "line-break":
				text.WriteByte('\n')
			case "a":
				linkURL = attr(t, "href")
				linkStart = text.Len()
			case "image":
				if href := attr(t, "href"); href != "" && !strings.Contains(href, "://") {
					if img, ok := imageFromPart(zr, strings.TrimPrefix(href, "./")); ok {
						b.image(img)
					}
				}
			case "table":
				tblDepth++
				if tblDepth == 1 {
					table = nil
					if kind == odfSheet {
						b.heading(attr(t, "name"), 1)
					}
				}
			case "table-row":
				if tblDepth == 1 {
					row = nil
				}
			case "table-cell", "covered-table-cell":
				if tblDepth == 1 {
					cell.Reset()
					inCell = true
					repeat = 1
					if n, err := strconv.Atoi(attr(t, "number-columns-repeated")); err == nil && n > 1 {
						repeat = n
					}
				}
			}
		case xml.CharData:
			if inPara {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "frame":
				titleFrame = false
			case "a":
				if linkURL != "" && text.Len() >= linkStart {
					b.link(text.String()[linkStart:], linkURL)
				}
				linkURL = ""
			case "h", "p":
				if !inPara {
					continue
				}
				inPara = false
				value := strings.TrimSpace(text.String())
				switch {
				case inCell:
					if value != "" {
						if cell.Len() > 0 {
							cell.WriteByte(' ')
						}
						cell.WriteString(value)
					}
				case heading > 0:
					b.heading(value, heading)
				case titleFrame:
					b.headingOnPage(value, 2, pages)
				default:
					b.paragraph(value)
				}
			case "table-cell", "covered-table-cell":
				if tblDepth == 1 {
					v := cell.String()
					n := repeat
					if v == "" && n > maxRepeated {
						n = 0
					}
					if n > maxRepeated {
						n = maxRepeated
					}
					for i := 0; i < n; i++ {
						row = append(row, v)
					}
					inCell = false
				}
			case "table-row":
				if tblDepth == 1 {
					table = append(table, trimTrailingEmpty(row))
				}
			case "table":
				if tblDepth == 1 {
					b.table(table)
				}
				tblDepth--
			}
		}
	}

	meta := readODFMetadata(zr)
	content := b.build()
	switch {
	case kind == odfSlides:
		content.Structure.Pages = pages
		meta.PageCount = pages
	case meta.PageCount > 0:
		content.Structure.Pages = meta.PageCount
	}
	return &Parsed{Content: content, Metadata: meta}, nil
}

func trimTrailingEmpty(row []string) []string {
	for len(row) > 0 && row[len(row)-1] == "" {
		row = row[:len(row)-1]
	}
	return row
}

// odfMeta meta.xml 中 office:meta 部分
type odfMeta struct {
	Meta struct {
		Title          string   `xml:"title"`
		Subject        string   `xml:"subject"`
		Creator        string   `xml:"creator"`
		InitialCreator string   `xml:"initial-creator"`
		Keywords       []string `xml:"keyword"`
		Generator      string   `xml:"generator"`
		CreationDate   string   `xml:"creation-date"`
		Date           string   `xml:"date"`
		Statistic      struct {
			PageCount string `xml:"page-count,attr"`
		} `xml:"document-statistic"`
	} `xml:"meta"`
}

func readODFMetadata(zr *zip.Reader) common.DocumentMetadata {
	var meta common.DocumentMetadata
	data, _ := zipFile(zr, "meta.xml")
	if data == nil {
		return meta
	}
	var m odfMeta
	if xml.Unmarshal(data, &m) != nil {
		return meta
	}
	meta.Title = strings.TrimSpace(m.Meta.Title)
	meta.Subject = strings.TrimSpace(m.Meta.Subject)
	meta.Author = strings.TrimSpace(m.Meta.InitialCreator)
	if meta.Author == "" {
		meta.Author = strings.TrimSpace(m.Meta.Creator)
	}
	for _, k := range m.Meta.Keywords {
		meta.Keywords = append(meta.Keywords, splitKeywords(k)...)
	}
	meta.Creator = m.Meta.Generator
	meta.CreationDate = parseTime(m.Meta.CreationDate)
	meta.ModificationDate = parseTime(m.Meta.Date)
	meta.PageCount, _ = strconv.Atoi(m.Meta.Statistic.PageCount)
	return meta
}

const odfNamespaces = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
	`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
	`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" ` +
	`xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0" ` +
	`xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0" ` +
	`xmlns:xlink="http://www.w3.org/1999/xlink" ` +
	`xmlns:dc="http://purl.org/dc/elements/1.1/" ` +
	`xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0" office:version="1.3"`

// encodeODT 输出 OpenDocument 文本包
func encodeODT(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	var body strings.Builder
	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	for _, blk := range Blocks(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&body, `<text:h text:outline-level="%d">%s</text:h>`, blk.Level, odfText(blk.Text))
		case BlockTable:
			fmt.Fprintf(&body, `<table:table table:name="%s"><table:table-column table:number-columns-repeated="%d"/>`, esc(blk.Table.ID), blk.Table.Columns)
			for _, r := range blk.Table.Cells {
				body.WriteString("<table:table-row>")
				for col := 0; col < blk.Table.Columns; col++ {
					v := ""
					if col < len(r) {
						v = r[col]
					}
					fmt.Fprintf(&body, `<table:table-cell office:value-type="string"><text:p>%s</text:p></table:table-cell>`, odfText(v))
				}
				body.WriteString("</table:table-row>")
			}
			body.WriteString("</table:table>")
		default:
			body.WriteString("<text:p>")
			for _, seg := range links.split(blk.Text) {
				if seg.url == "" {
					body.WriteString(odfText(seg.text))
					continue
				}
				fmt.Fprintf(&body, `<text:a xlink:type="simple" xlink:href="%s">%s</text:a>`, esc(seg.url), odfText(seg.text))
			}
			body.WriteString("</text:p>")
		}
	}

	var media []common.DocumentImage
	if opts.PreserveImages {
		media = pngImages(doc.Content.Images)
		for i, img := range media {
			wcm := float64(img.Width) * 2.54 / 96
			hcm := float64(img.Height) * 2.54 / 96
			if wcm > 16 {
				hcm = hcm * 16 / wcm
				wcm = 16
			}
			fmt.Fprintf(&body, `<text:p><draw:frame draw:name="image%d" svg:width="%.2fcm" svg:height="%.2fcm" text:anchor-type="as-char">`+
				`<draw:image xlink:href="Pictures/image%d.png" xlink:type="simple" xlink:show="embed" xlink:actuate="onLoad"/></draw:frame></text:p>`,
				i+1, wcm, hcm, i+1)
		}
	}

	z := newZipBuilder(opts.Compression)
	z.stored("mimetype", []byte("application/vnd.oasis.opendocument.text"))
	var manifest strings.Builder
	manifest.WriteString(xml.Header + `<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.3">` +
		`<manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.text"/>` +
		`<manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>` +
		`<manifest:file-entry manifest:full-path="meta.xml" manifest:media-type="text/xml"/>`)
	for i := range media {
		fmt.Fprintf(&manifest, `<manifest:file-entry manifest:full-path="Pictures/image%d.png" manifest:media-type="image/png"/>`, i+1)
	}
	manifest.WriteString(`</manifest:manifest>`)
	z.addString("META-INF/manifest.xml", manifest.String())
	z.addString("content.xml", xml.Header+`<office:document-content `+odfNamespaces+`><office:body><office:text>`+
		body.String()+`</office:text></office:body></office:document-content>`)
	meta := doc.Metadata
	if !opts.PreserveMetadata {
		meta = common.DocumentMetadata{}
	}
	z.addString("meta.xml", odfMetaXML(meta))
	for i, img := range media {
		z.add(fmt.Sprintf("Pictures/image%d.png", i+1), img.Data)
	}
	return z.bytes()
}

// odfText 转义并把换行写为 text:line-break
func odfText(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = esc(lines[i])
	}
	return strings.Join(lines, "<text:line-break/>")
}

func odfMetaXML(meta common.DocumentMetadata) string {
	var sb strings.Builder
	sb.WriteString(xml.Header + `<office:document-meta ` + odfNamespaces + `><office:meta>`)
	sb.WriteString(`<meta:generator>docconv</meta:generator>`)
	if meta.Title != "" {
		sb.WriteString(`<dc:title>` + esc(meta.Title) + `</dc:title>`)
	}
	if meta.Subject != "" {
		sb.WriteString(`<dc:subject>` + esc(meta.Subject) + `</dc:subject>`)
	}
	if meta.Author != "" {
		sb.WriteString(`<meta:initial-creator>` + esc(meta.Author) + `</meta:initial-creator>`)
	}
	for _, k := range meta.Keywords {
		sb.WriteString(`<meta:keyword>` + esc(k) + `</meta:keyword>`)
	}
	if meta.CreationDate != nil {
		sb.WriteString(`<meta:creation-date>` + meta.CreationDate.UTC().Format("2006-01-02T15:04:05") + `</meta:creation-date>`)
	}
	sb.WriteString(`<dc:date>` + time.Now().UTC().Format("2006-01-02T15:04:05") + `</dc:date>`)
	sb.WriteString(`</office:meta></office:document-meta>`)
	return sb.String()
}
