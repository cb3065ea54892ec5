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
	"encoding/xml"
	"fmt"
	"strings"

	"docconv/internal/pipeline/common"
)

// decodeDOCX 读取 word/document.xml：段落、标题样式、表格、超链接与内嵌图片
func decodeDOCX(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	docXML, err := mustZipFile(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	relsData, _ := zipFile(zr, "word/_rels/document.xml.rels")
	rels := parseRels(relsData)

	b := newBuilder()
	decoder := xml.NewDecoder(strings.NewReader(string(docXML)))
	var (
		para      strings.Builder
		style     string
		inText    bool
		linkURL   string
		linkStart int
		table     [][]string
		row       []string
		cell      strings.Builder
		tblDepth  int
		inCell    bool
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
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				para.WriteByte(' ')
			case "br":
				para.WriteByte('\n')
			case "hyperlink":
				linkURL = ""
				if rel, ok := rels[attr(t, "id")]; ok && rel.External {
					linkURL = rel.Target
				}
				linkStart = para.Len()
			case "blip":
				if rel, ok := rels[attr(t, "embed")]; ok {
					if img, ok := imageFromPart(zr, resolvePart("word", rel.Target)); ok {
						b.image(img)
					}
				}
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					table = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					inCell = true
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "hyperlink":
				if linkURL != "" && para.Len() >= linkStart {
					b.link(para.String()[linkStart:], linkURL)
				}
				linkURL = ""
			case "p":
				text := strings.TrimSpace(para.String())
				if inCell {
					if text != "" {
						if cell.Len() > 0 {
							cell.WriteByte(' ')
						}
						cell.WriteString(text)
					}
					continue
				}
				if level := docxHeadingLevel(style); level > 0 {
					b.heading(text, level)
				} else {
					b.paragraph(text)
				}
			case "tc":
				if tblDepth == 1 {
					row = append(row, cell.String())
					inCell = false
				}
			case "tr":
				if tblDepth == 1 {
					table = append(table, row)
				}
			case "tbl":
				if tblDepth == 1 {
					b.table(table)
				}
				tblDepth--
			}
		}
	}

	meta := readOOXMLMetadata(zr)
	content := b.build()
	if meta.PageCount > 0 {
		content.Structure.Pages = meta.PageCount
	}
	return &Parsed{Content: content, Metadata: meta}, nil
}

// docxHeadingLevel 段落样式名映射标题级别，如 "Heading1" -> 1、"Title" -> 1
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	relNS = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// encodeDOCX 输出最小可用的 WordprocessingML 包
func encodeDOCX(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	var body strings.Builder
	var rels []string
	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	nextRel := 2 // rId1 为 styles

	run := func(text string) string {
		lines := strings.Split(text, "\n")
		var sb strings.Builder
		sb.WriteString("<w:r><w:t xml:space=\"preserve\">")
		for i, line := range lines {
			if i > 0 {
				sb.WriteString("</w:t><w:br/><w:t xml:space=\"preserve\">")
			}
			sb.WriteString(esc(line))
		}
		sb.WriteString("</w:t></w:r>")
		return sb.String()
	}

	for _, blk := range Blocks(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&body, `<w:p><w:pPr><w:pStyle w:val="Heading%d"/></w:pPr>%s</w:p>`, blk.Level, run(blk.Text))
		case BlockTable:
			body.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
			for _, r := range blk.Table.Cells {
				body.WriteString("<w:tr>")
				for col := 0; col < blk.Table.Columns; col++ {
					text := ""
					if col < len(r) {
						text = r[col]
					}
					fmt.Fprintf(&body, `<w:tc><w:p>%s</w:p></w:tc>`, run(text))
				}
				body.WriteString("</w:tr>")
			}
			body.WriteString("</w:tbl>")
		default:
			body.WriteString("<w:p>")
			for _, seg := range links.split(blk.Text) {
				if seg.url == "" {
					body.WriteString(run(seg.text))
					continue
				}
				id := fmt.Sprintf("rId%d", nextRel)
				nextRel++
				rels = append(rels, fmt.Sprintf(`<Relationship Id="%s" Type="%s/hyperlink" Target="%s" TargetMode="External"/>`, id, relNS, esc(seg.url)))
				fmt.Fprintf(&body, `<w:hyperlink r:id="%s"><w:r><w:rPr><w:rStyle w:val="Hyperlink"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:hyperlink>`, id, esc(seg.text))
			}
			body.WriteString("</w:p>")
		}
	}

	var media []common.DocumentImage
	if opts.PreserveImages {
		media = pngImages(doc.Content.Images)
		for i, img := range media {
			id := fmt.Sprintf("rId%d", nextRel)
			nextRel++
			rels = append(rels, fmt.Sprintf(`<Relationship Id="%s" Type="%s/image" Target="media/image%d.png"/>`, id, relNS, i+1))
			body.WriteString(docxDrawing(id, i+1, img.Width, img.Height))
		}
	}

	z := newZipBuilder(opts.Compression)
	z.addString("[Content_Types].xml", xml.Header+`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`+
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`+
		`<Default Extension="xml" ContentType="application/xml"/>`+
		`<Default Extension="png" ContentType="image/png"/>`+
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`+
		`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>`+
		`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`+
		`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`+
		`</Types>`)
	z.addString("_rels/.rels", xml.Header+`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
		`<Relationship Id="rId1" Type="`+relNS+`/officeDocument" Target="word/document.xml"/>`+
		`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>`+
		`<Relationship Id="rId3" Type="`+relNS+`/extended-properties" Target="docProps/app.xml"/>`+
		`</Relationships>`)
	z.addString("word/document.xml", xml.Header+`<w:document xmlns:w="`+nsW+`" xmlns:r="`+nsR+`" `+
		`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" `+
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" `+
		`xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<w:body>`+body.String()+`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:body></w:document>`)
	z.addString("word/styles.xml", docxStyles())
	z.addString("word/_rels/document.xml.rels", xml.Header+`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
		`<Relationship Id="rId1" Type="`+relNS+`/styles" Target="styles.xml"/>`+strings.Join(rels, "")+`</Relationships>`)
	for i, img := range media {
		z.add(fmt.Sprintf("word/media/image%d.png", i+1), img.Data)
	}
	meta := doc.Metadata
	if !opts.PreserveMetadata {
		meta = common.DocumentMetadata{}
	}
	z.addString("docProps/core.xml", coreXML(meta))
	z.addString("docProps/app.xml", appXML(doc.Metadata.PageCount))
	return z.bytes()
}

func docxDrawing(relID string, n, w, h int) string {
	const emu = 9525
	maxW := 600
	if w > maxW {
		h = h * maxW / w
		w = maxW
	}
	return fmt.Sprintf(`<w:p><w:r><w:drawing><wp:inline><wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d"/>`+
		`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture"><pic:pic>`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="image%d.png"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		w*emu, h*emu, n, n, n, n, relID, w*emu, h*emu)
}

func docxStyles() string {
	var sb strings.Builder
	sb.WriteString(xml.Header + `<w:styles xmlns:w="` + nsW + `">`)
	sb.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>`)
	sizes := []int{40, 32, 28, 26, 24, 22}
	for i, sz := range sizes {
		fmt.Fprintf(&sb, `<w:style w:type="paragraph" w:styleId="Heading%d"><w:name w:val="heading %d"/><w:basedOn w:val="Normal"/>`+
			`<w:pPr><w:outlineLvl w:val="%d"/></w:pPr><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr></w:style>`, i+1, i+1, i, sz)
	}
	sb.WriteString(`<w:style w:type="character" w:styleId="Hyperlink"><w:name w:val="Hyperlink"/><w:rPr><w:color w:val="0563C1"/><w:u w:val="single"/></w:rPr></w:style>`)
	sb.WriteString(`<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:tblPr><w:tblBorders>` +
		`<w:top w:val="single" w:sz="4"/><w:left w:val="single" w:sz="4"/><w:bottom w:val="single" w:sz="4"/>` +
		`<w:right w:val="single" w:sz="4"/><w:insideH w:val="single" w:sz="4"/><w:insideV w:val="single" w:sz="4"/>` +
		`</w:tblBorders></w:tblPr></w:style>`)
	sb.WriteString(`</w:styles>`)
	return sb.String()
}
