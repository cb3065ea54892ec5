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
	"encoding/xml"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docconv/internal/pipeline/common"
)

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Title    []string `xml:"title"`
		Creator  []string `xml:"creator"`
		Subject  []string `xml:"subject"`
		Date     string   `xml:"date"`
		Language string   `xml:"language"`
	} `xml:"metadata"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// decodeEPUB container.xml -> OPF -> 按 spine 顺序解析 XHTML 章节
func decodeEPUB(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	containerXML, err := mustZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return nil, err
	}
	var container epubContainer
	if err := xml.Unmarshal(containerXML, &container); err != nil || len(container.Rootfiles) == 0 {
		return nil, fmt.Errorf("%w: container.xml has no rootfile", ErrMalformed)
	}
	opfPath := container.Rootfiles[0].FullPath
	opfXML, err := mustZipFile(zr, opfPath)
	if err != nil {
		return nil, err
	}
	var pkg epubPackage
	if err := xml.Unmarshal(opfXML, &pkg); err != nil {
		return nil, fmt.Errorf("%w: opf: %v", ErrMalformed, err)
	}
	base := path.Dir(opfPath)
	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}

	b := newBuilder()
	chapters := 0
	for _, ref := range pkg.Spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		chapterPath := resolvePart(base, href)
		chapter, err := zipFile(zr, chapterPath)
		if err != nil || chapter == nil {
			continue
		}
		root, err := html.Parse(bytes.NewReader(chapter))
		if err != nil {
			continue
		}
		body := findAtom(root, atom.Body)
		if body == nil {
			body = root
		}
		dir := path.Dir(chapterPath)
		walkHTMLWith(b, body, func(src string) (common.DocumentImage, bool) {
			return imageFromPart(zr, resolvePart(dir, src))
		})
		chapters++
	}
	if chapters == 0 {
		return nil, fmt.Errorf("%w: epub has no readable chapters", ErrMalformed)
	}

	meta := common.DocumentMetadata{PageCount: chapters, Properties: map[string]string{}}
	if len(pkg.Metadata.Title) > 0 {
		meta.Title = strings.TrimSpace(pkg.Metadata.Title[0])
	}
	if len(pkg.Metadata.Creator) > 0 {
		meta.Author = strings.TrimSpace(pkg.Metadata.Creator[0])
	}
	if len(pkg.Metadata.Subject) > 0 {
		meta.Subject = strings.TrimSpace(pkg.Metadata.Subject[0])
		for _, s := range pkg.Metadata.Subject[1:] {
			meta.Keywords = append(meta.Keywords, strings.TrimSpace(s))
		}
	}
	meta.CreationDate = parseTime(pkg.Metadata.Date)
	if pkg.Metadata.Language != "" {
		meta.Properties["language"] = pkg.Metadata.Language
	}
	content := b.build()
	content.Structure.Pages = chapters
	return &Parsed{Content: content, Metadata: meta}, nil
}

type epubChapter struct {
	title  string
	blocks []Block
}

// encodeEPUB EPUB 3：每个一级标题开始一章，nav.xhtml 列出一、二级标题
func encodeEPUB(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	title := plainTitle(doc)
	if title == "" {
		title = "Untitled"
	}
	var chapters []epubChapter
	for _, blk := range Blocks(doc.Content) {
		if blk.Kind == BlockHeading && blk.Level == 1 || len(chapters) == 0 {
			ch := epubChapter{title: title}
			if blk.Kind == BlockHeading {
				ch.title = blk.Text
			}
			chapters = append(chapters, ch)
		}
		chapters[len(chapters)-1].blocks = append(chapters[len(chapters)-1].blocks, blk)
	}
	if len(chapters) == 0 {
		chapters = append(chapters, epubChapter{title: title})
	}

	var media []common.DocumentImage
	if opts.PreserveImages {
		media = pngImages(doc.Content.Images)
	}

	links := newLinkQueue(doc.Content.Links, opts.PreserveHyperlinks)
	z := newZipBuilder(opts.Compression)
	z.stored("mimetype", []byte("application/epub+zip"))
	z.addString("META-INF/container.xml", xml.Header+`<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">`+
		`<rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`)

	var manifest, spine, nav strings.Builder
	for i, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("chapter%d.xhtml", i+1)
		var body strings.Builder
		for _, blk := range ch.blocks {
			body.WriteString(xhtmlBlock(blk, links))
			if blk.Kind == BlockHeading && blk.Level <= 2 {
				fmt.Fprintf(&nav, `<li><a href="%s">%s</a></li>`, name, esc(blk.Text))
			}
		}
		if i == len(chapters)-1 {
			for j := range media {
				fmt.Fprintf(&body, `<p><img src="images/image%d.png" alt="%s"/></p>`, j+1, esc(media[j].Description))
			}
		}
		z.addString("OEBPS/"+name, xhtmlPage(ch.title, body.String()))
		fmt.Fprintf(&manifest, `<item id="c%d" href="%s" media-type="application/xhtml+xml"/>`, i+1, name)
		fmt.Fprintf(&spine, `<itemref idref="c%d"/>`, i+1)
	}
	for j, img := range media {
		z.add(fmt.Sprintf("OEBPS/images/image%d.png", j+1), img.Data)
		fmt.Fprintf(&manifest, `<item id="img%d" href="images/image%d.png" media-type="image/png"/>`, j+1, j+1)
	}
	if nav.Len() == 0 {
		fmt.Fprintf(&nav, `<li><a href="chapter1.xhtml">%s</a></li>`, esc(title))
	}
	z.addString("OEBPS/nav.xhtml", xhtmlPage(title, `<nav epub:type="toc" id="toc"><ol>`+nav.String()+`</ol></nav>`))

	var metadata strings.Builder
	fmt.Fprintf(&metadata, `<dc:identifier id="bookid">urn:uuid:%s</dc:identifier>`, uuid.New().String())
	fmt.Fprintf(&metadata, `<dc:title>%s</dc:title><dc:language>en</dc:language>`, esc(title))
	if opts.PreserveMetadata {
		if doc.Metadata.Author != "" {
			fmt.Fprintf(&metadata, `<dc:creator>%s</dc:creator>`, esc(doc.Metadata.Author))
		}
		if doc.Metadata.Subject != "" {
			fmt.Fprintf(&metadata, `<dc:subject>%s</dc:subject>`, esc(doc.Metadata.Subject))
		}
		for _, k := range doc.Metadata.Keywords {
			fmt.Fprintf(&metadata, `<dc:subject>%s</dc:subject>`, esc(k))
		}
	}
	fmt.Fprintf(&metadata, `<meta property="dcterms:modified">%s</meta>`, time.Now().UTC().Format("2006-01-02T15:04:05Z"))

	z.addString("OEBPS/content.opf", xml.Header+`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">`+
		`<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">`+metadata.String()+`</metadata>`+
		`<manifest><item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`+manifest.String()+`</manifest>`+
		`<spine>`+spine.String()+`</spine></package>`)
	return z.bytes()
}

func xhtmlPage(title, body string) string {
	return xml.Header + `<!DOCTYPE html>` + "\n" +
		`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` +
		`<head><meta charset="utf-8"/><title>` + esc(title) + `</title></head><body>` + body + `</body></html>`
}

// xhtmlBlock XHTML 要求良构，换行写为 <br/>
func xhtmlBlock(blk Block, links *linkQueue) string {
	text := func(s string) string {
		return strings.ReplaceAll(esc(s), "\n", "<br/>")
	}
	switch blk.Kind {
	case BlockHeading:
		return fmt.Sprintf("<h%d>%s</h%d>", blk.Level, text(blk.Text), blk.Level)
	case BlockTable:
		var sb strings.Builder
		sb.WriteString("<table>")
		for _, row := range blk.Table.Cells {
			sb.WriteString("<tr>")
			for col := 0; col < blk.Table.Columns; col++ {
				v := ""
				if col < len(row) {
					v = row[col]
				}
				sb.WriteString("<td>" + text(v) + "</td>")
			}
			sb.WriteString("</tr>")
		}
		sb.WriteString("</table>")
		return sb.String()
	default:
		var sb strings.Builder
		sb.WriteString("<p>")
		for _, seg := range links.split(blk.Text) {
			if seg.url != "" {
				fmt.Fprintf(&sb, `<a href="%s">%s</a>`, esc(seg.url), text(seg.text))
			} else {
				sb.WriteString(text(seg.text))
			}
		}
		sb.WriteString("</p>")
		return sb.String()
	}
}
