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
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"docconv/internal/pipeline/common"
)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// decodePPTX 按幻灯片编号顺序读取文本框、标题占位符、表格、链接与图片
func decodePPTX(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slidePart.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, ErrMalformed
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	b := newBuilder()
	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		xmlData, err := mustZipFile(zr, s.name)
		if err != nil {
			return nil, err
		}
		relsData, _ := zipFile(zr, path.Join(path.Dir(s.name), "_rels", path.Base(s.name)+".rels"))
		decodeSlide(b, xmlData, parseRels(relsData), func(target string) {
			if img, ok := imageFromPart(zr, resolvePart(path.Dir(s.name), target)); ok {
				b.image(img)
			}
		}, i+1)
	}

	meta := readOOXMLMetadata(zr)
	meta.PageCount = len(slides)
	content := b.build()
	content.Structure.Pages = len(slides)
	return &Parsed{Content: content, Metadata: meta}, nil
}

func decodeSlide(b *builder, data []byte, rels relationships, addImage func(string), page int) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	var (
		para      strings.Builder
		inText    bool
		isTitle   bool
		level     int
		linkURL   string
		linkStart int
		tblDepth  int
		table     [][]string
		row       []string
		cell      strings.Builder
		inCell    bool
	)
	for {
		tok, err := decoder.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				isTitle = false
			case "ph":
				switch attr(t, "type") {
				case "ctrTitle":
					isTitle, level = true, 1
				case "title":
					isTitle, level = true, 2
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteByte('\n')
			case "hlinkClick":
				linkURL = ""
				if rel, ok := rels[attr(t, "id")]; ok && rel.External {
					linkURL = rel.Target
				}
				linkStart = para.Len()
			case "blip":
				if rel, ok := rels[attr(t, "embed")]; ok {
					addImage(rel.Target)
				}
			case "tbl":
				tblDepth++
				table = nil
			case "tr":
				row = nil
			case "tc":
				cell.Reset()
				inCell = true
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				// a:hlinkClick 位于 a:rPr 中，链接文本为该 run 的 a:t
				if linkURL != "" && para.Len() >= linkStart {
					b.link(para.String()[linkStart:], linkURL)
				}
				linkURL = ""
			case "p":
				text := strings.TrimSpace(para.String())
				switch {
				case inCell:
					if text != "" {
						if cell.Len() > 0 {
							cell.WriteByte(' ')
						}
						cell.WriteString(text)
					}
				case isTitle:
					b.headingOnPage(text, level, page)
				default:
					b.paragraph(text)
				}
			case "tc":
				row = append(row, cell.String())
				inCell = false
			case "tr":
				table = append(table, row)
			case "tbl":
				if tblDepth == 1 {
					b.table(table)
				}
				tblDepth--
			}
		}
	}
}
