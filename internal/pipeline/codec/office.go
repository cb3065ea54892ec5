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
	"bytes"
	"compress/flate"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"docconv/internal/pipeline/common"
)

// openZip 打开内存中的 ZIP 容器
func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrMalformed, err)
	}
	return zr, nil
}

// zipFile 读取容器内文件，不存在时返回 (nil, nil)
func zipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}

// mustZipFile 读取必需的容器文件
func mustZipFile(zr *zip.Reader, name string) ([]byte, error) {
	data, err := zipFile(zr, name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s not found in archive", ErrMalformed, name)
	}
	return data, nil
}

// zipBuilder 按压缩级别写 ZIP 容器
type zipBuilder struct {
	buf bytes.Buffer
	zw  *zip.Writer
	err error
}

func newZipBuilder(level common.CompressionLevel) *zipBuilder {
	z := &zipBuilder{}
	z.zw = zip.NewWriter(&z.buf)
	fl := flate.DefaultCompression
	switch level {
	case common.CompressionNone:
		fl = flate.NoCompression
	case common.CompressionLow:
		fl = flate.BestSpeed
	case common.CompressionHigh:
		fl = flate.BestCompression
	}
	z.zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, fl)
	})
	return z
}

// stored 不压缩写入（ODF/EPUB 的 mimetype 必须为首个且不压缩）
func (z *zipBuilder) stored(name string, data []byte) {
	if z.err != nil {
		return
	}
	w, err := z.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		z.err = err
		return
	}
	_, z.err = w.Write(data)
}

func (z *zipBuilder) add(name string, data []byte) {
	if z.err != nil {
		return
	}
	w, err := z.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		z.err = err
		return
	}
	_, z.err = w.Write(data)
}

func (z *zipBuilder) addString(name, data string) {
	z.add(name, []byte(data))
}

func (z *zipBuilder) bytes() ([]byte, error) {
	if z.err != nil {
		return nil, z.err
	}
	if err := z.zw.Close(); err != nil {
		return nil, err
	}
	return z.buf.Bytes(), nil
}

// esc XML 转义
func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// attr 取属性值（按本地名）
func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// relationships OOXML 关系表 id -> target
type relationships map[string]relationship

type relationship struct {
	Type     string
	Target   string
	External bool
}

func parseRels(data []byte) relationships {
	rels := relationships{}
	if len(data) == 0 {
		return rels
	}
	var doc struct {
		Items []struct {
			ID         string `xml:"Id,attr"`
			Type       string `xml:"Type,attr"`
			Target     string `xml:"Target,attr"`
			TargetMode string `xml:"TargetMode,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return rels
	}
	for _, r := range doc.Items {
		rels[r.ID] = relationship{Type: r.Type, Target: r.Target, External: strings.EqualFold(r.TargetMode, "External")}
	}
	return rels
}

// resolvePart 关系目标相对 base 目录解析为容器内路径
func resolvePart(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// coreProps docProps/core.xml
type coreProps struct {
	Title    string `xml:"title"`
	Subject  string `xml:"subject"`
	Creator  string `xml:"creator"`
	Keywords string `xml:"keywords"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

// appProps docProps/app.xml
type appProps struct {
	Application string `xml:"Application"`
	Pages       int    `xml:"Pages"`
	Slides      int    `xml:"Slides"`
}

func readOOXMLMetadata(zr *zip.Reader) common.DocumentMetadata {
	var meta common.DocumentMetadata
	if data, _ := zipFile(zr, "docProps/core.xml"); data != nil {
		var cp coreProps
		if xml.Unmarshal(data, &cp) == nil {
			meta.Title = strings.TrimSpace(cp.Title)
			meta.Author = strings.TrimSpace(cp.Creator)
			meta.Subject = strings.TrimSpace(cp.Subject)
			meta.Keywords = splitKeywords(cp.Keywords)
			meta.CreationDate = parseTime(cp.Created)
			meta.ModificationDate = parseTime(cp.Modified)
		}
	}
	if data, _ := zipFile(zr, "docProps/app.xml"); data != nil {
		var ap appProps
		if xml.Unmarshal(data, &ap) == nil {
			meta.Creator = ap.Application
			meta.PageCount = ap.Pages
			if ap.Slides > 0 {
				meta.PageCount = ap.Slides
			}
		}
	}
	return meta
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func coreXML(meta common.DocumentMetadata) string {
	now := time.Now().UTC().Format(time.RFC3339)
	created := now
	if meta.CreationDate != nil {
		created = meta.CreationDate.UTC().Format(time.RFC3339)
	}
	return xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(meta.Title) + `</dc:title>` +
		`<dc:subject>` + esc(meta.Subject) + `</dc:subject>` +
		`<dc:creator>` + esc(meta.Author) + `</dc:creator>` +
		`<cp:keywords>` + esc(strings.Join(meta.Keywords, ", ")) + `</cp:keywords>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + created + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + now + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appXML(pages int) string {
	return xml.Header + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>docconv</Application><Pages>` + strconv.Itoa(pages) + `</Pages></Properties>`
}

// pngImages 把可解码的内嵌图片统一转为 PNG
func pngImages(images []common.DocumentImage) []common.DocumentImage {
	var out []common.DocumentImage
	for _, img := range images {
		decoded, ok := decodeEmbedded(img)
		if !ok {
			continue
		}
		data, err := PNG(decoded)
		if err != nil {
			continue
		}
		b := decoded.Bounds()
		out = append(out, common.DocumentImage{
			ID:          img.ID,
			Data:        data,
			MimeType:    "image/png",
			Width:       b.Dx(),
			Height:      b.Dy(),
			Description: img.Description,
		})
	}
	return out
}

// imageFromPart 从容器读取图片部件
func imageFromPart(zr *zip.Reader, name string) (common.DocumentImage, bool) {
	data, err := zipFile(zr, name)
	if err != nil || data == nil {
		return common.DocumentImage{}, false
	}
	img := common.DocumentImage{Data: data, MimeType: mimeForImage(name)}
	if cfg, ok := imageConfig(data); ok {
		img.Width, img.Height = cfg[0], cfg[1]
	}
	return img, true
}

func mimeForImage(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
