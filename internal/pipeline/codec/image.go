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
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"docconv/internal/pipeline/common"
)

// decodeImage 解码位图；内容中保留原始字节作为唯一图片
func decodeImage(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	img, kind, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrMalformed, err)
	}
	bounds := img.Bounds()
	b := newBuilder()
	b.image(common.DocumentImage{
		ID:       "image-1",
		Data:     data,
		MimeType: "image/" + kind,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	})
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{
		Content: content,
		Metadata: common.DocumentMetadata{
			PageCount: 1,
			Properties: map[string]string{
				"width":         strconv.Itoa(bounds.Dx()),
				"height":        strconv.Itoa(bounds.Dy()),
				"source_format": kind,
			},
		},
		Bitmap: img,
	}, nil
}

func imageEncoder(id string) EncoderFunc {
	return func(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
		img := doc.Bitmap
		if img == nil {
			for _, embedded := range doc.Content.Images {
				if decoded, ok := decodeEmbedded(embedded); ok {
					img = decoded
					break
				}
			}
		}
		if img == nil {
			return nil, ErrNoBitmap
		}
		var buf bytes.Buffer
		var err error
		switch id {
		case "jpg":
			err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(opts)})
		case "png":
			enc := png.Encoder{CompressionLevel: pngCompression(opts.Compression)}
			err = enc.Encode(&buf, img)
		case "gif":
			err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
		case "bmp":
			err = bmp.Encode(&buf, img)
		case "tiff":
			topts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
			if opts.Compression == common.CompressionNone {
				topts = &tiff.Options{Compression: tiff.Uncompressed}
			}
			err = tiff.Encode(&buf, img, topts)
		default:
			return nil, fmt.Errorf("%w: image encoder %s", ErrUnsupportedFormat, id)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", id, err)
		}
		return buf.Bytes(), nil
	}
}

// decodeEmbedded 解码内容中的内嵌图片
func decodeEmbedded(img common.DocumentImage) (image.Image, bool) {
	if len(img.Data) == 0 {
		return nil, false
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// jpegQuality image.quality 自定义选项优先，否则按压缩级别
func jpegQuality(opts *common.ConversionOptions) int {
	if q, err := strconv.Atoi(opts.CustomOption("image.quality", "")); err == nil && q >= 1 && q <= 100 {
		return q
	}
	switch opts.Compression {
	case common.CompressionNone:
		return 100
	case common.CompressionLow:
		return 90
	case common.CompressionHigh:
		return 60
	default:
		return 80
	}
}

func pngCompression(level common.CompressionLevel) png.CompressionLevel {
	switch level {
	case common.CompressionNone:
		return png.NoCompression
	case common.CompressionLow:
		return png.BestSpeed
	case common.CompressionHigh:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}

// PNG 把位图编码为 PNG，供缩略图与可视化对比使用
func PNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageConfig 读取尺寸，不完整解码
func imageConfig(data []byte) ([2]int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return [2]int{}, false
	}
	return [2]int{cfg.Width, cfg.Height}, true
}
