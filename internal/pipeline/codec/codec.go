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

// Package codec 字节级解码/编码器，引擎按格式 id 选择
package codec

import (
	"context"
	"fmt"
	"image"
	"sort"

	"docconv/internal/pipeline/common"
)

// Parsed 解码后的中间表示
type Parsed struct {
	Content  common.DocumentContent
	Metadata common.DocumentMetadata
	// Bitmap 仅图像来源非空
	Bitmap image.Image
}

// Decoder 解码器接口
type Decoder interface {
	Decode(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error)
}

// Encoder 编码器接口
type Encoder interface {
	Encode(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error)
}

// DecoderFunc 函数适配 Decoder
type DecoderFunc func(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error)

func (f DecoderFunc) Decode(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	return f(ctx, data, opts)
}

// EncoderFunc 函数适配 Encoder
type EncoderFunc func(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error)

func (f EncoderFunc) Encode(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	return f(ctx, doc, opts)
}

// Set 按格式 id 索引的编解码器集合
type Set struct {
	decoders map[string]Decoder
	encoders map[string]Encoder
}

// NewSet 创建内置编解码器集合
func NewSet() *Set {
	s := &Set{
		decoders: make(map[string]Decoder),
		encoders: make(map[string]Encoder),
	}
	s.registerBuiltins()
	return s
}

// registerBuiltins 注册内置编解码器
func (s *Set) registerBuiltins() {
	// 文档
	s.decoders["pdf"] = DecoderFunc(decodePDF)
	s.decoders["docx"] = DecoderFunc(decodeDOCX)
	s.decoders["odt"] = DecoderFunc(decodeODT)
	s.decoders["rtf"] = DecoderFunc(decodeRTF)
	s.encoders["pdf"] = EncoderFunc(encodePDF)
	s.encoders["docx"] = EncoderFunc(encodeDOCX)
	s.encoders["odt"] = EncoderFunc(encodeODT)
	s.encoders["rtf"] = EncoderFunc(encodeRTF)

	// 表格
	s.decoders["xlsx"] = DecoderFunc(decodeXLSX)
	s.decoders["ods"] = DecoderFunc(decodeODS)
	s.decoders["csv"] = delimitedDecoder(',')
	s.decoders["tsv"] = delimitedDecoder('\t')
	s.encoders["xlsx"] = EncoderFunc(encodeXLSX)
	s.encoders["csv"] = delimitedEncoder(',')
	s.encoders["tsv"] = delimitedEncoder('\t')

	// 演示文稿
	s.decoders["pptx"] = DecoderFunc(decodePPTX)
	s.decoders["odp"] = DecoderFunc(decodeODP)

	// 邮件
	s.decoders["eml"] = DecoderFunc(decodeEML)
	s.decoders["mbox"] = DecoderFunc(decodeMBOX)
	s.decoders["msg"] = DecoderFunc(decodeMSG)
	s.encoders["eml"] = EncoderFunc(encodeEML)
	s.encoders["mbox"] = EncoderFunc(encodeMBOX)

	// 图像
	for _, id := range []string{"jpg", "png", "gif", "bmp", "tiff", "webp"} {
		s.decoders[id] = DecoderFunc(decodeImage)
	}
	for _, id := range []string{"jpg", "png", "gif", "bmp", "tiff"} {
		s.encoders[id] = imageEncoder(id)
	}

	// 标记语言
	s.decoders["md"] = DecoderFunc(decodeMarkdown)
	s.decoders["html"] = DecoderFunc(decodeHTML)
	s.decoders["xml"] = DecoderFunc(decodeXML)
	s.decoders["json"] = DecoderFunc(decodeJSON)
	s.decoders["yaml"] = DecoderFunc(decodeYAML)
	s.decoders["latex"] = DecoderFunc(decodeLaTeX)
	s.encoders["md"] = EncoderFunc(encodeMarkdown)
	s.encoders["html"] = EncoderFunc(encodeHTML)
	s.encoders["xml"] = EncoderFunc(encodeXML)
	s.encoders["json"] = EncoderFunc(encodeJSON)
	s.encoders["yaml"] = EncoderFunc(encodeYAML)
	s.encoders["latex"] = EncoderFunc(encodeLaTeX)

	// 电子书
	s.decoders["epub"] = DecoderFunc(decodeEPUB)
	s.encoders["epub"] = EncoderFunc(encodeEPUB)

	// 归档，仅列出条目
	s.decoders["zip"] = DecoderFunc(decodeZIPListing)

	// 纯文本
	s.decoders["txt"] = DecoderFunc(decodeText)
	s.encoders["txt"] = EncoderFunc(encodeText)
}

// Decoder 按格式 id 取解码器
func (s *Set) Decoder(id string) (Decoder, bool) {
	d, ok := s.decoders[id]
	return d, ok
}

// Encoder 按格式 id 取编码器
func (s *Set) Encoder(id string) (Encoder, bool) {
	e, ok := s.encoders[id]
	return e, ok
}

// AddDecoder 注册或替换解码器
func (s *Set) AddDecoder(id string, d Decoder) {
	s.decoders[id] = d
}

// AddEncoder 注册或替换编码器
func (s *Set) AddEncoder(id string, e Encoder) {
	s.encoders[id] = e
}

// DecoderIDs 已注册解码器的格式 id（排序）
func (s *Set) DecoderIDs() []string {
	return sortedKeys(s.decoders)
}

// EncoderIDs 已注册编码器的格式 id（排序）
func (s *Set) EncoderIDs() []string {
	return sortedKeys(s.encoders)
}

// Decode 按格式 id 解码
func (s *Set) Decode(ctx context.Context, id string, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	d, ok := s.decoders[id]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrUnsupportedFormat, id)
	}
	if opts == nil {
		def := common.DefaultConversionOptions()
		opts = &def
	}
	return d.Decode(ctx, data, opts)
}

// Encode 按格式 id 编码
func (s *Set) Encode(ctx context.Context, id string, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	e, ok := s.encoders[id]
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrUnsupportedFormat, id)
	}
	if opts == nil {
		def := common.DefaultConversionOptions()
		opts = &def
	}
	return e.Encode(ctx, doc, opts)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
