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

// Package engine 转换引擎：每个格式类别一个实现，编排器按类别选择
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
	"docconv/pkg/tracing"
)

// ProgressFunc 子步骤进度回调，取值 [0,1]
type ProgressFunc func(progress float64)

// Engine 转换引擎接口
type Engine interface {
	// Category 引擎负责的格式类别
	Category() format.Category
	// Convert 将 input 文件转换为 output 文件；任何失败（含内部 panic）都返回 false，不向上传播
	Convert(ctx context.Context, input, output string, source, target format.Format, opts common.ConversionOptions, report ProgressFunc) bool
	// ExtractContent 提取内容
	ExtractContent(ctx context.Context, input string, f format.Format, opts common.ExtractionOptions) (common.DocumentContent, error)
	// ExtractMetadata 提取元数据
	ExtractMetadata(ctx context.Context, input string, f format.Format) (common.DocumentMetadata, error)
	// SupportsConversion 引擎能否处理该源/目标组合，作为路径图之外的第二道门
	SupportsConversion(source, target format.Format) bool
}

// transformFunc 解码与编码之间的可选变换（如 OCR）
type transformFunc func(ctx context.Context, doc *codec.Parsed, target format.Format) (*codec.Parsed, error)

// codecEngine 基于 codec.Set 的通用引擎
type codecEngine struct {
	category format.Category
	codecs   *codec.Set
	logger   *slog.Logger
	decodes  map[string]bool
	encodes  map[string]bool
	// copySame 同格式是否按字节复制
	copySame bool
	// transforms 目标格式 id -> 变换
	transforms map[string]transformFunc
	// enrich 内容提取后的补充步骤
	enrich func(ctx context.Context, doc *codec.Parsed) *codec.Parsed
}

func newCodecEngine(category format.Category, codecs *codec.Set, logger *slog.Logger, decodes, encodes []string) *codecEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &codecEngine{
		category:   category,
		codecs:     codecs,
		logger:     logger.With("engine", string(category)),
		decodes:    toSet(decodes),
		encodes:    toSet(encodes),
		copySame:   true,
		transforms: make(map[string]transformFunc),
	}
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// Category 实现 Engine
func (e *codecEngine) Category() format.Category {
	return e.category
}

// SupportsConversion 源格式属于本类别且有解码器，目标格式有编码器；同格式走字节复制
func (e *codecEngine) SupportsConversion(source, target format.Format) bool {
	if source.Category != e.category || !e.decodes[source.ID] {
		return false
	}
	if _, ok := e.codecs.Decoder(source.ID); !ok {
		return false
	}
	if source.ID == target.ID {
		return e.copySame
	}
	if !e.encodes[target.ID] {
		return false
	}
	_, ok := e.codecs.Encoder(target.ID)
	return ok
}

// Convert 实现 Engine
func (e *codecEngine) Convert(ctx context.Context, input, output string, source, target format.Format, opts common.ConversionOptions, report ProgressFunc) (ok bool) {
	ctx, span := tracing.StartEngineSpan(ctx, string(e.category), "convert")
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
			e.logger.Error("engine fault", "source", source.ID, "target", target.ID, "error", err.Error(), "cause", fmt.Sprint(r))
			_ = os.Remove(output)
			ok = false
		}
		tracing.EndWithError(span, err)
	}()

	if report == nil {
		report = func(float64) {}
	}
	if !e.SupportsConversion(source, target) {
		err = fmt.Errorf("%w: %s -> %s", common.ErrUnsupportedPath, source.ID, target.ID)
		e.logger.Warn("conversion not supported by engine", "source", source.ID, "target", target.ID)
		return false
	}
	if err = e.convert(ctx, input, output, source, target, &opts, report); err != nil {
		e.logger.Error("conversion failed", "source", source.ID, "target", target.ID, "error", err.Error(), "cause", rootCause(err).Error())
		_ = os.Remove(output)
		return false
	}
	return true
}

func (e *codecEngine) convert(ctx context.Context, input, output string, source, target format.Format, opts *common.ConversionOptions, report ProgressFunc) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	report(0.1)
	if err := ctx.Err(); err != nil {
		return err
	}

	if source.ID == target.ID {
		// 仍然解码一次，损坏的输入不能原样产出
		if _, err := e.codecs.Decode(ctx, source.ID, data, opts); err != nil {
			return err
		}
		report(0.5)
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		report(0.95)
		return nil
	}

	doc, err := e.codecs.Decode(ctx, source.ID, data, opts)
	if err != nil {
		return err
	}
	report(0.4)
	if err := ctx.Err(); err != nil {
		return err
	}

	if t, ok := e.transforms[target.ID]; ok {
		if doc, err = t(ctx, doc, target); err != nil {
			return err
		}
		report(0.6)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	out, err := e.codecs.Encode(ctx, target.ID, doc, opts)
	if err != nil {
		return err
	}
	report(0.8)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(out) == 0 {
		return common.ErrEmptyDocument
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	report(0.95)
	return nil
}

// decode 读取并解码输入文件
func (e *codecEngine) decode(ctx context.Context, input string, f format.Format) (*codec.Parsed, error) {
	if f.Category != e.category || !e.decodes[f.ID] {
		return nil, fmt.Errorf("%w: %s engine cannot read %s", common.ErrUnsupportedPath, e.category, f.ID)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return e.codecs.Decode(ctx, f.ID, data, nil)
}

// ExtractContent 实现 Engine
func (e *codecEngine) ExtractContent(ctx context.Context, input string, f format.Format, opts common.ExtractionOptions) (content common.DocumentContent, err error) {
	ctx, span := tracing.StartEngineSpan(ctx, string(e.category), "extract_content")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
			e.logger.Error("engine fault", "op", "extract_content", "format", f.ID, "error", err.Error(), "cause", fmt.Sprint(r))
		}
		tracing.EndWithError(span, err)
	}()

	doc, err := e.decode(ctx, input, f)
	if err != nil {
		return common.DocumentContent{}, err
	}
	if e.enrich != nil && opts.ExtractText {
		doc = e.enrich(ctx, doc)
	}
	return doc.Content.Filter(opts), nil
}

// ExtractMetadata 实现 Engine
func (e *codecEngine) ExtractMetadata(ctx context.Context, input string, f format.Format) (meta common.DocumentMetadata, err error) {
	ctx, span := tracing.StartEngineSpan(ctx, string(e.category), "extract_metadata")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
			e.logger.Error("engine fault", "op", "extract_metadata", "format", f.ID, "error", err.Error(), "cause", fmt.Sprint(r))
		}
		tracing.EndWithError(span, err)
	}()

	doc, err := e.decode(ctx, input, f)
	if err != nil {
		return common.DocumentMetadata{}, err
	}
	meta = doc.Metadata.Clone()
	if meta.PageCount == 0 {
		meta.PageCount = doc.Content.Structure.Pages
	}
	return meta, nil
}

// rootCause 最内层错误
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
