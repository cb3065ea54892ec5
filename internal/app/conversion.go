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

package app

import (
	"context"
	"fmt"
	"strings"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/verify"
)

// ConversionDefaults 默认转换选项，AutoVerify 取自配置
func (s *documentService) ConversionDefaults() common.ConversionOptions {
	opts := common.DefaultConversionOptions()
	opts.AutoVerify = s.autoVerify
	return opts
}

func (s *documentService) Convert(ctx context.Context, id, target string, opts common.ConversionOptions) (<-chan common.ConversionEvent, error) {
	f, err := targetFormat(target)
	if err != nil {
		return nil, err
	}
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.orch.Convert(ctx, *doc, f, opts), nil
}

// Batch 批量转换；任一 id 不存在时整体拒绝，不启动转换
func (s *documentService) Batch(ctx context.Context, ids []string, target string, opts common.ConversionOptions) (<-chan common.BatchProgress, error) {
	f, err := targetFormat(target)
	if err != nil {
		return nil, err
	}
	docs := make([]common.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return s.orch.BatchConvert(ctx, docs, f, opts), nil
}

func (s *documentService) Verify(ctx context.Context, sourceID, convertedID string, opts common.VerificationOptions) (<-chan common.VerificationEvent, error) {
	src, conv, err := s.pair(ctx, sourceID, convertedID)
	if err != nil {
		return nil, err
	}
	return s.orch.VerifyConversion(ctx, *src, *conv, opts), nil
}

// Report 校验并保存文本报告
func (s *documentService) Report(ctx context.Context, sourceID, convertedID string, opts common.VerificationOptions) (*Report, error) {
	src, conv, err := s.pair(ctx, sourceID, convertedID)
	if err != nil {
		return nil, err
	}
	result, err := s.orch.Verify(ctx, *src, *conv, opts)
	if err != nil {
		return nil, err
	}
	ref, err := s.reporter.GenerateReport(ctx, *src, *conv, result)
	if err != nil {
		return nil, err
	}
	return &Report{Ref: ref, Text: verify.RenderReport(*src, *conv, result), Result: result}, nil
}

// Compare 生成可视对比产物，返回存储引用
func (s *documentService) Compare(ctx context.Context, sourceID, convertedID string) (string, error) {
	src, conv, err := s.pair(ctx, sourceID, convertedID)
	if err != nil {
		return "", err
	}
	return s.reporter.GenerateVisualComparison(ctx, *src, *conv)
}

func (s *documentService) pair(ctx context.Context, sourceID, convertedID string) (*common.Document, *common.Document, error) {
	src, err := s.GetDocument(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.GetDocument(ctx, convertedID)
	if err != nil {
		return nil, nil, err
	}
	return src, conv, nil
}

func targetFormat(id string) (format.Format, error) {
	f, ok := format.ByID(strings.ToLower(strings.TrimSpace(id)))
	if !ok {
		return format.Format{}, fmt.Errorf("%w: unknown target format %q", common.ErrInvalidInput, id)
	}
	return f, nil
}
