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

// Package verify 转换结果校验：内容、格式、结构、元数据四个维度独立评分后加权汇总
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
	"docconv/internal/storage/object"
	"docconv/pkg/metrics"
	"docconv/pkg/tracing"
)

// 维度权重，总和为 1
const (
	WeightContent    = 0.4
	WeightFormatting = 0.3
	WeightStructure  = 0.2
	WeightMetadata   = 0.1
)

// ProgressFunc 校验进度回调，取值 [0,1]
type ProgressFunc func(progress float64)

// Loader 读取并解码文档；password 用于打开加密文档，未加密时忽略
type Loader interface {
	Load(ctx context.Context, doc common.Document, password string) (*codec.Parsed, error)
}

// CodecLoader 经字节存储读取、codec 解码；StorageRef 为空时读取 LocalPath
type CodecLoader struct {
	Blobs  object.Store
	Codecs *codec.Set
}

// Load 实现 Loader
func (l CodecLoader) Load(ctx context.Context, doc common.Document, password string) (*codec.Parsed, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case doc.StorageRef != "" && l.Blobs != nil:
		data, err = object.ReadAll(ctx, l.Blobs, doc.StorageRef)
	case doc.LocalPath != "":
		data, err = os.ReadFile(doc.LocalPath)
	default:
		return nil, fmt.Errorf("%w: document %s has no storage reference", common.ErrBlobNotFound, doc.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBlobNotFound, err)
	}
	opts := common.DefaultConversionOptions()
	opts.Password = password
	return l.Codecs.Decode(ctx, doc.Format.ID, data, &opts)
}

// Verifier 校验引擎
type Verifier struct {
	loader Loader
	logger *slog.Logger
}

// New 创建校验引擎
func New(loader Loader, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{loader: loader, logger: logger}
}

// Verify 校验 converted 相对 source 的保真度。源文档无法读取时返回错误；
// 转换结果无法解码时各启用维度记 0 分并附 CRITICAL 问题，结果仍完整返回
func (v *Verifier) Verify(ctx context.Context, source, converted common.Document, opts common.VerificationOptions, report ProgressFunc) (result common.VerificationResult, err error) {
	ctx, span := tracing.StartVerifySpan(ctx, source.ID, converted.ID)
	defer func() { tracing.EndWithError(span, err) }()
	if report == nil {
		report = func(float64) {}
	}

	src, err := v.loader.Load(ctx, source, opts.Password)
	if err != nil {
		return common.VerificationResult{}, common.NewPipelineError(common.StageVerify, "读取源文档失败", err)
	}
	report(0.2)
	if err := ctx.Err(); err != nil {
		return common.VerificationResult{}, err
	}

	conv, convErr := v.loader.Load(ctx, converted, opts.Password)
	if convErr != nil {
		v.logger.Warn("converted document unreadable", "document_id", converted.ID, "format", converted.Format.ID, "error", convErr)
	}
	report(0.4)
	if err := ctx.Err(); err != nil {
		return common.VerificationResult{}, err
	}

	in := Input{
		Source:          src,
		Converted:       conv,
		ConvertedErr:    convErr,
		SourceFormat:    source.Format,
		ConvertedFormat: converted.Format,
	}
	result = evaluate(in, opts, func(step int) { report(0.4 + 0.15*float64(step)) })
	metrics.VerificationScore.Observe(result.OverallScore)
	v.logger.Info("verification finished",
		"source_id", source.ID,
		"converted_id", converted.ID,
		"score", result.OverallScore,
		"success", result.Success,
		"issues", len(result.Issues),
	)
	return result, nil
}

// Input 已解码的一对文档
type Input struct {
	Source          *codec.Parsed
	Converted       *codec.Parsed
	ConvertedErr    error
	SourceFormat    format.Format
	ConvertedFormat format.Format
}

func unreadableIssue(t common.IssueType, err error) common.VerificationIssue {
	reason := "converted document could not be read"
	if err != nil {
		reason += ": " + err.Error()
	}
	return common.VerificationIssue{Type: t, Description: reason, Severity: common.SeverityCritical}
}

// Evaluate 对已解码的文档对评分
func Evaluate(in Input, opts common.VerificationOptions) common.VerificationResult {
	return evaluate(in, opts, func(int) {})
}

func evaluate(in Input, opts common.VerificationOptions, step func(int)) common.VerificationResult {
	var issues []common.VerificationIssue
	unreadable := in.Converted == nil || in.ConvertedErr != nil
	reported := false

	type dimension struct {
		enabled bool
		issue   common.IssueType
		check   func(*checker) float64
	}
	dims := []dimension{
		{opts.VerifyContent, common.IssueContentMismatch, (*checker).content},
		{opts.VerifyFormatting, common.IssueFormattingMismatch, (*checker).formatting},
		{opts.VerifyStructure, common.IssueStructureMismatch, (*checker).structure},
		{opts.VerifyMetadata, common.IssueMetadataMismatch, (*checker).metadata},
	}
	scores := make([]float64, len(dims))
	c := &checker{in: in, issues: &issues}
	for i, d := range dims {
		switch {
		case !d.enabled:
			scores[i] = 1
		case unreadable:
			scores[i] = 0
			// 只在第一个启用的维度下记一次
			if !reported {
				issues = append(issues, unreadableIssue(d.issue, in.ConvertedErr))
				reported = true
			}
		default:
			scores[i] = clamp(d.check(c))
		}
		step(i + 1)
	}

	overall := Score(scores[0], scores[1], scores[2], scores[3])
	return common.VerificationResult{
		Success:          overall >= opts.MinimumMatchScore,
		OverallScore:     overall,
		ContentScore:     scores[0],
		FormattingScore:  scores[1],
		StructureScore:   scores[2],
		MetadataScore:    scores[3],
		Issues:           issues,
		MinimumThreshold: opts.MinimumMatchScore,
	}
}

// Score 固定加权总分，保留 9 位小数；四项全 1 时恰为 1
func Score(content, formatting, structure, metadata float64) float64 {
	sum := content*WeightContent + formatting*WeightFormatting + structure*WeightStructure + metadata*WeightMetadata
	return clamp(math.Round(sum*1e9) / 1e9)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
