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

package verify

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
	"docconv/internal/storage/object"
)

// Reporter 生成校验报告与可视对比，产物写入字节存储
type Reporter struct {
	Blobs  object.Store
	Loader Loader
}

// GenerateReport 渲染文本报告并保存，返回存储引用
func (r Reporter) GenerateReport(ctx context.Context, source, converted common.Document, result common.VerificationResult) (string, error) {
	text := RenderReport(source, converted, result)
	ref, _, err := object.PutBytes(ctx, r.Blobs, "verification-report-"+converted.ID+".txt", []byte(text), map[string]string{
		"content_type": "text/plain; charset=utf-8",
		"source_id":    source.ID,
		"converted_id": converted.ID,
	})
	if err != nil {
		return "", common.NewPipelineError(common.StageVerify, "保存校验报告失败", err)
	}
	return ref, nil
}

// RenderReport 纯文本校验报告
func RenderReport(source, converted common.Document, result common.VerificationResult) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	pct := func(v float64) string {
		return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
	}

	line("Document Conversion Verification Report")
	line("=========================================")
	line("")
	line("Source Document: %s", source.Name)
	line("Format: %s", source.Format.Name)
	line("Size: %s", source.FormattedSize())
	line("")
	line("Converted Document: %s", converted.Name)
	line("Format: %s", converted.Format.Name)
	line("Size: %s", converted.FormattedSize())
	line("")
	line("Verification Results")
	line("--------------------")
	line("Overall Match Score: %s", pct(result.OverallScore))
	line("Content Match: %s", pct(result.ContentScore))
	line("Formatting Match: %s", pct(result.FormattingScore))
	line("Structure Match: %s", pct(result.StructureScore))
	line("Metadata Match: %s", pct(result.MetadataScore))
	line("")
	status := "FAILED"
	if result.Success {
		status = "PASSED"
	}
	line("Verification Status: %s", status)
	line("")

	if len(result.Issues) == 0 {
		line("No issues found.")
	} else {
		line("Identified Issues")
		line("----------------")
		for i, issue := range result.Issues {
			line("%d. %s", i+1, issue.Description)
			line("   Type: %s", issue.Type)
			line("   Severity: %s", issue.Severity)
			if issue.Location != "" {
				line("   Location: %s", issue.Location)
			}
			line("")
		}
	}
	line("")

	line("Recommendations")
	line("---------------")
	if result.Success {
		line("The document conversion has passed verification with high fidelity.")
		line("The converted document preserves the content and formatting of the original.")
		if len(result.Issues) > 0 {
			line("Minor issues were detected, but they do not significantly affect the document quality.")
		}
	} else {
		line("The document conversion did not meet the verification criteria.")
		line("Consider the following actions:")
		line("1. Try a different conversion path or format")
		line("2. Adjust conversion options for better preservation")
		line("3. Review specific issues identified in the report")
	}
	return b.String()
}

// GenerateVisualComparison 两侧都是位图时输出逐像素差异 PNG，否则输出文本统一 diff
func (r Reporter) GenerateVisualComparison(ctx context.Context, source, converted common.Document) (string, error) {
	src, err := r.Loader.Load(ctx, source, "")
	if err != nil {
		return "", common.NewPipelineError(common.StageVerify, "读取源文档失败", err)
	}
	conv, err := r.Loader.Load(ctx, converted, "")
	if err != nil {
		return "", common.NewPipelineError(common.StageVerify, "读取转换结果失败", err)
	}

	var (
		name string
		data []byte
		meta = map[string]string{"source_id": source.ID, "converted_id": converted.ID}
	)
	if src.Bitmap != nil && conv.Bitmap != nil {
		diff, changed := PixelDiff(src.Bitmap, conv.Bitmap)
		if data, err = codec.PNG(diff); err != nil {
			return "", common.NewPipelineError(common.StageVerify, "编码差异图失败", err)
		}
		name = "visual-comparison-" + converted.ID + ".png"
		meta["content_type"] = "image/png"
		meta["diff_ratio"] = strconv.FormatFloat(changed, 'f', 4, 64)
	} else {
		text, err := TextDiff(source.Name, converted.Name, src, conv)
		if err != nil {
			return "", common.NewPipelineError(common.StageVerify, "生成文本差异失败", err)
		}
		data = []byte(text)
		name = "visual-comparison-" + converted.ID + ".diff"
		meta["content_type"] = "text/x-diff; charset=utf-8"
	}

	ref, _, err := object.PutBytes(ctx, r.Blobs, name, data, meta)
	if err != nil {
		return "", common.NewPipelineError(common.StageVerify, "保存可视对比失败", err)
	}
	return ref, nil
}

// TextDiff 两份文档纯文本的统一 diff；内容一致时返回空串
func TextDiff(fromName, toName string, from, to *codec.Parsed) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(codec.PlainText(from.Content)),
		B:        difflib.SplitLines(codec.PlainText(to.Content)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

var diffRed = color.RGBA{R: 255, A: 255}

// PixelDiff 按两图的并集尺寸逐像素比较：不同像素标红，相同像素以淡化的源图显示。
// 返回差异图与差异像素占比
func PixelDiff(a, b image.Image) (*image.RGBA, float64) {
	ab, bb := a.Bounds(), b.Bounds()
	w := max(ab.Dx(), bb.Dx())
	h := max(ab.Dy(), bb.Dy())
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out, 0
	}

	changed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pa, okA := pixel(a, x, y)
			pb, okB := pixel(b, x, y)
			if !okA || !okB || pa != pb {
				out.SetRGBA(x, y, diffRed)
				changed++
				continue
			}
			out.SetRGBA(x, y, fade(pa))
		}
	}
	return out, float64(changed) / float64(w*h)
}

func pixel(img image.Image, x, y int) (color.RGBA, bool) {
	b := img.Bounds()
	p := image.Pt(b.Min.X+x, b.Min.Y+y)
	if !p.In(b) {
		return color.RGBA{}, false
	}
	return color.RGBAModel.Convert(img.At(p.X, p.Y)).(color.RGBA), true
}

// fade 向白色混合 3/4
func fade(c color.RGBA) color.RGBA {
	mix := func(v uint8) uint8 { return uint8((int(v) + 3*255) / 4) }
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 255}
}
