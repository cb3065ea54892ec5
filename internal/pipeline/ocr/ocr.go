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

// Package ocr 通过 tesseract 识别图像中的文字，供图像到 txt/docx 的转换路径使用
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrDisabled 未启用 OCR
var ErrDisabled = errors.New("ocr: disabled")

// Config tesseract 配置
type Config struct {
	Enable    bool
	Tesseract string
	Lang      string
	PSM       int
	TempDir   string
}

// Result 识别结果
type Result struct {
	Text string
	// Confidence 单词平均置信度 0..1，未取得时为 0
	Confidence float64
}

// Recognizer 图像文字识别器
type Recognizer struct {
	cfg    Config
	runner Runner
}

// NewRecognizer 创建识别器；runner 为 nil 时使用 ExecRunner
func NewRecognizer(cfg Config, runner Runner) *Recognizer {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Recognizer{cfg: cfg, runner: runner}
}

// Enabled 是否启用
func (r *Recognizer) Enabled() bool {
	return r != nil && r.cfg.Enable
}

// Recognize 识别 PNG 图像字节；图像先写入临时文件再交给 tesseract
func (r *Recognizer) Recognize(ctx context.Context, png []byte) (Result, error) {
	if !r.Enabled() {
		return Result{}, ErrDisabled
	}
	f, err := os.CreateTemp(r.cfg.TempDir, "docconv-ocr-*.png")
	if err != nil {
		return Result{}, fmt.Errorf("ocr temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(png); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("ocr temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, err
	}

	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, r.args(path)...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	res := Result{Text: Normalize(string(out))}
	// 置信度失败不影响文字结果
	if tsv, _, err := r.runner.Run(ctx, r.cfg.Tesseract, append(r.args(path), "tsv")...); err == nil {
		res.Confidence = meanConfidence(string(tsv))
	}
	return res, nil
}

func (r *Recognizer) args(path string) []string {
	args := []string{filepath.Clean(path), "stdout", "-l", r.cfg.Lang}
	if r.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(r.cfg.PSM))
	}
	return args
}

var (
	reBoxNoise   = regexp.MustCompile(`[\x{2500}-\x{257F}\x{25A0}-\x{25FF}]+`)
	reTrailingWS = regexp.MustCompile(`[ \t]+\n`)
	reManyBlank  = regexp.MustCompile(`\n{3,}`)
)

// Normalize 清理 OCR 输出：去掉制表框字符、行尾空白与多余空行
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTrailingWS.ReplaceAllString(s, "\n")
	s = reManyBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// meanConfidence TSV 输出中 conf 列（最后一列）的平均值，换算为 0..1
func meanConfidence(tsv string) float64 {
	var sum, n float64
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cols[len(cols)-1]), 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n / 100
}
