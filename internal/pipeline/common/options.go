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

package common

import "strings"

// CompressionLevel 输出压缩级别
type CompressionLevel string

const (
	CompressionNone   CompressionLevel = "NONE"
	CompressionLow    CompressionLevel = "LOW"
	CompressionMedium CompressionLevel = "MEDIUM"
	CompressionHigh   CompressionLevel = "HIGH"
)

// ParseCompressionLevel 解析压缩级别，未知值返回 MEDIUM
func ParseCompressionLevel(s string) CompressionLevel {
	switch CompressionLevel(strings.ToUpper(s)) {
	case CompressionNone:
		return CompressionNone
	case CompressionLow:
		return CompressionLow
	case CompressionHigh:
		return CompressionHigh
	default:
		return CompressionMedium
	}
}

// ConversionOptions 转换选项
type ConversionOptions struct {
	PreserveFormatting     bool              `json:"preserve_formatting"`
	PreserveImages         bool              `json:"preserve_images"`
	PreserveFonts          bool              `json:"preserve_fonts"`
	PreserveMetadata       bool              `json:"preserve_metadata"`
	PreserveHyperlinks     bool              `json:"preserve_hyperlinks"`
	PreserveHeadersFooters bool              `json:"preserve_headers_footers"`
	PreservePageNumbers    bool              `json:"preserve_page_numbers"`
	AutoVerify             bool              `json:"auto_verify"`
	Compression            CompressionLevel  `json:"compression"`
	Password               string            `json:"password,omitempty"`
	Custom                 map[string]string `json:"custom,omitempty"`
}

// DefaultConversionOptions 默认转换选项：全部保留、自动校验、MEDIUM 压缩
func DefaultConversionOptions() ConversionOptions {
	return ConversionOptions{
		PreserveFormatting:     true,
		PreserveImages:         true,
		PreserveFonts:          true,
		PreserveMetadata:       true,
		PreserveHyperlinks:     true,
		PreserveHeadersFooters: true,
		PreservePageNumbers:    true,
		AutoVerify:             true,
		Compression:            CompressionMedium,
	}
}

// CustomOption 读取格式专属选项
func (o ConversionOptions) CustomOption(key, def string) string {
	if v, ok := o.Custom[key]; ok && v != "" {
		return v
	}
	return def
}

// DefaultMinimumMatchScore 校验通过的默认阈值
const DefaultMinimumMatchScore = 0.9

// VerificationOptions 校验选项
type VerificationOptions struct {
	VerifyContent     bool    `json:"verify_content"`
	VerifyFormatting  bool    `json:"verify_formatting"`
	VerifyStructure   bool    `json:"verify_structure"`
	VerifyMetadata    bool    `json:"verify_metadata"`
	MinimumMatchScore float64 `json:"minimum_match_score"`
	GenerateReport    bool    `json:"generate_report"`
	// GenerateVisualComparison 仅在按需生成对比产物时使用
	GenerateVisualComparison bool `json:"generate_visual_comparison"`
	// Password 打开加密的源文档或转换结果
	Password string `json:"password,omitempty"`
}

// DefaultVerificationOptions 默认校验选项
func DefaultVerificationOptions() VerificationOptions {
	return VerificationOptions{
		VerifyContent:     true,
		VerifyFormatting:  true,
		VerifyStructure:   true,
		VerifyMetadata:    true,
		MinimumMatchScore: DefaultMinimumMatchScore,
		GenerateReport:    true,
	}
}

// ExtractionOptions 内容提取选项
type ExtractionOptions struct {
	ExtractText        bool `json:"extract_text"`
	ExtractImages      bool `json:"extract_images"`
	ExtractTables      bool `json:"extract_tables"`
	PreserveFormatting bool `json:"preserve_formatting"`
	ExtractHyperlinks  bool `json:"extract_hyperlinks"`
}

// DefaultExtractionOptions 默认全部提取
func DefaultExtractionOptions() ExtractionOptions {
	return ExtractionOptions{
		ExtractText:        true,
		ExtractImages:      true,
		ExtractTables:      true,
		PreserveFormatting: true,
		ExtractHyperlinks:  true,
	}
}
