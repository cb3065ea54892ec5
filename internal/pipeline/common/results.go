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

import "time"

// IssueType 校验问题类型
type IssueType string

const (
	IssueContentMismatch    IssueType = "CONTENT_MISMATCH"
	IssueFormattingMismatch IssueType = "FORMATTING_MISMATCH"
	IssueStructureMismatch  IssueType = "STRUCTURE_MISMATCH"
	IssueMetadataMismatch   IssueType = "METADATA_MISMATCH"
	IssueResourceMissing    IssueType = "RESOURCE_MISSING"
	IssueFontSubstitution   IssueType = "FONT_SUBSTITUTION"
)

// IssueSeverity 严重程度，CRITICAL > HIGH > MEDIUM > LOW > INFO
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityLow      IssueSeverity = "LOW"
	SeverityInfo     IssueSeverity = "INFO"
)

// Rank 严重程度排序值，越大越严重
func (s IssueSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// VerificationIssue 校验问题
type VerificationIssue struct {
	Type        IssueType     `json:"type"`
	Description string        `json:"description"`
	Severity    IssueSeverity `json:"severity"`
	Location    string        `json:"location,omitempty"`
}

// VerificationResult 校验结果；Success 当且仅当 OverallScore >= 阈值
type VerificationResult struct {
	Success          bool                `json:"success"`
	OverallScore     float64             `json:"overall_score"`
	ContentScore     float64             `json:"content_score"`
	FormattingScore  float64             `json:"formatting_score"`
	StructureScore   float64             `json:"structure_score"`
	MetadataScore    float64             `json:"metadata_score"`
	Issues           []VerificationIssue `json:"issues"`
	MinimumThreshold float64             `json:"minimum_threshold"`
}

// ConversionResult 一次转换的最终结果，只产生一次
type ConversionResult struct {
	Source       Document            `json:"source"`
	Output       *Document           `json:"output,omitempty"`
	Success      bool                `json:"success"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Elapsed      time.Duration       `json:"elapsed_ns"`
	Error        string              `json:"error,omitempty"`
}
