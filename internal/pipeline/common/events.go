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

// EventType 进度事件标签
type EventType string

const (
	EventInitializing EventType = "initializing"
	EventProcessing   EventType = "processing"
	EventVerifying    EventType = "verifying"
	EventComparing    EventType = "comparing"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
)

// Terminal 是否终止事件
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed
}

// ConversionEvent 单文档转换进度事件：
// Initializing -> Processing(progress)* -> Verifying? -> Completed(result) | Failed(reason)
type ConversionEvent struct {
	Type     EventType         `json:"type"`
	Progress float64           `json:"progress"`
	Result   *ConversionResult `json:"result,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

func Initializing() ConversionEvent { return ConversionEvent{Type: EventInitializing} }

func Processing(p float64) ConversionEvent {
	return ConversionEvent{Type: EventProcessing, Progress: p}
}

func Verifying() ConversionEvent { return ConversionEvent{Type: EventVerifying} }

func Completed(r ConversionResult) ConversionEvent {
	return ConversionEvent{Type: EventCompleted, Progress: 1, Result: &r}
}

func Failed(reason string) ConversionEvent {
	return ConversionEvent{Type: EventFailed, Reason: reason}
}

// VerificationEvent 校验进度事件：Initializing -> Comparing(progress)* -> Completed | Failed
type VerificationEvent struct {
	Type     EventType           `json:"type"`
	Progress float64             `json:"progress"`
	Result   *VerificationResult `json:"result,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// BatchFailure 批量转换中失败的文档
type BatchFailure struct {
	Document Document `json:"document"`
	Reason   string   `json:"reason"`
}

// BatchProgress 批量转换快照；CurrentDocument 为 nil 表示全部处理完
type BatchProgress struct {
	TotalDocuments          int                `json:"total_documents"`
	ProcessedDocuments      int                `json:"processed_documents"`
	CurrentDocument         *Document          `json:"current_document"`
	CurrentDocumentProgress float64            `json:"current_document_progress"`
	Results                 []ConversionResult `json:"results"`
	Failed                  []BatchFailure     `json:"failed"`
}

// Done 是否最终快照
func (b BatchProgress) Done() bool {
	return b.CurrentDocument == nil && b.ProcessedDocuments == b.TotalDocuments
}
