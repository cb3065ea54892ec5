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

package convert

import (
	"context"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
	"docconv/pkg/metrics"
	"docconv/pkg/tracing"
)

// BatchConvert 按输入顺序逐个转换，返回批量进度快照流。
// 每个文档先发出子进度为 0 的快照，随后每个 Processing 事件对应一个快照；
// 最后一个快照 ProcessedDocuments == 总数、CurrentDocument 为 nil。
// 单个文档失败只记入 Failed，不中断批次
func (o *Orchestrator) BatchConvert(ctx context.Context, docs []common.Document, target format.Format, opts common.ConversionOptions) <-chan common.BatchProgress {
	ch := make(chan common.BatchProgress)
	go func() {
		defer close(ch)
		ctx, span := tracing.StartBatchSpan(ctx, len(docs), target.ID)
		defer span.End()

		b := &batch{total: len(docs)}
		send := func(p common.BatchProgress) bool {
			select {
			case ch <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i := range docs {
			doc := docs[i]
			if !send(b.snapshot(i, &doc, 0)) {
				return
			}
			terminal := o.run(ctx, doc, target, opts, func(ev common.ConversionEvent) bool {
				if ev.Type != common.EventProcessing {
					return ctx.Err() == nil
				}
				return send(b.snapshot(i, &doc, ev.Progress))
			})
			if ctx.Err() != nil {
				return
			}
			b.record(doc, terminal)
		}

		o.logger.Info("batch conversion finished",
			"target", target.ID,
			"total", b.total,
			"completed", len(b.results),
			"failed", len(b.failed),
		)
		send(b.snapshot(b.total, nil, 1))
	}()
	return ch
}

// batch 批次累计结果，只在批次协程内访问
type batch struct {
	total   int
	results []common.ConversionResult
	failed  []common.BatchFailure
}

func (b *batch) record(doc common.Document, terminal common.ConversionEvent) {
	if terminal.Type == common.EventCompleted && terminal.Result != nil {
		b.results = append(b.results, *terminal.Result)
		metrics.BatchDocumentsTotal.WithLabelValues("completed").Inc()
		return
	}
	reason := terminal.Reason
	if reason == "" {
		reason = common.ErrEngineFailed.Error()
	}
	b.failed = append(b.failed, common.BatchFailure{Document: doc, Reason: reason})
	metrics.BatchDocumentsTotal.WithLabelValues("failed").Inc()
}

// snapshot 快照持有累计列表的副本，消费方可安全保留
func (b *batch) snapshot(processed int, current *common.Document, progress float64) common.BatchProgress {
	p := common.BatchProgress{
		TotalDocuments:          b.total,
		ProcessedDocuments:      processed,
		CurrentDocument:         current,
		CurrentDocumentProgress: progress,
		Results:                 append([]common.ConversionResult{}, b.results...),
		Failed:                  append([]common.BatchFailure{}, b.failed...),
	}
	if current != nil {
		c := *current
		p.CurrentDocument = &c
	}
	return p
}
