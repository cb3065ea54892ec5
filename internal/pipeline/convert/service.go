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
	"errors"
	"fmt"
	"strconv"

	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/engine"
	"docconv/internal/storage/cache"
	"docconv/internal/worker"
)

// VerifyConversion 校验已有的一对文档，返回事件流：
// Initializing -> Comparing(progress)* -> Completed | Failed
func (o *Orchestrator) VerifyConversion(ctx context.Context, source, converted common.Document, opts common.VerificationOptions) <-chan common.VerificationEvent {
	ch := make(chan common.VerificationEvent)
	go func() {
		defer close(ch)
		emit := func(ev common.VerificationEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !emit(common.VerificationEvent{Type: common.EventInitializing}) {
			return
		}

		key := verifyKey(source, converted, opts)
		var result common.VerificationResult
		if o.cacheGet(ctx, key, &result) {
			emit(common.VerificationEvent{Type: common.EventCompleted, Progress: 1, Result: &result})
			return
		}

		result, err := o.verifier.Verify(ctx, source, converted, opts, func(p float64) {
			emit(common.VerificationEvent{Type: common.EventComparing, Progress: p})
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.logger.Warn("verification failed", "source_id", source.ID, "converted_id", converted.ID, "error", err)
			emit(common.VerificationEvent{Type: common.EventFailed, Reason: err.Error()})
			return
		}
		o.cacheSet(ctx, key, result)
		emit(common.VerificationEvent{Type: common.EventCompleted, Progress: 1, Result: &result})
	}()
	return ch
}

// Verify 同步校验
func (o *Orchestrator) Verify(ctx context.Context, source, converted common.Document, opts common.VerificationOptions) (common.VerificationResult, error) {
	key := verifyKey(source, converted, opts)
	var result common.VerificationResult
	if o.cacheGet(ctx, key, &result) {
		return result, nil
	}
	result, err := o.verifier.Verify(ctx, source, converted, opts, nil)
	if err != nil {
		return common.VerificationResult{}, err
	}
	o.cacheSet(ctx, key, result)
	return result, nil
}

// ExtractContent 提取文档内容，按 opts 裁剪；结果按文档 id、修改时间与选项缓存
func (o *Orchestrator) ExtractContent(ctx context.Context, doc common.Document, opts common.ExtractionOptions) (common.DocumentContent, error) {
	key := contentKey(doc, opts)
	var content common.DocumentContent
	if o.cacheGet(ctx, key, &content) {
		return content, nil
	}

	content, err := withEngine(ctx, o, doc, func(ctx context.Context, eng engine.Engine, input string) (common.DocumentContent, error) {
		return eng.ExtractContent(ctx, input, doc.Format, opts)
	})
	if err != nil {
		return common.DocumentContent{}, err
	}
	o.cacheSet(ctx, key, content)
	return content, nil
}

// ExtractMetadata 提取元数据，返回整体替换元数据后的文档副本并保存
func (o *Orchestrator) ExtractMetadata(ctx context.Context, doc common.Document) (common.Document, error) {
	meta, err := withEngine(ctx, o, doc, func(ctx context.Context, eng engine.Engine, input string) (common.DocumentMetadata, error) {
		return eng.ExtractMetadata(ctx, input, doc.Format)
	})
	if err != nil {
		return common.Document{}, err
	}

	updated := doc
	updated.Metadata = meta
	updated.ModifiedAt = o.now()
	saved, err := o.docs.Save(ctx, &updated)
	if err != nil {
		return common.Document{}, common.NewPipelineError(common.StagePersist, "保存文档元数据失败", err)
	}
	return *saved, nil
}

// withEngine 物化文档后在 worker 池中调用其类别的引擎
func withEngine[T any](ctx context.Context, o *Orchestrator, doc common.Document, fn func(context.Context, engine.Engine, string) (T, error)) (T, error) {
	var zero T
	if doc.Format.IsZero() {
		return zero, common.NewPipelineError(common.StageValidate, "文档格式未知", common.ErrInvalidInput)
	}
	eng, ok := o.registry.For(doc.Format.Category)
	if !ok {
		return zero, fmt.Errorf("%w: %s", common.ErrMissingEngine, doc.Format.Category)
	}

	ws, err := newWorkspace(o.cfg.TempDir)
	if err != nil {
		return zero, common.NewPipelineError(common.StageMaterial, "创建工作目录失败", err)
	}
	defer ws.close()
	input, err := ws.materialize(ctx, o.blobs, doc)
	if err != nil {
		return zero, err
	}

	out, err := worker.Run(ctx, o.pool, func(ctx context.Context) (T, error) {
		return fn(ctx, eng, input)
	})
	if err != nil {
		var pe *common.PipelineError
		if errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		return zero, common.NewPipelineError(common.StageExtract, "提取失败", err)
	}
	return out, nil
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string, dest any) bool {
	if o.cache == nil || key == "" {
		return false
	}
	if err := o.cache.Get(ctx, key, dest); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			o.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	return true
}

func (o *Orchestrator) cacheSet(ctx context.Context, key string, value any) {
	if o.cache == nil || key == "" {
		return
	}
	if err := o.cache.Set(ctx, key, value, o.cfg.CacheTTL); err != nil {
		o.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// contentKey 无 id 的文档不缓存
func contentKey(doc common.Document, opts common.ExtractionOptions) string {
	if doc.ID == "" {
		return ""
	}
	return "content:" + doc.ID + ":" + strconv.FormatInt(doc.ModifiedAt.UnixNano(), 36) + ":" +
		flags(opts.ExtractText, opts.ExtractImages, opts.ExtractTables, opts.PreserveFormatting, opts.ExtractHyperlinks)
}

func verifyKey(source, converted common.Document, opts common.VerificationOptions) string {
	if source.ID == "" || converted.ID == "" {
		return ""
	}
	return "verify:" + source.ID + ":" + converted.ID + ":" +
		flags(opts.VerifyContent, opts.VerifyFormatting, opts.VerifyStructure, opts.VerifyMetadata) + ":" +
		strconv.FormatFloat(opts.MinimumMatchScore, 'g', -1, 64)
}

func flags(bs ...bool) string {
	out := make([]byte, len(bs))
	for i, b := range bs {
		out[i] = '0'
		if b {
			out[i] = '1'
		}
	}
	return string(out)
}
