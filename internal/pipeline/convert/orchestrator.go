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

// Package convert 转换编排：单文档转换、批量转换、校验流与内容/元数据提取
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/engine"
	"docconv/internal/pipeline/verify"
	"docconv/internal/storage/cache"
	"docconv/internal/storage/metadata"
	"docconv/internal/storage/object"
	"docconv/internal/worker"
	"docconv/pkg/metrics"
	"docconv/pkg/tracing"
)

// Config 编排器配置
type Config struct {
	// TempDir 工作文件目录，空则使用系统临时目录
	TempDir string
	// MinimumMatchScore 自动校验的通过阈值，<=0 使用默认值
	MinimumMatchScore float64
	// CacheTTL 提取与校验结果缓存时长，0 表示不过期
	CacheTTL time.Duration
}

// Deps 编排器协作方
type Deps struct {
	Engines   []engine.Engine
	Paths     *format.PathGraph
	Pool      *worker.Pool
	Documents metadata.Store
	Blobs     object.Store
	Verifier  *verify.Verifier
	// Cache 可选
	Cache  cache.Store
	Logger *slog.Logger
}

// Orchestrator 转换编排器，可并发使用
type Orchestrator struct {
	registry *engine.Registry
	paths    *format.PathGraph
	pool     *worker.Pool
	docs     metadata.Store
	blobs    object.Store
	verifier *verify.Verifier
	cache    cache.Store
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New 创建编排器；引擎注册表不完整时返回 ErrMissingEngine
func New(d Deps, cfg Config) (*Orchestrator, error) {
	registry, err := engine.NewRegistry(d.Engines...)
	if err != nil {
		return nil, err
	}
	if d.Documents == nil || d.Blobs == nil || d.Verifier == nil {
		return nil, fmt.Errorf("%w: documents, blobs and verifier are required", common.ErrInvalidInput)
	}
	if d.Paths == nil {
		d.Paths = format.DefaultPathGraph()
	}
	if d.Pool == nil {
		d.Pool = worker.NewPool(0)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if cfg.MinimumMatchScore <= 0 {
		cfg.MinimumMatchScore = common.DefaultMinimumMatchScore
	}
	return &Orchestrator{
		registry: registry,
		paths:    d.Paths,
		pool:     d.Pool,
		docs:     d.Documents,
		blobs:    d.Blobs,
		verifier: d.Verifier,
		cache:    d.Cache,
		cfg:      cfg,
		logger:   d.Logger,
		now:      time.Now,
	}, nil
}

// Registry 引擎注册表
func (o *Orchestrator) Registry() *engine.Registry {
	return o.registry
}

// Paths 路径图
func (o *Orchestrator) Paths() *format.PathGraph {
	return o.paths
}

// Convert 转换单个文档，返回有序事件流：
// Initializing -> Processing* -> Verifying? -> Completed | Failed，终止事件后通道关闭。
// ctx 取消后不再投递事件，仅在消费方仍在接收时补发 Failed("conversion cancelled")
func (o *Orchestrator) Convert(ctx context.Context, doc common.Document, target format.Format, opts common.ConversionOptions) <-chan common.ConversionEvent {
	ch := make(chan common.ConversionEvent)
	go func() {
		defer close(ch)
		emit := func(ev common.ConversionEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		terminal := o.run(ctx, doc, target, opts, emit)
		if ctx.Err() != nil {
			select {
			case ch <- common.Failed(common.ErrCancelled.Error()):
			default:
			}
			return
		}
		emit(terminal)
	}()
	return ch
}

// run 执行一次转换：非终止事件经 emit 投递，返回终止事件
func (o *Orchestrator) run(ctx context.Context, doc common.Document, target format.Format, opts common.ConversionOptions, emit func(common.ConversionEvent) bool) common.ConversionEvent {
	start := o.now()
	ctx, span := tracing.StartConversionSpan(ctx, doc.ID, doc.Format.ID, target.ID)

	var terminal common.ConversionEvent
	defer func() {
		status := "completed"
		switch {
		case ctx.Err() != nil:
			status = "cancelled"
			terminal = common.Failed(common.ErrCancelled.Error())
		case terminal.Type == common.EventFailed:
			status = "failed"
		}
		metrics.ConversionTotal.WithLabelValues(status).Inc()
		metrics.ConversionDuration.WithLabelValues(doc.Format.ID, target.ID).Observe(o.now().Sub(start).Seconds())
		tracing.EndWithStatus(span, terminal.Reason)
	}()

	if !emit(common.Initializing()) {
		return terminal
	}
	result, err := o.execute(ctx, doc, target, opts, emit)
	if err != nil {
		reason := failureReason(err)
		o.logger.Warn("conversion failed",
			"document_id", doc.ID,
			"source", doc.Format.ID,
			"target", target.ID,
			"reason", reason,
			"error", err,
		)
		terminal = common.Failed(reason)
		return terminal
	}
	result.Elapsed = o.now().Sub(start)
	o.logger.Info("conversion completed",
		"document_id", doc.ID,
		"output_id", result.Output.ID,
		"source", doc.Format.ID,
		"target", target.ID,
		"elapsed", result.Elapsed,
	)
	terminal = common.Completed(result)
	return terminal
}

// execute 转换各步骤；意外 panic 转为错误
func (o *Orchestrator) execute(ctx context.Context, doc common.Document, target format.Format, opts common.ConversionOptions, emit func(common.ConversionEvent) bool) (result common.ConversionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("conversion fault", "document_id", doc.ID, "cause", r)
			err = fmt.Errorf("unexpected fault: %v", r)
		}
	}()

	if !o.paths.IsConvertible(doc.Format, target) {
		return result, fmt.Errorf("%w: %s to %s", common.ErrUnsupportedPath, formatLabel(doc.Format), formatLabel(target))
	}
	eng, ok := o.registry.For(doc.Format.Category)
	if !ok {
		return result, fmt.Errorf("%w: %s", common.ErrMissingEngine, doc.Format.Category)
	}
	if !eng.SupportsConversion(doc.Format, target) {
		return result, fmt.Errorf("%w: %s engine cannot convert %s to %s", common.ErrUnsupportedPath, eng.Category(), doc.Format.ID, target.ID)
	}

	ws, err := newWorkspace(o.cfg.TempDir)
	if err != nil {
		return result, common.NewPipelineError(common.StageMaterial, "创建工作目录失败", err)
	}
	defer ws.close()
	input, err := ws.materialize(ctx, o.blobs, doc)
	if err != nil {
		return result, err
	}
	output := ws.path("output." + target.Extension)

	progress := newProgress(func(p float64) bool { return emit(common.Processing(p)) })
	progress.report(0)
	converted, err := worker.Run(ctx, o.pool, func(ctx context.Context) (bool, error) {
		return eng.Convert(ctx, input, output, doc.Format, target, opts, func(p float64) { progress.report(p) }), nil
	})
	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if !converted {
		return result, common.ErrEngineFailed
	}
	progress.report(1)

	out, err := o.persist(ctx, doc, target, output)
	if err != nil {
		return result, err
	}
	result = common.ConversionResult{Source: doc, Output: out, Success: true}

	if opts.AutoVerify {
		if !emit(common.Verifying()) {
			return result, ctx.Err()
		}
		vopts := common.DefaultVerificationOptions()
		vopts.MinimumMatchScore = o.cfg.MinimumMatchScore
		vopts.Password = opts.Password
		vr, err := o.verifier.Verify(ctx, doc, *out, vopts, nil)
		switch {
		case ctx.Err() != nil:
			return result, ctx.Err()
		case err != nil:
			o.logger.Warn("verification skipped", "document_id", doc.ID, "output_id", out.ID, "error", err)
		default:
			result.Verification = &vr
		}
	}
	return result, nil
}

// persist 保存输出字节与文档记录；记录保存失败时回收字节
func (o *Orchestrator) persist(ctx context.Context, source common.Document, target format.Format, output string) (*common.Document, error) {
	data, err := os.ReadFile(output)
	if err != nil {
		return nil, common.NewPipelineError(common.StagePersist, "读取转换输出失败", err)
	}
	name := common.OutputName(source.Name, target.Extension)
	ref, size, err := object.PutBytes(ctx, o.blobs, name, data, map[string]string{
		"content_type": target.MimeType,
		"source_id":    source.ID,
	})
	if err != nil {
		return nil, common.NewPipelineError(common.StagePersist, "保存转换输出失败", err)
	}

	now := o.now()
	saved, err := o.docs.Save(ctx, &common.Document{
		Name:       name,
		Format:     target,
		Size:       size,
		StorageRef: ref,
		CreatedAt:  now,
		ModifiedAt: now,
		Metadata:   source.Metadata.Clone(),
	})
	if err != nil {
		if derr := o.blobs.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			o.logger.Warn("orphaned output blob", "ref", ref, "error", derr)
		}
		return nil, common.NewPipelineError(common.StagePersist, "保存输出文档失败", err)
	}
	return saved, nil
}

// failureReason Failed 事件中的原因文本
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.ErrCancelled.Error()
	case errors.Is(err, common.ErrEngineFailed):
		return common.ErrEngineFailed.Error()
	default:
		return err.Error()
	}
}

func formatLabel(f format.Format) string {
	if f.IsZero() {
		return "unknown format"
	}
	return f.ID
}

// progress 单调不减、落在 [0,1] 的进度
type progress struct {
	last    float64
	started bool
	emit    func(float64) bool
}

func newProgress(emit func(float64) bool) *progress {
	return &progress{emit: emit}
}

func (p *progress) report(v float64) {
	v = min(max(v, 0), 1)
	if p.started && v < p.last {
		v = p.last
	}
	if p.started && v == p.last && v < 1 {
		return
	}
	p.last, p.started = v, true
	p.emit(v)
}
