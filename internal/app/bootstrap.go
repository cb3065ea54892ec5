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
	"errors"
	"fmt"

	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/convert"
	"docconv/internal/pipeline/engine"
	"docconv/internal/pipeline/ocr"
	"docconv/internal/pipeline/verify"
	"docconv/internal/storage/cache"
	"docconv/internal/storage/metadata"
	"docconv/internal/storage/object"
	"docconv/internal/worker"
	"docconv/pkg/config"
	"docconv/pkg/log"
	"docconv/pkg/secrets"
)

// Bootstrap 统一初始化：供 api、cli 与 mcp 复用，避免在 cmd 内装配管线
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	Secrets      secrets.Store
	Documents    metadata.Store
	Blobs        object.Store
	Cache        cache.Store
	Codecs       *codec.Set
	OCR          *ocr.Recognizer
	Pool         *worker.Pool
	Verifier     *verify.Verifier
	Reporter     verify.Reporter
	Orchestrator *convert.Orchestrator
}

// NewBootstrap 根据配置创建 Bootstrap（Secrets/Storage/Cache/Engines/Orchestrator），cfg 为 nil 时全部使用内存实现
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	ctx := context.Background()

	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger}

	b.Secrets, err = secrets.NewStore(secrets.Config{Provider: cfg.Secrets.Provider, Config: cfg.Secrets.Config})
	if err != nil {
		return nil, b.fail(fmt.Errorf("初始化 secret store 失败: %w", err))
	}
	if err := config.ResolveSecrets(ctx, cfg, b.Secrets); err != nil {
		return nil, b.fail(err)
	}

	if b.Documents, err = metadata.NewStore(ctx, cfg.Storage.Metadata); err != nil {
		return nil, b.fail(fmt.Errorf("初始化文档存储失败: %w", err))
	}
	if b.Blobs, err = object.NewStore(cfg.Storage.Object); err != nil {
		return nil, b.fail(fmt.Errorf("初始化对象存储失败: %w", err))
	}
	if b.Cache, err = cache.NewCache(ctx, cfg.Storage.Cache); err != nil {
		return nil, b.fail(fmt.Errorf("初始化缓存失败: %w", err))
	}

	// 无可用许可时 PDF 读写由 pdfcpu 完成
	if err := codec.SetPDFLicense(cfg.Conversion.PDFLicenseKey); err != nil {
		logger.Warn("unipdf license 设置失败，改用 pdfcpu", "error", err)
	} else if !codec.PDFLicensed() {
		logger.Info("未配置 unipdf license，PDF 由 pdfcpu 处理")
	}
	b.Codecs = codec.NewSet()
	ocrCfg := cfg.Conversion.OCR
	b.OCR = ocr.NewRecognizer(ocr.Config{
		Enable:    ocrCfg.Enable,
		Tesseract: ocrCfg.Tesseract,
		Lang:      ocrCfg.Lang,
		PSM:       ocrCfg.PSM,
		TempDir:   cfg.Conversion.TempDir,
	}, nil)
	b.Pool = worker.NewPool(cfg.Conversion.Workers)

	loader := verify.CodecLoader{Blobs: b.Blobs, Codecs: b.Codecs}
	b.Verifier = verify.New(loader, logger.Logger)
	b.Reporter = verify.Reporter{Blobs: b.Blobs, Loader: loader}

	engines := engine.DefaultEngines(engine.Deps{Codecs: b.Codecs, OCR: b.OCR, Logger: logger.Logger})
	b.Orchestrator, err = convert.New(convert.Deps{
		Engines:   engines,
		Pool:      b.Pool,
		Documents: b.Documents,
		Blobs:     b.Blobs,
		Verifier:  b.Verifier,
		Cache:     b.Cache,
		Logger:    logger.Logger,
	}, convert.Config{
		TempDir:           cfg.Conversion.TempDir,
		MinimumMatchScore: cfg.Conversion.MinimumMatchScore,
		CacheTTL:          cache.TTL(cfg.Storage.Cache),
	})
	if err != nil {
		// 引擎注册不一致属于启动期配置错误
		return nil, b.fail(fmt.Errorf("初始化转换编排器失败: %w", err))
	}

	logger.Info("bootstrap 完成",
		"metadata", storeType(cfg.Storage.Metadata.Type),
		"object", storeType(cfg.Storage.Object.Type),
		"cache", storeType(cfg.Storage.Cache.Type),
		"workers", b.Pool.Size(),
		"ocr", b.OCR.Enabled())
	return b, nil
}

// DocumentService 基于已装配组件创建文档门面
func (b *Bootstrap) DocumentService() DocumentService {
	return NewDocumentService(b.Orchestrator, b.Documents, b.Blobs, b.Reporter, b.Config.Conversion.AutoVerifyEnabled(), b.Logger.Logger)
}

// Close 关闭存储连接与日志文件
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	if b.Blobs != nil {
		errs = append(errs, b.Blobs.Close())
	}
	if b.Documents != nil {
		errs = append(errs, b.Documents.Close())
	}
	if b.Logger != nil {
		errs = append(errs, b.Logger.Close())
	}
	return errors.Join(errs...)
}

// fail 初始化失败时释放已创建的资源
func (b *Bootstrap) fail(err error) error {
	_ = b.Close()
	return err
}

func storeType(t string) string {
	if t == "" {
		return "memory"
	}
	return t
}
