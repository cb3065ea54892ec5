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
	"fmt"
	"log/slog"
	"strings"

	einodoc "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/gabriel-vasile/mimetype"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/convert"
	"docconv/internal/pipeline/ingest"
	"docconv/internal/pipeline/verify"
	"docconv/internal/storage/metadata"
	"docconv/internal/storage/object"
	perrors "docconv/pkg/errors"
)

// ListQuery 文档列表条件；Format、Search、Recent 依次优先，均为空时列出全部
type ListQuery struct {
	Format string
	Search string
	Recent int
}

// Report 校验报告产物
type Report struct {
	Ref    string                    `json:"ref"`
	Text   string                    `json:"text"`
	Result common.VerificationResult `json:"result"`
}

// DocumentService 文档门面：API、CLI 与 MCP 仅依赖此接口，不直接调用 storage 与编排器
type DocumentService interface {
	Formats(category string) []format.Format
	Targets(formatID string) ([]format.Format, error)

	Upload(ctx context.Context, name string, data []byte) (*common.Document, error)
	ListDocuments(ctx context.Context, q ListQuery) ([]*common.Document, error)
	GetDocument(ctx context.Context, id string) (*common.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Download(ctx context.Context, id string) (*common.Document, []byte, error)

	Content(ctx context.Context, id string, opts common.ExtractionOptions) (common.DocumentContent, error)
	Metadata(ctx context.Context, id string) (*common.Document, error)
	Sections(ctx context.Context, id string) ([]*schema.Document, error)

	ConversionDefaults() common.ConversionOptions
	Convert(ctx context.Context, id, target string, opts common.ConversionOptions) (<-chan common.ConversionEvent, error)
	Batch(ctx context.Context, ids []string, target string, opts common.ConversionOptions) (<-chan common.BatchProgress, error)
	Verify(ctx context.Context, sourceID, convertedID string, opts common.VerificationOptions) (<-chan common.VerificationEvent, error)
	Report(ctx context.Context, sourceID, convertedID string, opts common.VerificationOptions) (*Report, error)
	Compare(ctx context.Context, sourceID, convertedID string) (string, error)
}

// documentService 使用编排器与存储实现 DocumentService
type documentService struct {
	orch       *convert.Orchestrator
	docs       metadata.Store
	blobs      object.Store
	reporter   verify.Reporter
	autoVerify bool
	logger     *slog.Logger
}

// NewDocumentService 创建文档门面（由 bootstrap 装配时调用）
func NewDocumentService(orch *convert.Orchestrator, docs metadata.Store, blobs object.Store, reporter verify.Reporter, autoVerify bool, logger *slog.Logger) DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{orch: orch, docs: docs, blobs: blobs, reporter: reporter, autoVerify: autoVerify, logger: logger}
}

func (s *documentService) Formats(category string) []format.Format {
	if category == "" {
		return format.All()
	}
	return format.InCategory(format.Category(strings.ToUpper(category)))
}

func (s *documentService) Targets(formatID string) ([]format.Format, error) {
	f, ok := format.ByID(strings.ToLower(formatID))
	if !ok {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "format %s", formatID)
	}
	return s.orch.Paths().SupportedTargets(f), nil
}

// Upload 保存上传字节并创建文档记录；格式先按文件名判断，失败时按内容嗅探
func (s *documentService) Upload(ctx context.Context, name string, data []byte) (*common.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", common.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrEmptyDocument, name)
	}
	f, ok := DetectFormat(name, data)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized format for %s", common.ErrInvalidInput, name)
	}

	ref, size, err := object.PutBytes(ctx, s.blobs, name, data, map[string]string{"content_type": f.MimeType})
	if err != nil {
		return nil, common.NewPipelineError(common.StagePersist, "store upload", err)
	}
	doc, err := s.docs.Save(ctx, &common.Document{Name: name, Format: f, Size: size, StorageRef: ref})
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), ref)
		return nil, common.NewPipelineError(common.StagePersist, "save document", err)
	}
	s.logger.Info("document uploaded", "id", doc.ID, "name", name, "format", f.ID, "size", size)
	return doc, nil
}

// DetectFormat 由文件名或内容推断格式
func DetectFormat(name string, data []byte) (format.Format, bool) {
	if f, ok := format.ByFileName(name); ok {
		return f, true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if f, ok := format.ByMimeType(m.String()); ok {
			return f, true
		}
	}
	return format.Format{}, false
}

func (s *documentService) ListDocuments(ctx context.Context, q ListQuery) ([]*common.Document, error) {
	switch {
	case q.Format != "":
		return s.docs.ListByFormat(ctx, strings.ToLower(q.Format))
	case q.Search != "":
		return s.docs.Search(ctx, q.Search)
	case q.Recent != 0:
		return s.docs.ListRecent(ctx, q.Recent)
	default:
		return s.docs.List(ctx)
	}
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*common.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		if perrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return doc, nil
}

// DeleteDocument 删除记录及其字节；字节删除失败只记录日志
func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.docs.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", common.ErrDocumentNotFound, id)
	}
	if doc.StorageRef != "" {
		if err := s.blobs.Delete(ctx, doc.StorageRef); err != nil {
			s.logger.Warn("delete blob failed", "id", id, "ref", doc.StorageRef, "error", err)
		}
	}
	return nil
}

func (s *documentService) Download(ctx context.Context, id string) (*common.Document, []byte, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := object.ReadAll(ctx, s.blobs, doc.StorageRef)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrBlobNotFound, err)
	}
	return doc, data, nil
}

func (s *documentService) Content(ctx context.Context, id string, opts common.ExtractionOptions) (common.DocumentContent, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return common.DocumentContent{}, err
	}
	return s.orch.ExtractContent(ctx, *doc, opts)
}

// Metadata 重新提取元数据并保存
func (s *documentService) Metadata(ctx context.Context, id string) (*common.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.orch.ExtractMetadata(ctx, *doc)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Sections 经 eino Loader/Transformer 按标题切分
func (s *documentService) Sections(ctx context.Context, id string) ([]*schema.Document, error) {
	loader := ingest.NewDocumentLoader(s.docs, s.orch)
	docs, err := loader.Load(ctx, einodoc.Source{URI: ingest.URIScheme + id})
	if err != nil {
		if perrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return ingest.NewSectionTransformer().Transform(ctx, docs)
}
