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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	docapp "docconv/internal/app"
	"docconv/internal/pipeline/common"
	perrors "docconv/pkg/errors"
)

// DefaultMaxUpload 上传字节上限默认值
const DefaultMaxUpload = 64 << 20

// Handler HTTP 处理器
type Handler struct {
	docs      docapp.DocumentService
	maxUpload int64
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(docs docapp.DocumentService) *Handler {
	return &Handler{docs: docs, maxUpload: DefaultMaxUpload}
}

// SetMaxUpload 设置上传字节上限，<=0 时使用默认值
func (h *Handler) SetMaxUpload(n int64) {
	if n <= 0 {
		n = DefaultMaxUpload
	}
	h.maxUpload = n
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "docconv",
	})
}

// ListFormats 列出格式目录，?category= 过滤
// GET /api/formats
func (h *Handler) ListFormats(ctx context.Context, c *app.RequestContext) {
	formats := h.docs.Formats(c.Query("category"))
	c.JSON(consts.StatusOK, map[string]interface{}{
		"formats": formats,
		"total":   len(formats),
	})
}

// FormatTargets 列出格式可转换的目标
// GET /api/formats/:id/targets
func (h *Handler) FormatTargets(ctx context.Context, c *app.RequestContext) {
	targets, err := h.docs.Targets(c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"source":  strings.ToLower(c.Param("id")),
		"targets": targets,
	})
}

// UploadDocument 上传文档：multipart 表单字段 file，或原始字节配合 ?name=
// POST /api/documents
func (h *Handler) UploadDocument(ctx context.Context, c *app.RequestContext) {
	name, data, err := h.readUpload(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	doc, err := h.docs.Upload(ctx, name, data)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, doc)
}

// errTooLarge 上传超过上限
var errTooLarge = errors.New("upload too large")

func (h *Handler) readUpload(c *app.RequestContext) (string, []byte, error) {
	if strings.HasPrefix(string(c.ContentType()), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("%w: form field file is required", common.ErrInvalidInput)
		}
		if fh.Size > h.maxUpload {
			return "", nil, errTooLarge
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
		if err != nil {
			return "", nil, err
		}
		return fh.Filename, data, nil
	}

	name := c.Query("name")
	if name == "" {
		name = string(c.GetHeader("X-File-Name"))
	}
	data := c.Request.Body()
	if int64(len(data)) > h.maxUpload {
		return "", nil, errTooLarge
	}
	return name, data, nil
}

// ListDocuments 列出文档：?format=、?q=、?recent=
// GET /api/documents
func (h *Handler) ListDocuments(ctx context.Context, c *app.RequestContext) {
	q := docapp.ListQuery{Format: c.Query("format"), Search: c.Query("q")}
	if v := c.Query("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(ctx, c, fmt.Errorf("%w: recent must be an integer", common.ErrInvalidInput))
			return
		}
		if n <= 0 {
			n = -1
		}
		q.Recent = n
	}
	docs, err := h.docs.ListDocuments(ctx, q)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}

// GetDocument 获取文档
// GET /api/documents/:id
func (h *Handler) GetDocument(ctx context.Context, c *app.RequestContext) {
	doc, err := h.docs.GetDocument(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *Handler) DeleteDocument(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := h.docs.DeleteDocument(ctx, id); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"deleted": id})
}

// DownloadDocument 下载文档字节
// GET /api/documents/:id/download
func (h *Handler) DownloadDocument(ctx context.Context, c *app.RequestContext) {
	doc, data, err := h.docs.Download(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	c.Data(consts.StatusOK, doc.Format.MimeType, data)
}

// DocumentContent 提取内容；text、images、tables、formatting、links 查询参数为 false 时关闭对应部分
// GET /api/documents/:id/content
func (h *Handler) DocumentContent(ctx context.Context, c *app.RequestContext) {
	opts := common.ExtractionOptions{
		ExtractText:        queryBool(c, "text", true),
		ExtractImages:      queryBool(c, "images", true),
		ExtractTables:      queryBool(c, "tables", true),
		PreserveFormatting: queryBool(c, "formatting", true),
		ExtractHyperlinks:  queryBool(c, "links", true),
	}
	content, err := h.docs.Content(ctx, c.Param("id"), opts)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, content)
}

// DocumentMetadata 重新提取并保存元数据
// GET /api/documents/:id/metadata
func (h *Handler) DocumentMetadata(ctx context.Context, c *app.RequestContext) {
	doc, err := h.docs.Metadata(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// DocumentSections 按标题切分的分节
// GET /api/documents/:id/sections
func (h *Handler) DocumentSections(ctx context.Context, c *app.RequestContext) {
	sections, err := h.docs.Sections(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"sections": sections,
		"total":    len(sections),
	})
}

type convertRequest struct {
	DocumentID string                   `json:"document_id"`
	Target     string                   `json:"target"`
	Options    common.ConversionOptions `json:"options"`
}

// Convert 转换单个文档，返回有序事件列表；?stream=true 时以 NDJSON 逐条输出
// POST /api/convert
func (h *Handler) Convert(ctx context.Context, c *app.RequestContext) {
	req := convertRequest{Options: h.docs.ConversionDefaults()}
	if err := decodeBody(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	if req.DocumentID == "" || req.Target == "" {
		writeError(ctx, c, fmt.Errorf("%w: document_id and target are required", common.ErrInvalidInput))
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	events, err := h.docs.Convert(runCtx, req.DocumentID, req.Target, req.Options)
	if err != nil {
		cancel()
		writeError(ctx, c, err)
		return
	}
	respond(c, events, cancel)
}

type batchRequest struct {
	DocumentIDs []string                 `json:"document_ids"`
	Target      string                   `json:"target"`
	Options     common.ConversionOptions `json:"options"`
}

// BatchConvert 顺序转换多个文档，返回进度快照列表；?stream=true 时以 NDJSON 逐条输出
// POST /api/batch
func (h *Handler) BatchConvert(ctx context.Context, c *app.RequestContext) {
	req := batchRequest{Options: h.docs.ConversionDefaults()}
	if err := decodeBody(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	if req.Target == "" {
		writeError(ctx, c, fmt.Errorf("%w: target is required", common.ErrInvalidInput))
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	progress, err := h.docs.Batch(runCtx, req.DocumentIDs, req.Target, req.Options)
	if err != nil {
		cancel()
		writeError(ctx, c, err)
		return
	}
	respond(c, progress, cancel)
}

type verifyRequest struct {
	SourceID    string                     `json:"source_id"`
	ConvertedID string                     `json:"converted_id"`
	Options     common.VerificationOptions `json:"options"`
}

func (h *Handler) decodeVerify(c *app.RequestContext) (verifyRequest, error) {
	req := verifyRequest{Options: common.DefaultVerificationOptions()}
	if err := decodeBody(c, &req); err != nil {
		return req, err
	}
	if req.SourceID == "" || req.ConvertedID == "" {
		return req, fmt.Errorf("%w: source_id and converted_id are required", common.ErrInvalidInput)
	}
	return req, nil
}

// Verify 校验转换结果，返回事件列表；?stream=true 时以 NDJSON 逐条输出
// POST /api/verify
func (h *Handler) Verify(ctx context.Context, c *app.RequestContext) {
	req, err := h.decodeVerify(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	events, err := h.docs.Verify(runCtx, req.SourceID, req.ConvertedID, req.Options)
	if err != nil {
		cancel()
		writeError(ctx, c, err)
		return
	}
	respond(c, events, cancel)
}

// GenerateReport 校验并保存文本报告
// POST /api/reports
func (h *Handler) GenerateReport(ctx context.Context, c *app.RequestContext) {
	req, err := h.decodeVerify(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	report, err := h.docs.Report(ctx, req.SourceID, req.ConvertedID, req.Options)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, report)
}

// GenerateComparison 生成可视对比产物
// POST /api/comparisons
func (h *Handler) GenerateComparison(ctx context.Context, c *app.RequestContext) {
	req, err := h.decodeVerify(c)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	ref, err := h.docs.Compare(ctx, req.SourceID, req.ConvertedID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, map[string]string{"ref": ref})
}

// respond 收集全部事件后一次返回；?stream=true 时边产生边写出 NDJSON
func respond[T any](c *app.RequestContext, events <-chan T, cancel context.CancelFunc) {
	if queryBool(c, "stream", false) {
		streamNDJSON(c, events, cancel)
		return
	}
	defer cancel()
	list := make([]T, 0, 8)
	for ev := range events {
		list = append(list, ev)
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"events": list})
}

// streamNDJSON 每行一个 JSON 事件；写出失败（客户端断开）时取消转换并排空通道
func streamNDJSON[T any](c *app.RequestContext, events <-chan T, cancel context.CancelFunc) {
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		enc := json.NewEncoder(pw)
		for ev := range events {
			if err := enc.Encode(ev); err != nil {
				cancel()
				for range events {
				}
				break
			}
		}
		_ = pw.Close()
	}()
	c.SetStatusCode(consts.StatusOK)
	c.SetContentType("application/x-ndjson")
	c.SetBodyStream(pr, -1)
}

func decodeBody(c *app.RequestContext, v interface{}) error {
	body := c.Request.Body()
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", common.ErrInvalidInput)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}

func queryBool(c *app.RequestContext, key string, def bool) bool {
	v := c.Query(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// writeError 按错误类别映射状态码
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrDocumentNotFound), errors.Is(err, common.ErrBlobNotFound), perrors.IsNotFound(err):
		status = consts.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrEmptyDocument), errors.Is(err, common.ErrUnsupportedPath):
		status = consts.StatusBadRequest
	case errors.Is(err, common.ErrPasswordRequired):
		status = consts.StatusUnprocessableEntity
	case errors.Is(err, errTooLarge):
		status = consts.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = consts.StatusRequestTimeout
	default:
		hlog.CtxErrorf(ctx, "request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	c.JSON(status, map[string]string{"error": err.Error()})
}
