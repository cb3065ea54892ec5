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

package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
)

// AccessRecord 一次 API 访问
type AccessRecord struct {
	Method       string
	Path         string
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Duration     time.Duration
	ClientIP     string
	Identity     string
}

// AccessSink 访问记录去向
type AccessSink interface {
	Record(ctx context.Context, rec AccessRecord)
}

// SlogSink 以结构化日志输出访问记录
type SlogSink struct {
	Logger *slog.Logger
}

// Record 实现 AccessSink
func (s SlogSink) Record(ctx context.Context, rec AccessRecord) {
	level := slog.LevelInfo
	if rec.Status >= 500 {
		level = slog.LevelError
	}
	s.Logger.Log(ctx, level, "api access",
		"method", rec.Method,
		"path", rec.Path,
		"action", rec.Action,
		"resource", rec.ResourceType,
		"resource_id", rec.ResourceID,
		"status", rec.Status,
		"duration_ms", rec.Duration.Milliseconds(),
		"client_ip", rec.ClientIP,
		"identity", rec.Identity)
}

// AccessLog 访问日志中间件；identity 取自 JWT 中间件写入的上下文键
func AccessLog(sink AccessSink) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		method, path := string(c.Method()), string(c.Path())
		resourceType, resourceID := extractResource(path)
		identity, _ := c.Get(IdentityKey)
		name, _ := identity.(string)
		sink.Record(ctx, AccessRecord{
			Method:       method,
			Path:         path,
			Action:       determineAction(method, path),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Status:       c.Response.StatusCode(),
			Duration:     time.Since(start),
			ClientIP:     c.ClientIP(),
			Identity:     name,
		})
	}
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method string, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/convert"):
		return "convert"
	case strings.HasPrefix(path, "/api/batch"):
		return "batch_convert"
	case strings.HasPrefix(path, "/api/verify"):
		return "verify"
	case strings.HasPrefix(path, "/api/reports"):
		return "generate_report"
	case strings.HasPrefix(path, "/api/comparisons"):
		return "generate_comparison"
	case strings.HasPrefix(path, "/api/formats"):
		return "view_formats"
	case strings.HasPrefix(path, "/api/documents"):
		switch method {
		case "POST":
			return "upload_document"
		case "DELETE":
			return "delete_document"
		}
		if strings.HasSuffix(path, "/download") {
			return "download_document"
		}
		return "view_document"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) >= 3 {
		// /api/documents/:id -> resourceType=document, resourceID=:id
		switch parts[1] {
		case "documents":
			return "document", parts[2]
		case "formats":
			return "format", parts[2]
		}
	}

	return "unknown", ""
}
