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
	"bytes"
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"docconv/internal/api/http/middleware"
	"docconv/pkg/metrics"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	access     middleware.AccessSink
	jwt        *jwt.HertzJWTMiddleware
	extra      []app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 JWT：/api/auth/login 签发令牌，其余 /api 路由（健康检查除外）要求认证
func (r *Router) SetJWT(j *jwt.HertzJWTMiddleware) {
	r.jwt = j
}

// SetAccessSink 设置访问日志去向，未设置时不记录
func (r *Router) SetAccessSink(sink middleware.AccessSink) {
	r.access = sink
}

// Use 追加全局中间件（如链路追踪），在 Build 时先于路由注册
func (r *Router) Use(handlers ...app.HandlerFunc) {
	r.extra = append(r.extra, handlers...)
}

// Build 创建 Hertz 服务并注册路由，addr 如 ":8080"
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{
		server.WithHostPorts(addr),
		server.WithMaxRequestBodySize(int(r.handler.maxUpload) + 1<<20),
	}, opts...)
	h := server.New(opts...)
	h.Use(recovery.Recovery())
	h.Use(r.extra...)
	if r.access != nil {
		h.Use(middleware.AccessLog(r.access))
	}
	h.Use(r.middleware.CORS(), r.middleware.RateLimit())

	h.GET("/api/health", r.handler.HealthCheck)
	h.GET("/metrics", Metrics)

	var auth []app.HandlerFunc
	if r.jwt != nil {
		h.POST("/api/auth/login", r.jwt.LoginHandler)
		h.GET("/api/auth/refresh", r.jwt.RefreshHandler)
		auth = append(auth, r.jwt.MiddlewareFunc())
	}
	api := h.Group("/api", auth...)

	formats := api.Group("/formats")
	{
		formats.GET("", r.handler.ListFormats)
		formats.GET("/:id/targets", r.handler.FormatTargets)
	}

	documents := api.Group("/documents")
	{
		documents.POST("", r.handler.UploadDocument)
		documents.GET("", r.handler.ListDocuments)
		documents.GET("/:id", r.handler.GetDocument)
		documents.DELETE("/:id", r.handler.DeleteDocument)
		documents.GET("/:id/download", r.handler.DownloadDocument)
		documents.GET("/:id/content", r.handler.DocumentContent)
		documents.GET("/:id/metadata", r.handler.DocumentMetadata)
		documents.GET("/:id/sections", r.handler.DocumentSections)
	}

	api.POST("/convert", r.handler.Convert)
	api.POST("/batch", r.handler.BatchConvert)
	api.POST("/verify", r.handler.Verify)
	api.POST("/reports", r.handler.GenerateReport)
	api.POST("/comparisons", r.handler.GenerateComparison)
	return h
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics: %v", err)
		c.String(consts.StatusInternalServerError, err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
