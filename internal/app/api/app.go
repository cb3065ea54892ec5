package api

import (
	"context"
	"fmt"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"docconv/internal/api/http"
	"docconv/internal/api/http/middleware"
	"docconv/internal/app"
	"docconv/pkg/log"
	"docconv/pkg/metrics"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware；仅依赖 DocumentService）
type App struct {
	config       *app.Bootstrap
	docService   app.DocumentService
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
	metricsSrv   *nethttp.Server
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Orchestrator == nil {
		return nil, fmt.Errorf("bootstrap 未初始化")
	}
	cfg := bootstrap.Config
	docService := bootstrap.DocumentService()
	handler := http.NewHandler(docService)
	handler.SetMaxUpload(cfg.API.MaxUpload)

	var mwOpts []middleware.Option
	if cfg.API.CORS.Enable {
		mwOpts = append(mwOpts, middleware.WithCORSOrigins(cfg.API.CORS.AllowOrigins...))
	}
	if cfg.API.Middleware.RateLimit {
		mwOpts = append(mwOpts, middleware.WithRateLimit(cfg.API.Middleware.RateLimitRPS))
	}
	router := http.NewRouter(handler, middleware.NewMiddleware(mwOpts...))
	router.SetAccessSink(middleware.SlogSink{Logger: bootstrap.Logger.Logger})

	if cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		timeout := parseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := parseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), timeout, maxRefresh, cfg.API.Middleware.JWTUsers)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用", "users", len(cfg.API.Middleware.JWTUsers))
		}
	}

	return &App{
		config:     bootstrap,
		docService: docService,
		router:     router,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	if p := cfg.Monitoring.Prometheus; p.Enable && p.Port > 0 {
		a.serveMetrics(fmt.Sprintf(":%d", p.Port))
	}

	var opts []config.Option
	if d := parseDuration(cfg.API.Timeout, 0); d > 0 {
		opts = append(opts, server.WithReadTimeout(d), server.WithWriteTimeout(d))
	}

	// 可选：启用链路追踪（OpenTelemetry）
	tracingCfg := cfg.Monitoring.Tracing
	exportEndpoint := tracingCfg.ExportEndpoint
	if exportEndpoint == "" {
		exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if tracingCfg.Enable && exportEndpoint != "" {
		serviceName := tracingCfg.ServiceName
		if serviceName == "" {
			serviceName = "docconv-api"
		}
		popts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(exportEndpoint),
		}
		if tracingCfg.Insecure {
			popts = append(popts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(popts...)
		tracerOpt, tcfg := hertztracing.NewServerTracer()
		a.router.Use(hertztracing.ServerMiddleware(tcfg))
		a.hertz = a.router.Build(addr, append(opts, tracerOpt)...)
		a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
	} else {
		a.hertz = a.router.Build(addr, opts...)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	return a.config.Close()
}

// serveMetrics 在独立端口暴露 /metrics，API 端口上的 /metrics 不受影响
func (a *App) serveMetrics(addr string) {
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsSrv = &nethttp.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			a.config.Logger.Error("metrics 服务异常退出", "addr", addr, "error", err)
		}
	}()
	a.config.Logger.Info("metrics 服务启动", "addr", addr)
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
