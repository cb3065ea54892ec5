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

// OpenTelemetry integration for distributed tracing
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = "docconv"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartConversionSpan 开始单文档转换 span
func StartConversionSpan(ctx context.Context, documentID, source, target string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "conversion.convert",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("format.source", source),
			attribute.String("format.target", target),
		),
	)
}

// StartBatchSpan 开始批量转换 span
func StartBatchSpan(ctx context.Context, total int, target string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "conversion.batch",
		trace.WithAttributes(
			attribute.Int("batch.total", total),
			attribute.String("format.target", target),
		),
	)
}

// StartEngineSpan 开始引擎调用 span（convert/extract_content/extract_metadata）
func StartEngineSpan(ctx context.Context, category, op string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "engine."+op,
		trace.WithAttributes(
			attribute.String("engine.category", category),
		),
	)
}

// StartVerifySpan 开始校验 span
func StartVerifySpan(ctx context.Context, sourceID, convertedID string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "verification.verify",
		trace.WithAttributes(
			attribute.String("document.source_id", sourceID),
			attribute.String("document.converted_id", convertedID),
		),
	)
}
