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

package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"docconv/internal/app"
	"docconv/internal/pipeline/common"
)

// Name MCP 服务名
const Name = "docconv"

// Version MCP 服务版本
const Version = "0.1.0"

// Server 以 MCP 工具暴露 DocumentService
type Server struct {
	docs app.DocumentService
	srv  *sdk.Server
}

// NewServer 创建并注册全部工具
func NewServer(docs app.DocumentService) *Server {
	s := &Server{
		docs: docs,
		srv:  sdk.NewServer(&sdk.Implementation{Name: Name, Version: Version}, nil),
	}
	s.register()
	return s
}

// Run 在给定 transport 上服务直到客户端断开或 ctx 取消
func (s *Server) Run(ctx context.Context, t sdk.Transport) error {
	return s.srv.Run(ctx, t)
}

// MCP 返回底层 sdk Server
func (s *Server) MCP() *sdk.Server { return s.srv }

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// handler 工具实现，args 为原始 JSON 参数
type handler func(ctx context.Context, args json.RawMessage) (any, error)

// addTool 错误以 tool error 返回，结果序列化为单个 TextContent
func (s *Server) addTool(tool *sdk.Tool, h handler) {
	s.srv.AddTool(tool, func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		resp, err := h(ctx, req.Params.Arguments)
		if err != nil {
			var res sdk.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res sdk.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
		}, nil
	})
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) register() {
	s.addTool(&sdk.Tool{
		Name:        "docconv_formats",
		Description: "List supported document formats, optionally filtered by category (markup, plain_text, word_processing, ...).",
		InputSchema: inputSchema(map[string]any{"category": str("Format category")}, nil),
	}, s.formats)

	s.addTool(&sdk.Tool{
		Name:        "docconv_targets",
		Description: "List the formats a given source format can be converted to.",
		InputSchema: inputSchema(map[string]any{"format": str("Source format id, e.g. md")}, []string{"format"}),
	}, s.targets)

	s.addTool(&sdk.Tool{
		Name:        "docconv_upload",
		Description: "Store a document. Pass text in content, or binary data in content_base64.",
		InputSchema: inputSchema(map[string]any{
			"name":           str("File name including extension"),
			"content":        str("Document text"),
			"content_base64": str("Base64 encoded document bytes"),
		}, []string{"name"}),
	}, s.upload)

	s.addTool(&sdk.Tool{
		Name:        "docconv_content",
		Description: "Extract text, tables and links from a stored document.",
		InputSchema: inputSchema(map[string]any{"document_id": str("Document id")}, []string{"document_id"}),
	}, s.content)

	s.addTool(&sdk.Tool{
		Name:        "docconv_convert",
		Description: "Convert a stored document to the target format and return the conversion result.",
		InputSchema: inputSchema(map[string]any{
			"document_id": str("Source document id"),
			"target":      str("Target format id"),
			"auto_verify": map[string]any{"type": "boolean", "description": "Verify the output after conversion"},
		}, []string{"document_id", "target"}),
	}, s.convert)

	s.addTool(&sdk.Tool{
		Name:        "docconv_verify",
		Description: "Compare a converted document with its source and return the verification scores.",
		InputSchema: inputSchema(map[string]any{
			"source_id":    str("Source document id"),
			"converted_id": str("Converted document id"),
		}, []string{"source_id", "converted_id"}),
	}, s.verify)
}

func (s *Server) formats(_ context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Category string `json:"category"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return map[string]any{"formats": s.docs.Formats(req.Category)}, nil
}

func (s *Server) targets(_ context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Format string `json:"format"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	targets, err := s.docs.Targets(req.Format)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(targets))
	for _, f := range targets {
		ids = append(ids, f.ID)
	}
	return map[string]any{"format": req.Format, "targets": ids}, nil
}

func (s *Server) upload(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Name          string `json:"name"`
		Content       string `json:"content"`
		ContentBase64 string `json:"content_base64"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	data := []byte(req.Content)
	if req.ContentBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("content_base64: %w", err)
		}
		data = b
	}
	return s.docs.Upload(ctx, req.Name, data)
}

func (s *Server) content(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return s.docs.Content(ctx, req.DocumentID, common.DefaultExtractionOptions())
}

func (s *Server) convert(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		DocumentID string `json:"document_id"`
		Target     string `json:"target"`
		AutoVerify *bool  `json:"auto_verify"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	opts := s.docs.ConversionDefaults()
	if req.AutoVerify != nil {
		opts.AutoVerify = *req.AutoVerify
	}
	events, err := s.docs.Convert(ctx, req.DocumentID, req.Target, opts)
	if err != nil {
		return nil, err
	}
	var last common.ConversionEvent
	for ev := range events {
		last = ev
	}
	switch last.Type {
	case common.EventCompleted:
		return last.Result, nil
	case common.EventFailed:
		return nil, errors.New(last.Reason)
	default:
		return nil, ctxOr(ctx, "conversion ended without a result")
	}
}

func (s *Server) verify(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		SourceID    string `json:"source_id"`
		ConvertedID string `json:"converted_id"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	events, err := s.docs.Verify(ctx, req.SourceID, req.ConvertedID, common.DefaultVerificationOptions())
	if err != nil {
		return nil, err
	}
	var last common.VerificationEvent
	for ev := range events {
		last = ev
	}
	switch last.Type {
	case common.EventCompleted:
		return last.Result, nil
	case common.EventFailed:
		return nil, errors.New(last.Reason)
	default:
		return nil, ctxOr(ctx, "verification ended without a result")
	}
}

func ctxOr(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New(msg)
}
