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
	"encoding/json"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/app"
	"docconv/internal/pipeline/common"
	"docconv/pkg/config"
)

const guide = "# Guide\n\nIntro paragraph.\n\n## Usage\n\nRun it.\n"

func session(t *testing.T) *sdk.ClientSession {
	t.Helper()
	cfg := &config.Config{}
	cfg.Log.Level = "error"
	cfg.Conversion.TempDir = t.TempDir()
	b, err := app.NewBootstrap(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	srv := NewServer(b.DocumentService())
	serverT, clientT := sdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx, serverT) }()

	client := sdk.NewClient(&sdk.Implementation{Name: "docconv-test", Version: "0.1.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, name)
	require.NotEmpty(t, res.Content, name)
	tc, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok, "expected TextContent")
	return tc.Text, res.IsError
}

func TestTools_Listed(t *testing.T) {
	cs := session(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, n := range []string{"docconv_formats", "docconv_targets", "docconv_upload", "docconv_content", "docconv_convert", "docconv_verify"} {
		assert.True(t, names[n], n)
	}
}

func TestFormatsAndTargets(t *testing.T) {
	cs := session(t)

	text, isErr := call(t, cs, "docconv_formats", map[string]any{"category": "markup"})
	require.False(t, isErr, text)
	var formats struct {
		Formats []struct {
			ID string `json:"id"`
		} `json:"formats"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &formats))
	assert.Len(t, formats.Formats, 6)

	text, isErr = call(t, cs, "docconv_targets", map[string]any{"format": "md"})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"html"`)

	_, isErr = call(t, cs, "docconv_targets", map[string]any{"format": "nope"})
	assert.True(t, isErr)
}

func TestUploadConvertVerify(t *testing.T) {
	cs := session(t)

	text, isErr := call(t, cs, "docconv_upload", map[string]any{"name": "guide.md", "content": guide})
	require.False(t, isErr, text)
	var doc common.Document
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	assert.Equal(t, "md", doc.Format.ID)

	text, isErr = call(t, cs, "docconv_content", map[string]any{"document_id": doc.ID})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Intro paragraph.")

	text, isErr = call(t, cs, "docconv_convert", map[string]any{"document_id": doc.ID, "target": "html", "auto_verify": false})
	require.False(t, isErr, text)
	var result common.ConversionResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	require.NotNil(t, result.Output)
	assert.Nil(t, result.Verification)

	text, isErr = call(t, cs, "docconv_verify", map[string]any{"source_id": doc.ID, "converted_id": result.Output.ID})
	require.False(t, isErr, text)
	var vr common.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(text), &vr))
	assert.Greater(t, vr.OverallScore, 0.0)
}

func TestConvert_UnsupportedPathIsToolError(t *testing.T) {
	cs := session(t)
	text, _ := call(t, cs, "docconv_upload", map[string]any{"name": "guide.md", "content": guide})
	var doc common.Document
	require.NoError(t, json.Unmarshal([]byte(text), &doc))

	text, isErr := call(t, cs, "docconv_convert", map[string]any{"document_id": doc.ID, "target": "zip"})
	assert.True(t, isErr)
	assert.Contains(t, text, "conversion path not supported")
}
