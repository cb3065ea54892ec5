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

package convert

import (
	"bytes"
	"context"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/engine"
	"docconv/internal/pipeline/verify"
	"docconv/internal/storage/cache"
	"docconv/internal/storage/metadata"
	"docconv/internal/storage/object"
	"docconv/internal/worker"
	"docconv/pkg/log"
)

// newEngineEnv 使用内置引擎与 codec 解码校验的编排器
func newEngineEnv(t *testing.T) *env {
	t.Helper()
	blobs := object.NewMemoryStore()
	docs := metadata.NewMemoryStore()
	c := cache.NewMemoryStore()
	logger := log.Discard().Logger
	codecs := codec.NewSet()
	o, err := New(Deps{
		Engines:   engine.DefaultEngines(engine.Deps{Codecs: codecs, Logger: logger}),
		Pool:      worker.NewPool(2),
		Documents: docs,
		Blobs:     blobs,
		Verifier:  verify.New(verify.CodecLoader{Blobs: blobs, Codecs: codecs}, logger),
		Cache:     c,
		Logger:    logger,
	}, Config{TempDir: t.TempDir()})
	require.NoError(t, err)
	return &env{o: o, docs: docs, blobs: blobs, cache: c}
}

func completed(t *testing.T, events []common.ConversionEvent) *common.ConversionResult {
	t.Helper()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, common.EventCompleted, last.Type, last.Reason)
	require.NotNil(t, last.Result)
	return last.Result
}

func TestConvert_EnginesTextToDocxToPDF(t *testing.T) {
	require.NoError(t, codec.SetPDFLicense(""))
	e := newEngineEnv(t)
	ctx := context.Background()
	src := e.upload(t, "notes.txt", format.TXT, "Quarterly numbers went up.\n\nCosts stayed flat across every region.\n")
	opts := common.DefaultConversionOptions()

	docx := completed(t, collect(e.o.Convert(ctx, src, format.DOCX, opts)))
	require.NotNil(t, docx.Output)
	assert.Equal(t, "notes.docx", docx.Output.Name)
	require.NotNil(t, docx.Verification)

	events := collect(e.o.Convert(ctx, *docx.Output, format.PDF, opts))
	assert.Equal(t, common.EventInitializing, events[0].Type)
	assert.Equal(t, common.EventVerifying, events[len(events)-2].Type)
	res := completed(t, events)
	assert.True(t, res.Success)

	out := res.Output
	require.NotNil(t, out)
	assert.Equal(t, format.PDF, out.Format)
	assert.Equal(t, "pdf", out.Extension())
	assert.Equal(t, "notes.pdf", out.Name)

	data, err := object.ReadAll(ctx, e.blobs, out.StorageRef)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	require.NotNil(t, res.Verification)
	assert.Greater(t, res.Verification.ContentScore, 0.5)
	for _, issue := range res.Verification.Issues {
		assert.NotEqual(t, common.SeverityCritical, issue.Severity, issue.Description)
	}

	content, err := e.o.ExtractContent(ctx, *out, common.DefaultExtractionOptions())
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Costs stayed flat across every region.")
}

// 加密源文档的密码同时用于转换与自动校验
func TestConvert_EncryptedPDFVerifiesWithPassword(t *testing.T) {
	require.NoError(t, codec.SetPDFLicense(""))
	ctx := context.Background()
	b := codec.TextContent("Board minutes.\n\nThe budget was approved.")
	plain, err := codec.NewSet().Encode(ctx, "pdf", &codec.Parsed{Content: b}, nil)
	require.NoError(t, err)
	var enc bytes.Buffer
	require.NoError(t, api.Encrypt(bytes.NewReader(plain), &enc, pdfmodel.NewAESConfiguration("secret", "owner", 256)))

	e := newEngineEnv(t)
	src := e.upload(t, "minutes.pdf", format.PDF, enc.String())

	opts := common.DefaultConversionOptions()
	events := collect(e.o.Convert(ctx, src, format.TXT, opts))
	assert.Equal(t, common.EventFailed, events[len(events)-1].Type)

	opts.Password = "secret"
	res := completed(t, collect(e.o.Convert(ctx, src, format.TXT, opts)))
	require.NotNil(t, res.Verification)
	assert.Greater(t, res.Verification.ContentScore, 0.5)

	data, err := object.ReadAll(ctx, e.blobs, res.Output.StorageRef)
	require.NoError(t, err)
	assert.Contains(t, string(data), "The budget was approved.")
}
