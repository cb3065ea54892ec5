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
	"context"
	"os"
	"testing"

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

// fakeEngine 复制输入字节；特定内容触发失败、panic 或阻塞至取消
type fakeEngine struct {
	category format.Category
}

const (
	contentFail  = "fail"
	contentPanic = "panic"
	contentBlock = "block"
)

func (f *fakeEngine) Category() format.Category { return f.category }

func (f *fakeEngine) Convert(ctx context.Context, input, output string, _, _ format.Format, _ common.ConversionOptions, report engine.ProgressFunc) bool {
	data, err := os.ReadFile(input)
	if err != nil {
		return false
	}
	switch string(data) {
	case contentFail:
		return false
	case contentPanic:
		panic("engine exploded")
	case contentBlock:
		<-ctx.Done()
		return false
	}
	report(0.3)
	report(0.2)
	report(0.7)
	return os.WriteFile(output, data, 0o644) == nil
}

func (f *fakeEngine) ExtractContent(_ context.Context, input string, _ format.Format, opts common.ExtractionOptions) (common.DocumentContent, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return common.DocumentContent{}, err
	}
	c := codec.TextContent(string(data))
	c.Links = []common.DocumentLink{{Text: "home", URL: "https://example.com"}}
	return c.Filter(opts), nil
}

func (f *fakeEngine) ExtractMetadata(context.Context, string, format.Format) (common.DocumentMetadata, error) {
	return common.DocumentMetadata{Title: "Extracted", PageCount: 1}, nil
}

// SupportsConversion rtf 作为目标被拒绝
func (f *fakeEngine) SupportsConversion(source, target format.Format) bool {
	return source.Category == f.category && target.ID != "rtf"
}

func fakeEngines() []engine.Engine {
	var out []engine.Engine
	for _, c := range format.Categories() {
		out = append(out, &fakeEngine{category: c})
	}
	return out
}

// textLoader 把存储字节当作纯文本解码
type textLoader struct {
	blobs object.Store
}

func (l textLoader) Load(ctx context.Context, doc common.Document, _ string) (*codec.Parsed, error) {
	data, err := object.ReadAll(ctx, l.blobs, doc.StorageRef)
	if err != nil {
		return nil, err
	}
	return &codec.Parsed{Content: codec.TextContent(string(data))}, nil
}

type env struct {
	o     *Orchestrator
	docs  metadata.Store
	blobs object.Store
	cache cache.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	blobs := object.NewMemoryStore()
	docs := metadata.NewMemoryStore()
	c := cache.NewMemoryStore()
	logger := log.Discard().Logger
	o, err := New(Deps{
		Engines:   fakeEngines(),
		Pool:      worker.NewPool(2),
		Documents: docs,
		Blobs:     blobs,
		Verifier:  verify.New(textLoader{blobs: blobs}, logger),
		Cache:     c,
		Logger:    logger,
	}, Config{TempDir: t.TempDir()})
	require.NoError(t, err)
	return &env{o: o, docs: docs, blobs: blobs, cache: c}
}

func (e *env) upload(t *testing.T, name string, f format.Format, content string) common.Document {
	t.Helper()
	ctx := context.Background()
	ref, size, err := object.PutBytes(ctx, e.blobs, name, []byte(content), nil)
	require.NoError(t, err)
	doc, err := e.docs.Save(ctx, &common.Document{
		Name: name, Format: f, Size: size, StorageRef: ref,
		Metadata: common.DocumentMetadata{Title: "Quarterly"},
	})
	require.NoError(t, err)
	return *doc
}

func collect(ch <-chan common.ConversionEvent) []common.ConversionEvent {
	var out []common.ConversionEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestNew_MissingEngine(t *testing.T) {
	engines := fakeEngines()
	_, err := New(Deps{
		Engines:   engines[1:],
		Documents: metadata.NewMemoryStore(),
		Blobs:     object.NewMemoryStore(),
		Verifier:  verify.New(textLoader{}, nil),
	}, Config{})
	assert.ErrorIs(t, err, common.ErrMissingEngine)
}

func TestConvert_DocxToPDF(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "report.docx", format.DOCX, "quarterly numbers went up")

	events := collect(e.o.Convert(context.Background(), src, format.PDF, common.DefaultConversionOptions()))
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, common.EventInitializing, events[0].Type)

	last := events[len(events)-1]
	require.Equal(t, common.EventCompleted, last.Type)
	assert.Equal(t, common.EventVerifying, events[len(events)-2].Type)

	var progress []float64
	for _, ev := range events {
		if ev.Type == common.EventProcessing {
			progress = append(progress, ev.Progress)
		}
	}
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])

	res := last.Result
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Positive(t, res.Elapsed)
	require.NotNil(t, res.Verification)
	assert.GreaterOrEqual(t, res.Verification.OverallScore, 0.0)
	assert.LessOrEqual(t, res.Verification.OverallScore, 1.0)

	out := res.Output
	require.NotNil(t, out)
	assert.Equal(t, format.PDF, out.Format)
	assert.Equal(t, "pdf", out.Extension())
	assert.Equal(t, "report.pdf", out.Name)
	assert.Equal(t, "Quarterly", out.Metadata.Title)

	data, err := object.ReadAll(context.Background(), e.blobs, out.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), out.Size)

	stored, err := e.docs.Get(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, out.StorageRef, stored.StorageRef)
}

func TestConvert_UnsupportedPath(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "bundle.zip", format.ZIP, "zip bytes")
	require.False(t, format.IsConvertible(format.ZIP, format.DOCX))

	events := collect(e.o.Convert(context.Background(), src, format.DOCX, common.DefaultConversionOptions()))
	require.Len(t, events, 2)
	assert.Equal(t, common.EventInitializing, events[0].Type)
	assert.Equal(t, common.EventFailed, events[1].Type)
	assert.Contains(t, events[1].Reason, "not supported")
}

func TestConvert_EngineGate(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "memo.docx", format.DOCX, "memo")
	require.True(t, format.IsConvertible(format.DOCX, format.RTF))

	events := collect(e.o.Convert(context.Background(), src, format.RTF, common.DefaultConversionOptions()))
	require.Len(t, events, 2)
	assert.Equal(t, common.EventFailed, events[1].Type)
}

func TestConvert_EngineFailureDiscardsOutput(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "broken.docx", format.DOCX, contentFail)

	events := collect(e.o.Convert(context.Background(), src, format.PDF, common.DefaultConversionOptions()))
	last := events[len(events)-1]
	assert.Equal(t, common.EventFailed, last.Type)
	assert.Equal(t, "conversion failed during processing", last.Reason)
	for _, ev := range events {
		assert.NotEqual(t, common.EventCompleted, ev.Type)
	}

	docs, err := e.docs.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestConvert_FaultBecomesFailed(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "boom.docx", format.DOCX, contentPanic)

	events := collect(e.o.Convert(context.Background(), src, format.PDF, common.DefaultConversionOptions()))
	last := events[len(events)-1]
	assert.Equal(t, common.EventFailed, last.Type)
	assert.Contains(t, last.Reason, "engine exploded")
}

func TestConvert_WithoutAutoVerify(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "notes.docx", format.DOCX, "notes")
	opts := common.DefaultConversionOptions()
	opts.AutoVerify = false

	events := collect(e.o.Convert(context.Background(), src, format.ODT, opts))
	for _, ev := range events {
		assert.NotEqual(t, common.EventVerifying, ev.Type)
	}
	last := events[len(events)-1]
	require.Equal(t, common.EventCompleted, last.Type)
	assert.Nil(t, last.Result.Verification)
	assert.Equal(t, "notes.odt", last.Result.Output.Name)
}

func TestConvert_MissingBlob(t *testing.T) {
	e := newEnv(t)
	doc := common.Document{ID: "ghost", Name: "ghost.docx", Format: format.DOCX, StorageRef: "nope/ghost.docx"}

	events := collect(e.o.Convert(context.Background(), doc, format.PDF, common.DefaultConversionOptions()))
	last := events[len(events)-1]
	assert.Equal(t, common.EventFailed, last.Type)
	for _, ev := range events {
		assert.NotEqual(t, common.EventProcessing, ev.Type)
	}
}

func TestConvert_Cancellation(t *testing.T) {
	e := newEnv(t)
	src := e.upload(t, "slow.docx", format.DOCX, contentBlock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.o.Convert(ctx, src, format.PDF, common.DefaultConversionOptions())
	first := <-ch
	assert.Equal(t, common.EventInitializing, first.Type)
	second := <-ch
	assert.Equal(t, common.EventProcessing, second.Type)
	cancel()

	for ev := range ch {
		assert.NotEqual(t, common.EventCompleted, ev.Type)
		if ev.Type == common.EventFailed {
			assert.Equal(t, "conversion cancelled", ev.Reason)
		}
	}
	docs, err := e.docs.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestProgress_Clamps(t *testing.T) {
	var got []float64
	p := newProgress(func(v float64) bool {
		got = append(got, v)
		return true
	})
	for _, v := range []float64{-1, 0.3, 0.2, 0.3, 2, 1} {
		p.report(v)
	}
	assert.Equal(t, []float64{0, 0.3, 1, 1}, got)
}
