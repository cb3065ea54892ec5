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

package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/format"
	"docconv/internal/pipeline/codec"
	"docconv/internal/pipeline/common"
	"docconv/internal/pipeline/ocr"
	"docconv/pkg/log"
)

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func testDeps() Deps {
	return Deps{Codecs: codec.NewSet(), Logger: log.Discard().Logger}
}

func TestCodecEngine_ConvertTextToHTML(t *testing.T) {
	e := NewPlainTextEngine(testDeps())
	in := writeInput(t, "notes.txt", []byte("First paragraph.\n\nSecond paragraph."))
	out := filepath.Join(t.TempDir(), "notes.html")

	var progress []float64
	ok := e.Convert(context.Background(), in, out, format.TXT, format.HTML, common.DefaultConversionOptions(), func(p float64) {
		progress = append(progress, p)
	})
	require.True(t, ok)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Second paragraph.")

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.LessOrEqual(t, progress[len(progress)-1], 1.0)
}

func TestCodecEngine_SameFormatCopies(t *testing.T) {
	e := NewMarkupEngine(testDeps())
	src := []byte("# Title\n\nBody text.\n")
	in := writeInput(t, "a.md", src)
	out := filepath.Join(t.TempDir(), "b.md")

	require.True(t, e.Convert(context.Background(), in, out, format.MD, format.MD, common.DefaultConversionOptions(), nil))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, src, data)
}

func TestCodecEngine_SupportsConversion(t *testing.T) {
	d := testDeps()
	doc := NewDocumentEngine(d)
	assert.True(t, doc.SupportsConversion(format.DOCX, format.PDF))
	assert.True(t, doc.SupportsConversion(format.RTF, format.MD))
	assert.False(t, doc.SupportsConversion(format.DOC, format.PDF), "legacy binary has no decoder")
	assert.False(t, doc.SupportsConversion(format.PPTX, format.PDF), "other category")

	pres := NewPresentationEngine(d)
	assert.True(t, pres.SupportsConversion(format.PPTX, format.PDF))
	assert.False(t, pres.SupportsConversion(format.PPTX, format.ODP))

	arc := NewArchiveEngine(d)
	assert.False(t, arc.SupportsConversion(format.ZIP, format.ZIP))
	assert.False(t, arc.SupportsConversion(format.ZIP, format.DOCX))

	img := NewImageEngine(d)
	assert.True(t, img.SupportsConversion(format.PNG, format.JPG))
	assert.False(t, img.SupportsConversion(format.PNG, format.TXT), "ocr disabled")
}

func TestCodecEngine_UnsupportedReturnsFalse(t *testing.T) {
	e := NewPresentationEngine(testDeps())
	in := writeInput(t, "deck.pptx", []byte("not a zip"))
	out := filepath.Join(t.TempDir(), "deck.docx")
	assert.False(t, e.Convert(context.Background(), in, out, format.PPTX, format.DOCX, common.DefaultConversionOptions(), nil))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestCodecEngine_MalformedInputDiscardsOutput(t *testing.T) {
	e := NewMarkupEngine(testDeps())
	in := writeInput(t, "broken.json", []byte("{not json"))
	out := filepath.Join(t.TempDir(), "broken.html")
	assert.False(t, e.Convert(context.Background(), in, out, format.JSON, format.HTML, common.DefaultConversionOptions(), nil))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestCodecEngine_PanicIsContained(t *testing.T) {
	set := codec.NewSet()
	set.AddDecoder("txt", codec.DecoderFunc(func(context.Context, []byte, *common.ConversionOptions) (*codec.Parsed, error) {
		panic("decoder exploded")
	}))
	e := NewPlainTextEngine(Deps{Codecs: set, Logger: log.Discard().Logger})
	in := writeInput(t, "a.txt", []byte("hello"))
	out := filepath.Join(t.TempDir(), "a.html")

	assert.NotPanics(t, func() {
		assert.False(t, e.Convert(context.Background(), in, out, format.TXT, format.HTML, common.DefaultConversionOptions(), nil))
	})

	_, err := e.ExtractContent(context.Background(), in, format.TXT, common.DefaultExtractionOptions())
	assert.Error(t, err)
}

func TestCodecEngine_CancelledContext(t *testing.T) {
	e := NewPlainTextEngine(testDeps())
	in := writeInput(t, "a.txt", []byte("hello"))
	out := filepath.Join(t.TempDir(), "a.html")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, e.Convert(ctx, in, out, format.TXT, format.HTML, common.DefaultConversionOptions(), nil))
}

func TestCodecEngine_ExtractContentFilters(t *testing.T) {
	e := NewMarkupEngine(testDeps())
	in := writeInput(t, "page.md", []byte("# Intro\n\nSee [docs](https://example.com/docs).\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"))

	full, err := e.ExtractContent(context.Background(), in, format.MD, common.DefaultExtractionOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, full.Links)
	assert.NotEmpty(t, full.Tables)

	opts := common.DefaultExtractionOptions()
	opts.ExtractHyperlinks = false
	opts.ExtractTables = false
	trimmed, err := e.ExtractContent(context.Background(), in, format.MD, opts)
	require.NoError(t, err)
	assert.Empty(t, trimmed.Links)
	assert.Empty(t, trimmed.Tables)
	assert.Contains(t, trimmed.Text, "Intro")
}

func TestCodecEngine_ExtractMetadata(t *testing.T) {
	e := NewMarkupEngine(testDeps())
	in := writeInput(t, "notes.md", []byte("---\ntitle: Notes\nauthor: Ann\n---\n# Intro\n\nbody\n"))
	meta, err := e.ExtractMetadata(context.Background(), in, format.MD)
	require.NoError(t, err)
	assert.Equal(t, "Notes", meta.Title)
	assert.Equal(t, "Ann", meta.Author)

	_, err = e.ExtractMetadata(context.Background(), in, format.DOCX)
	assert.True(t, errors.Is(err, common.ErrUnsupportedPath))
}

type ocrRunner struct{}

func (ocrRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if args[len(args)-1] == "tsv" {
		return []byte("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
			"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tInvoice\n"), nil, nil
	}
	return []byte("Invoice 42\n\nTotal due\n"), nil, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.Black)
	}
	data, err := codec.PNG(img)
	require.NoError(t, err)
	return data
}

func TestImageEngine_OCRRoute(t *testing.T) {
	d := testDeps()
	d.OCR = ocr.NewRecognizer(ocr.Config{Enable: true, TempDir: t.TempDir()}, ocrRunner{})
	e := NewImageEngine(d)
	require.True(t, e.SupportsConversion(format.PNG, format.TXT))
	require.True(t, e.SupportsConversion(format.PNG, format.DOCX))

	in := writeInput(t, "scan.png", pngBytes(t))
	out := filepath.Join(t.TempDir(), "scan.txt")
	require.True(t, e.Convert(context.Background(), in, out, format.PNG, format.TXT, common.DefaultConversionOptions(), nil))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Invoice 42"))
	assert.Contains(t, string(data), "Total due")

	content, err := e.ExtractContent(context.Background(), in, format.PNG, common.DefaultExtractionOptions())
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Invoice 42")
	assert.Len(t, content.Images, 1)
}

func TestRegistry_Consistency(t *testing.T) {
	d := testDeps()
	r, err := NewDefaultRegistry(d)
	require.NoError(t, err)
	for _, c := range format.Categories() {
		e, ok := r.For(c)
		require.True(t, ok, c)
		assert.Equal(t, c, e.Category())
	}
	assert.True(t, r.Supports(format.DOCX, format.PDF))
	assert.False(t, r.Supports(format.ZIP, format.DOCX))

	engines := DefaultEngines(d)
	_, err = NewRegistry(engines[:len(engines)-1]...)
	assert.True(t, errors.Is(err, common.ErrMissingEngine))

	_, err = NewRegistry(append(engines, NewDocumentEngine(d))...)
	assert.True(t, errors.Is(err, common.ErrDuplicateEngine))
}
