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

package codec

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/pipeline/common"
)

func sampleDoc() *Parsed {
	b := newBuilder()
	b.heading("Quarterly Report", 1)
	b.paragraph("Revenue grew in every region. See the dashboard for details.")
	b.heading("Figures", 2)
	b.table([][]string{{"Region", "Revenue"}, {"North", "120"}, {"South", "95"}})
	b.paragraph("Prepared by the finance team.")
	b.link("dashboard", "https://example.com/dash")
	return &Parsed{
		Content:  b.build(),
		Metadata: common.DocumentMetadata{Title: "Quarterly Report", Author: "Finance", Subject: "Q3"},
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func headingTexts(c common.DocumentContent) []string {
	var out []string
	for _, h := range c.Structure.Headings {
		out = append(out, h.Text)
	}
	return out
}

func TestBlocks_Order(t *testing.T) {
	blocks := Blocks(sampleDoc().Content)
	require.Len(t, blocks, 5)
	assert.Equal(t, BlockHeading, blocks[0].Kind)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, BlockParagraph, blocks[1].Kind)
	assert.Equal(t, BlockHeading, blocks[2].Kind)
	assert.Equal(t, 2, blocks[2].Level)
	assert.Equal(t, BlockTable, blocks[3].Kind)
	require.NotNil(t, blocks[3].Table)
	assert.Equal(t, "North", blocks[3].Table.Cells[1][0])
	assert.Equal(t, BlockParagraph, blocks[4].Kind)
}

func TestBlocks_TableMissingFromText(t *testing.T) {
	c := common.DocumentContent{
		Text:   "only text",
		Tables: []common.DocumentTable{common.NewTable("t1", [][]string{{"a", "b"}})},
	}
	blocks := Blocks(c)
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockTable, blocks[1].Kind)
	assert.Equal(t, "a\tb", blocks[1].Text)
}

func TestBuilder_Structure(t *testing.T) {
	c := sampleDoc().Content
	assert.Equal(t, 1, c.Structure.Sections)
	assert.Equal(t, 2, c.Structure.Paragraphs)
	assert.Len(t, c.Tables, 1)
	assert.Equal(t, 3, c.Tables[0].Rows)
	assert.Equal(t, 2, c.Tables[0].Columns)
	assert.Contains(t, c.Text, "Region\tRevenue\nNorth\t120")
}

func TestPlainText(t *testing.T) {
	text := PlainText(sampleDoc().Content)
	assert.True(t, strings.HasPrefix(text, "Quarterly Report\n\nRevenue grew"))
	assert.True(t, strings.HasSuffix(text, "Prepared by the finance team.\n"))
	assert.Equal(t, "", PlainText(common.DocumentContent{}))
}

func TestSet_Unsupported(t *testing.T) {
	s := NewSet()
	_, err := s.Decode(context.Background(), "nope", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = s.Encode(context.Background(), "nope", sampleDoc(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSet_IDs(t *testing.T) {
	s := NewSet()
	assert.Contains(t, s.DecoderIDs(), "docx")
	assert.Contains(t, s.DecoderIDs(), "zip")
	assert.NotContains(t, s.EncoderIDs(), "zip")
	assert.Contains(t, s.EncoderIDs(), "epub")
}

// 可无损保留结构的格式：标题、段落、表格与链接均应还原
func TestRoundTrip_Structured(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	for _, id := range []string{"docx", "odt", "rtf", "html", "epub", "json", "yaml", "xml"} {
		t.Run(id, func(t *testing.T) {
			opts := common.DefaultConversionOptions()
			data, err := s.Encode(ctx, id, sampleDoc(), &opts)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			got, err := s.Decode(ctx, id, data, &opts)
			require.NoError(t, err)
			assert.Equal(t, []string{"Quarterly Report", "Figures"}, headingTexts(got.Content))
			assert.Contains(t, got.Content.Text, "Revenue grew in every region.")
			assert.Contains(t, got.Content.Text, "Prepared by the finance team.")
			require.Len(t, got.Content.Tables, 1)
			assert.Equal(t, [][]string{{"Region", "Revenue"}, {"North", "120"}, {"South", "95"}}, got.Content.Tables[0].Cells)
			require.NotEmpty(t, got.Content.Links)
			assert.Equal(t, "https://example.com/dash", got.Content.Links[0].URL)
		})
	}
}

func TestRoundTrip_Metadata(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	for _, id := range []string{"docx", "rtf", "json", "epub"} {
		t.Run(id, func(t *testing.T) {
			opts := common.DefaultConversionOptions()
			data, err := s.Encode(ctx, id, sampleDoc(), &opts)
			require.NoError(t, err)
			got, err := s.Decode(ctx, id, data, &opts)
			require.NoError(t, err)
			assert.Equal(t, "Quarterly Report", got.Metadata.Title)
			assert.Equal(t, "Finance", got.Metadata.Author)
		})
	}
}

func TestRoundTrip_NoMetadata(t *testing.T) {
	s := NewSet()
	opts := common.DefaultConversionOptions()
	opts.PreserveMetadata = false
	data, err := s.Encode(context.Background(), "json", sampleDoc(), &opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Finance")
}

func TestRoundTrip_Delimited(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	for _, id := range []string{"csv", "tsv"} {
		t.Run(id, func(t *testing.T) {
			opts := common.DefaultConversionOptions()
			data, err := s.Encode(ctx, id, sampleDoc(), &opts)
			require.NoError(t, err)
			got, err := s.Decode(ctx, id, data, &opts)
			require.NoError(t, err)
			require.Len(t, got.Content.Tables, 1)
			assert.Equal(t, "North", got.Content.Tables[0].Cells[1][0])
		})
	}
}

func TestRoundTrip_XLSX(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	data, err := s.Encode(ctx, "xlsx", sampleDoc(), &opts)
	require.NoError(t, err)
	got, err := s.Decode(ctx, "xlsx", data, &opts)
	require.NoError(t, err)
	require.Len(t, got.Content.Tables, 1)
	assert.Equal(t, [][]string{{"Region", "Revenue"}, {"North", "120"}, {"South", "95"}}, got.Content.Tables[0].Cells)
	assert.Contains(t, headingTexts(got.Content), "Figures")
}

func TestRoundTrip_Markdown(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	data, err := s.Encode(ctx, "md", sampleDoc(), &opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Quarterly Report")
	assert.Contains(t, string(data), "[dashboard](https://example.com/dash)")

	got, err := s.Decode(ctx, "md", data, &opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quarterly Report", "Figures"}, headingTexts(got.Content))
	assert.Contains(t, got.Content.Text, "See the dashboard for details.")
	require.NotEmpty(t, got.Content.Links)
	assert.Equal(t, "https://example.com/dash", got.Content.Links[0].URL)
}

func TestDecodeMarkdown_FrontMatterAndLists(t *testing.T) {
	src := "---\ntitle: Notes\nauthor: Ann\n---\n# Intro\n\n- first **bold** item\n- second_item\n\n```\ncode block\n```\n"
	got, err := decodeMarkdown(context.Background(), []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Metadata.Title)
	assert.Equal(t, "Ann", got.Metadata.Author)
	assert.Equal(t, []string{"Intro"}, headingTexts(got.Content))
	assert.Contains(t, got.Content.Text, "first bold item")
	assert.Contains(t, got.Content.Text, "second_item")
	assert.Contains(t, got.Content.Text, "code block")
}

func TestRoundTrip_LaTeX(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	data, err := s.Encode(ctx, "latex", sampleDoc(), &opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `\section{Quarterly Report}`)

	got, err := s.Decode(ctx, "latex", data, &opts)
	require.NoError(t, err)
	assert.Contains(t, headingTexts(got.Content), "Figures")
	assert.Contains(t, got.Content.Text, "Revenue grew in every region.")
	require.Len(t, got.Content.Tables, 1)
	assert.Equal(t, "South", got.Content.Tables[0].Cells[2][0])
}

func TestRoundTrip_EML(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	data, err := s.Encode(ctx, "eml", sampleDoc(), &opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Subject: Quarterly Report")

	got, err := s.Decode(ctx, "eml", data, &opts)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", got.Metadata.Title)
	assert.Contains(t, got.Content.Text, "Revenue grew in every region.")
}

func TestDecodeRTF_Controls(t *testing.T) {
	src := `{\rtf1\ansi{\fonttbl{\f0 Arial;}}{\info{\title Memo}{\author Bo}}` +
		`\pard\outlinelevel0 Heading One\par` +
		`\pard caf\'e9 and na\u239?ve {\*\unknown hidden}visible\par` +
		`\pard {\field{\*\fldinst HYPERLINK "https://example.org"}{\fldrslt site}}\par}`
	got, err := decodeRTF(context.Background(), []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, "Memo", got.Metadata.Title)
	assert.Equal(t, "Bo", got.Metadata.Author)
	assert.Equal(t, []string{"Heading One"}, headingTexts(got.Content))
	assert.Contains(t, got.Content.Text, "café and naïve visible")
	assert.NotContains(t, got.Content.Text, "hidden")
	assert.NotContains(t, got.Content.Text, "Arial")
	require.Len(t, got.Content.Links, 1)
	assert.Equal(t, "site", got.Content.Links[0].Text)
	assert.Equal(t, "https://example.org", got.Content.Links[0].URL)
}

func TestDecodeRTF_Malformed(t *testing.T) {
	_, err := decodeRTF(context.Background(), []byte("plain text"), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRTFEscape(t *testing.T) {
	assert.Equal(t, `a\{b\}\\`, rtfEscape(`a{b}\`))
	assert.Equal(t, `caf\u233?`, rtfEscape("café"))
	assert.Equal(t, `x\line y`, rtfEscape("x\ny"))
}

func TestImage_DecodeAndEncode(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	data := samplePNG(t)

	got, err := s.Decode(ctx, "png", data, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Bitmap)
	require.Len(t, got.Content.Images, 1)
	assert.Equal(t, 4, got.Content.Images[0].Width)
	assert.Equal(t, 3, got.Content.Images[0].Height)

	for _, id := range []string{"jpg", "gif", "bmp", "tiff"} {
		out, err := s.Encode(ctx, id, got, nil)
		require.NoError(t, err, id)
		back, err := s.Decode(ctx, id, out, nil)
		require.NoError(t, err, id)
		assert.Equal(t, 4, back.Bitmap.Bounds().Dx(), id)
	}
}

func TestImage_EncodeWithoutBitmap(t *testing.T) {
	_, err := NewSet().Encode(context.Background(), "png", sampleDoc(), nil)
	assert.ErrorIs(t, err, ErrNoBitmap)
}

func TestImages_PreservedInDOCX(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	doc := sampleDoc()
	doc.Content.Images = []common.DocumentImage{{ID: "logo", Data: samplePNG(t), MimeType: "image/png", Width: 4, Height: 3}}
	opts := common.DefaultConversionOptions()

	data, err := s.Encode(ctx, "docx", doc, &opts)
	require.NoError(t, err)
	got, err := s.Decode(ctx, "docx", data, &opts)
	require.NoError(t, err)
	require.Len(t, got.Content.Images, 1)
	assert.Equal(t, "image/png", got.Content.Images[0].MimeType)

	opts.PreserveImages = false
	data, err = s.Encode(ctx, "docx", doc, &opts)
	require.NoError(t, err)
	got, err = s.Decode(ctx, "docx", data, &opts)
	require.NoError(t, err)
	assert.Empty(t, got.Content.Images)
}

func TestDecodeZIPListing(t *testing.T) {
	z := newZipBuilder(common.CompressionMedium)
	z.addString("a.txt", "hello")
	z.addString("dir/b.txt", "world!")
	data, err := z.bytes()
	require.NoError(t, err)

	got, err := NewSet().Decode(context.Background(), "zip", data, nil)
	require.NoError(t, err)
	require.Len(t, got.Content.Tables, 1)
	assert.Equal(t, 3, got.Content.Tables[0].Rows)
	assert.Equal(t, "2", got.Metadata.Properties["entries"])
	assert.Equal(t, "11", got.Metadata.Properties["uncompressed_size"])
}

func TestDecodeText_Windows1252(t *testing.T) {
	got, err := NewSet().Decode(context.Background(), "txt", []byte("caf\xe9\n\nsecond"), nil)
	require.NoError(t, err)
	assert.Equal(t, "café\n\nsecond", got.Content.Text)
	assert.Equal(t, 2, got.Content.Structure.Paragraphs)
}

func TestDecodeHTML_Sanitizes(t *testing.T) {
	src := `<html><head><title>T</title></head><body><h1>Top</h1><p>safe<script>alert(1)</script></p></body></html>`
	got, err := NewSet().Decode(context.Background(), "html", []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Metadata.Title)
	assert.NotContains(t, got.Content.Text, "alert")
	assert.NotContains(t, got.Content.FormattedText, "script")
	assert.Contains(t, got.Content.FormattedText, "<h1>Top</h1>")
}

func TestDecode_Malformed(t *testing.T) {
	s := NewSet()
	for _, id := range []string{"docx", "odt", "xlsx", "epub", "json"} {
		_, err := s.Decode(context.Background(), id, []byte("not a container"), nil)
		assert.Error(t, err, id)
	}
}
