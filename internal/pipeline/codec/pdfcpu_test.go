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
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/pipeline/common"
)

// 未配置 unipdf 许可时 PDF 读写走 pdfcpu
func TestPDF_RoundTripWithoutLicense(t *testing.T) {
	require.NoError(t, SetPDFLicense(""))
	require.False(t, PDFLicensed())

	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	data, err := s.Encode(ctx, "pdf", sampleDoc(), &opts)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	got, err := s.Decode(ctx, "pdf", data, &opts)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metadata.PageCount)
	assert.Equal(t, 1, got.Content.Structure.Pages)
	assert.Equal(t, "Quarterly Report", got.Metadata.Title)
	assert.Equal(t, "Finance", got.Metadata.Author)
	assert.Equal(t, "Q3", got.Metadata.Subject)
	assert.False(t, got.Metadata.Encrypted)
	assert.Contains(t, got.Content.Text, "Revenue grew in every region. See the dashboard for details.")
	assert.Contains(t, got.Content.Text, "Prepared by the finance team.")
	assert.Contains(t, got.Content.Text, "North 120")
	assert.Contains(t, got.Content.Text, "Page 1 of 1")
	assert.Contains(t, headingTexts(got.Content), "Figures")
}

func TestPDF_PaginatesLongDocuments(t *testing.T) {
	b := newBuilder()
	for i := 1; i <= 80; i++ {
		b.paragraph(fmt.Sprintf("Paragraph number %d of the long report body.", i))
	}
	doc := &Parsed{Content: b.build()}

	s := NewSet()
	ctx := context.Background()
	opts := common.DefaultConversionOptions()
	opts.PreserveMetadata = false
	data, err := s.Encode(ctx, "pdf", doc, &opts)
	require.NoError(t, err)

	got, err := s.Decode(ctx, "pdf", data, &opts)
	require.NoError(t, err)
	assert.Greater(t, got.Metadata.PageCount, 1)
	assert.Contains(t, got.Content.Text, "Paragraph number 1 of the long report body.")
	assert.Contains(t, got.Content.Text, "Paragraph number 80 of the long report body.")
	assert.Empty(t, got.Metadata.Title)
}

func TestPDF_PercentSignsSurvive(t *testing.T) {
	b := newBuilder()
	b.paragraph("Margin rose 12% while costs fell 3%")
	s := NewSet()
	ctx := context.Background()
	data, err := s.Encode(ctx, "pdf", &Parsed{Content: b.build()}, nil)
	require.NoError(t, err)
	got, err := s.Decode(ctx, "pdf", data, nil)
	require.NoError(t, err)
	assert.Contains(t, got.Content.Text, "Margin rose 12% while costs fell 3%")
}

func TestPDF_EncryptedNeedsPassword(t *testing.T) {
	s := NewSet()
	ctx := context.Background()
	plain, err := s.Encode(ctx, "pdf", sampleDoc(), nil)
	require.NoError(t, err)

	var enc bytes.Buffer
	require.NoError(t, api.Encrypt(bytes.NewReader(plain), &enc, pdfmodel.NewAESConfiguration("secret", "owner", 256)))

	_, err = s.Decode(ctx, "pdf", enc.Bytes(), nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)

	opts := common.DefaultConversionOptions()
	opts.Password = "wrong"
	_, err = s.Decode(ctx, "pdf", enc.Bytes(), &opts)
	assert.ErrorIs(t, err, errPDFWrongPassword)
	assert.NotErrorIs(t, err, ErrPasswordRequired)
	assert.EqualError(t, err, "decrypt pdf: wrong password")

	opts.Password = "secret"
	got, err := s.Decode(ctx, "pdf", enc.Bytes(), &opts)
	require.NoError(t, err)
	assert.True(t, got.Metadata.Encrypted)
	assert.True(t, got.Metadata.PasswordProtected)
	assert.Contains(t, got.Content.Text, "Prepared by the finance team.")
}

func TestPDF_Malformed(t *testing.T) {
	_, err := NewSet().Decode(context.Background(), "pdf", []byte("%PDF-1.7\nnot really"), nil)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "read pdf")
}

func TestContentStreamText(t *testing.T) {
	stream := []byte("q 1 0 0 1 0 0 cm\n" +
		"BT /F1 12 Tf 72 700 Td (Hello) Tj ET\n" +
		"BT 72 686 Td [(Wor) -20 (ld)] TJ ET\n" +
		"BI /W 1 /H 1 /BPC 8 /CS /G ID \x00\xff EI\n" +
		"BT 72 646 Td (Next \\(para\\) \\101) Tj 0 -14 Td <48656C6C6F> Tj ET\n" +
		"BT 72 600 Td [(two) -400 (words)] TJ 40 0 Td (tail) Tj ET Q")
	assert.Equal(t, "Hello\nWorld\n\nNext (para) A\nHello\n\ntwo words tail", contentStreamText(stream))
}

func TestContentStreamText_WindowsAnsi(t *testing.T) {
	stream := []byte("BT /F1 10 Tf 10 10 Td (caf\\351) Tj ET")
	assert.Equal(t, "café", contentStreamText(stream))
}

func TestWrapPDFText(t *testing.T) {
	lines := wrapPDFText("alpha beta gamma delta", pdfFontRegular, 11, 70)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.NotEmpty(t, l)
	}
	assert.Equal(t, []string{"word"}, wrapPDFText("  word  ", pdfFontRegular, 11, 500))
	assert.Empty(t, wrapPDFText("   ", pdfFontRegular, 11, 500))
}
