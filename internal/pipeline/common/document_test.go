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

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docconv/internal/format"
)

func TestDocument_FormattedSize(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1 KB"},
		{5 * 1024 * 1024, "5 MB"},
	}
	for _, tc := range cases {
		d := Document{Size: tc.size}
		assert.Equal(t, tc.want, d.FormattedSize())
	}
}

func TestDocument_Extension(t *testing.T) {
	d := Document{Format: format.DOCX}
	assert.Equal(t, "docx", d.Extension())
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "report.pdf", OutputName("report.docx", "pdf"))
	assert.Equal(t, "archive.tar.txt", OutputName("archive.tar.gz", "txt"))
	assert.Equal(t, "README.md", OutputName("README", "md"))
	assert.Equal(t, ".bashrc.txt", OutputName(".bashrc", "txt"))
}

func TestDocumentMetadata_Clone(t *testing.T) {
	m := DocumentMetadata{Keywords: []string{"a"}, Properties: map[string]string{"k": "v"}}
	c := m.Clone()
	c.Keywords[0] = "b"
	c.Properties["k"] = "x"
	assert.Equal(t, "a", m.Keywords[0])
	assert.Equal(t, "v", m.Properties["k"])
}

func TestContentFilter(t *testing.T) {
	c := DocumentContent{
		Text:          "t",
		FormattedText: "<p>t</p>",
		Links:         []DocumentLink{{Text: "x", URL: "http://x"}},
		Tables:        []DocumentTable{NewTable("t1", [][]string{{"a", "b"}, {"c"}})},
	}
	opts := DefaultExtractionOptions()
	opts.ExtractHyperlinks = false
	opts.PreserveFormatting = false
	got := c.Filter(opts)
	assert.Empty(t, got.Links)
	assert.Empty(t, got.FormattedText)
	assert.Equal(t, "t", got.Text)
	assert.Equal(t, 2, got.Tables[0].Columns)
	assert.Equal(t, 2, got.Tables[0].Rows)
}

func TestDefaults(t *testing.T) {
	co := DefaultConversionOptions()
	assert.True(t, co.AutoVerify)
	assert.Equal(t, CompressionMedium, co.Compression)
	assert.Equal(t, ",", co.CustomOption("csv.delimiter", ","))

	vo := DefaultVerificationOptions()
	assert.Equal(t, 0.9, vo.MinimumMatchScore)
	assert.True(t, vo.VerifyContent && vo.VerifyFormatting && vo.VerifyStructure && vo.VerifyMetadata)

	assert.Equal(t, CompressionHigh, ParseCompressionLevel("high"))
	assert.Equal(t, CompressionMedium, ParseCompressionLevel("bogus"))
}
