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

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(fs []Format) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}

func TestPathGraph_Document(t *testing.T) {
	got := ids(SupportedTargets(DOCX))
	assert.Equal(t, []string{"pdf", "docx", "doc", "rtf", "odt", "md", "html", "txt"}, got)
	assert.True(t, IsConvertible(DOCX, PDF))
	assert.True(t, IsConvertible(PAGES, DOCX))
}

func TestPathGraph_OutputUnsupportedNeverTarget(t *testing.T) {
	for _, src := range All() {
		for _, tgt := range SupportedTargets(src) {
			assert.True(t, tgt.OutputSupported, "%s -> %s", src.ID, tgt.ID)
		}
		assert.False(t, IsConvertible(src, PAGES))
		assert.False(t, IsConvertible(src, KEY))
	}
}

func TestPathGraph_ArchiveHasNoTargets(t *testing.T) {
	for _, f := range InCategory(CategoryArchive) {
		assert.Empty(t, SupportedTargets(f))
	}
	assert.False(t, IsConvertible(ZIP, DOCX))
	assert.False(t, IsConvertible(ZIP, ZIP))
}

func TestPathGraph_CrossCategorySinks(t *testing.T) {
	cases := []struct {
		src, tgt Format
		want     bool
	}{
		{PPTX, PDF, true},
		{PPTX, TXT, false},
		{EML, HTML, true},
		{MBOX, DOCX, false},
		{PNG, TXT, true},
		{PNG, DOCX, true},
		{PNG, HTML, false},
		{JSON, DOCX, true},
		{JSON, HTML, true},
		{EPUB, HTML, true},
		{XLSX, PDF, true},
		{XLSX, DOCX, false},
		{TXT, RTF, true},
		{TXT, ODT, false},
		{TXT, TXT, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsConvertible(c.src, c.tgt), "%s -> %s", c.src.ID, c.tgt.ID)
	}
}

func TestPathGraph_UnknownFormats(t *testing.T) {
	unknown := Format{ID: "xyz", Category: "NONE", OutputSupported: true}
	assert.False(t, IsConvertible(unknown, PDF))
	assert.False(t, IsConvertible(PDF, unknown))
	assert.Empty(t, SupportedTargets(unknown))
}

func TestNewPathGraph_SubsetCatalog(t *testing.T) {
	g := NewPathGraph([]Format{TXT, PDF})
	assert.Equal(t, []string{"txt", "pdf"}, ids(g.SupportedTargets(TXT)))
	assert.True(t, g.IsConvertible(PDF, TXT))
	assert.False(t, g.IsConvertible(TXT, DOCX))
}
