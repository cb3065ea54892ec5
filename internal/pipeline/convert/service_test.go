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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
)

func TestVerifyConversion_Stream(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.upload(t, "a.md", format.MD, "alpha beta")
	conv := e.upload(t, "a.html", format.HTML, "alpha beta")

	var events []common.VerificationEvent
	for ev := range e.o.VerifyConversion(ctx, src, conv, common.DefaultVerificationOptions()) {
		events = append(events, ev)
	}
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, common.EventInitializing, events[0].Type)
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, common.EventComparing, ev.Type)
	}
	last := events[len(events)-1]
	require.Equal(t, common.EventCompleted, last.Type)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.Success)

	ok, err := e.cache.Exists(ctx, verifyKey(src, conv, common.DefaultVerificationOptions()))
	require.NoError(t, err)
	assert.True(t, ok)

	// 命中缓存时直接完成
	events = nil
	for ev := range e.o.VerifyConversion(ctx, src, conv, common.DefaultVerificationOptions()) {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, common.EventCompleted, events[1].Type)
}

func TestVerifyConversion_SourceMissing(t *testing.T) {
	e := newEnv(t)
	conv := e.upload(t, "a.html", format.HTML, "alpha")
	src := common.Document{ID: "gone", Format: format.MD, StorageRef: "missing/a.md"}

	var last common.VerificationEvent
	for ev := range e.o.VerifyConversion(context.Background(), src, conv, common.DefaultVerificationOptions()) {
		last = ev
	}
	assert.Equal(t, common.EventFailed, last.Type)
	assert.NotEmpty(t, last.Reason)

	_, err := e.o.Verify(context.Background(), src, conv, common.DefaultVerificationOptions())
	assert.Error(t, err)
}

func TestExtractContent_FiltersAndCaches(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doc := e.upload(t, "page.md", format.MD, "first\n\nsecond")

	full, err := e.o.ExtractContent(ctx, doc, common.DefaultExtractionOptions())
	require.NoError(t, err)
	assert.Contains(t, full.Text, "second")
	assert.Len(t, full.Links, 1)

	opts := common.DefaultExtractionOptions()
	opts.ExtractHyperlinks = false
	trimmed, err := e.o.ExtractContent(ctx, doc, opts)
	require.NoError(t, err)
	assert.Empty(t, trimmed.Links)

	ok, err := e.cache.Exists(ctx, contentKey(doc, opts))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.o.ExtractContent(ctx, common.Document{ID: "x"}, opts)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestExtractMetadata_SavesCopy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doc := e.upload(t, "memo.docx", format.DOCX, "memo")

	updated, err := e.o.ExtractMetadata(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, updated.ID)
	assert.Equal(t, "Extracted", updated.Metadata.Title)
	assert.Equal(t, "Quarterly", doc.Metadata.Title)

	stored, err := e.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Extracted", stored.Metadata.Title)
	assert.Equal(t, 1, stored.Metadata.PageCount)
}

func TestCacheKeys(t *testing.T) {
	assert.Empty(t, contentKey(common.Document{}, common.DefaultExtractionOptions()))
	assert.Empty(t, verifyKey(common.Document{ID: "a"}, common.Document{}, common.DefaultVerificationOptions()))

	a := common.DefaultExtractionOptions()
	b := a
	b.ExtractImages = false
	doc := common.Document{ID: "d"}
	assert.NotEqual(t, contentKey(doc, a), contentKey(doc, b))
	assert.Equal(t, "10110", flags(true, false, true, true, false))
}
