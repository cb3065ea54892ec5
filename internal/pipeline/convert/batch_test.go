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

func collectBatch(ch <-chan common.BatchProgress) []common.BatchProgress {
	var out []common.BatchProgress
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestBatchConvert_SecondFails(t *testing.T) {
	e := newEnv(t)
	docs := []common.Document{
		e.upload(t, "a.docx", format.DOCX, "first document"),
		e.upload(t, "b.docx", format.DOCX, contentFail),
		e.upload(t, "c.docx", format.DOCX, "third document"),
	}

	snapshots := collectBatch(e.o.BatchConvert(context.Background(), docs, format.PDF, common.DefaultConversionOptions()))
	require.NotEmpty(t, snapshots)

	final := snapshots[len(snapshots)-1]
	assert.True(t, final.Done())
	assert.Equal(t, 3, final.TotalDocuments)
	assert.Equal(t, 3, final.ProcessedDocuments)
	assert.Nil(t, final.CurrentDocument)
	assert.Equal(t, 1.0, final.CurrentDocumentProgress)
	require.Len(t, final.Results, 2)
	require.Len(t, final.Failed, 1)
	assert.Equal(t, docs[1].ID, final.Failed[0].Document.ID)
	assert.Equal(t, "conversion failed during processing", final.Failed[0].Reason)
	assert.Equal(t, docs[0].ID, final.Results[0].Source.ID)
	assert.Equal(t, docs[2].ID, final.Results[1].Source.ID)

	processed := 0
	for _, s := range snapshots {
		assert.GreaterOrEqual(t, s.ProcessedDocuments, processed)
		processed = s.ProcessedDocuments
		assert.LessOrEqual(t, len(s.Results)+len(s.Failed), s.TotalDocuments)
	}
}

func TestBatchConvert_PreStepSnapshots(t *testing.T) {
	e := newEnv(t)
	docs := []common.Document{
		e.upload(t, "a.docx", format.DOCX, "one"),
		e.upload(t, "b.docx", format.DOCX, "two"),
	}
	snapshots := collectBatch(e.o.BatchConvert(context.Background(), docs, format.HTML, common.DefaultConversionOptions()))

	var starts []common.BatchProgress
	for i, s := range snapshots {
		if s.CurrentDocument == nil {
			continue
		}
		if i == 0 || snapshots[i-1].CurrentDocument == nil || snapshots[i-1].CurrentDocument.ID != s.CurrentDocument.ID {
			starts = append(starts, s)
		}
	}
	require.Len(t, starts, 2)
	for i, s := range starts {
		assert.Equal(t, i, s.ProcessedDocuments)
		assert.Equal(t, 0.0, s.CurrentDocumentProgress)
		assert.Equal(t, docs[i].ID, s.CurrentDocument.ID)
	}
}

func TestBatchConvert_FaultIsolated(t *testing.T) {
	e := newEnv(t)
	docs := []common.Document{
		e.upload(t, "boom.docx", format.DOCX, contentPanic),
		e.upload(t, "fine.docx", format.DOCX, "fine"),
		e.upload(t, "bundle.zip", format.ZIP, "zip"),
	}
	snapshots := collectBatch(e.o.BatchConvert(context.Background(), docs, format.PDF, common.DefaultConversionOptions()))
	final := snapshots[len(snapshots)-1]
	assert.Len(t, final.Results, 1)
	require.Len(t, final.Failed, 2)
	assert.Equal(t, docs[0].ID, final.Failed[0].Document.ID)
	assert.Equal(t, docs[2].ID, final.Failed[1].Document.ID)
}

func TestBatchConvert_Empty(t *testing.T) {
	e := newEnv(t)
	snapshots := collectBatch(e.o.BatchConvert(context.Background(), nil, format.PDF, common.DefaultConversionOptions()))
	require.Len(t, snapshots, 1)
	assert.True(t, snapshots[0].Done())
	assert.Equal(t, 0, snapshots[0].TotalDocuments)
}
