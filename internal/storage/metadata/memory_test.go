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

package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
	"docconv/pkg/config"
	perrors "docconv/pkg/errors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func doc(id, name string, f format.Format, minutes int) *common.Document {
	return &common.Document{
		ID:         id,
		Name:       name,
		Format:     f,
		Size:       int64(len(name)),
		StorageRef: "ref/" + id,
		CreatedAt:  base,
		ModifiedAt: base.Add(time.Duration(minutes) * time.Minute),
		Metadata: common.DocumentMetadata{
			Title:    "Title " + id,
			Keywords: []string{"a", "b"},
		},
	}
}

func storeSuite(t *testing.T, s Store) {
	ctx := context.Background()
	for _, d := range []*common.Document{
		doc("d1", "Annual Report.docx", format.DOCX, 1),
		doc("d2", "budget.xlsx", format.XLSX, 3),
		doc("d3", "report_final.pdf", format.PDF, 2),
		doc("d4", "100%_done.txt", format.TXT, 0),
	} {
		_, err := s.Save(ctx, d)
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Annual Report.docx", got.Name)
	assert.Equal(t, format.DOCX, got.Format)
	assert.Equal(t, "Title d1", got.Metadata.Title)
	assert.ElementsMatch(t, []string{"a", "b"}, got.Metadata.Keywords)
	assert.True(t, got.ModifiedAt.Equal(base.Add(time.Minute)))

	_, err = s.Get(ctx, "missing")
	assert.True(t, perrors.IsNotFound(err))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3", "d1", "d4"}, ids(all))

	byFormat, err := s.ListByFormat(ctx, "pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"d3"}, ids(byFormat))

	found, err := s.Search(ctx, "REPORT")
	require.NoError(t, err)
	assert.Equal(t, []string{"d3", "d1"}, ids(found))

	// 通配符按字面匹配
	found, err = s.Search(ctx, "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"d4"}, ids(found))

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3"}, ids(recent))
	recent, err = s.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	// upsert
	upd := doc("d1", "renamed.docx", format.DOCX, 10)
	_, err = s.Save(ctx, upd)
	require.NoError(t, err)
	got, err = s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.docx", got.Name)
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "d1", all[0].ID)

	ok, err := s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func ids(docs []*common.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	storeSuite(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()
	storeSuite(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DOCCONV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCCONV_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn, 2)
	require.NoError(t, err)
	defer s.Close()
	_, _ = s.pool.Exec(context.Background(), `TRUNCATE documents`)
	storeSuite(t, s)
}

func TestSave_AssignsIDAndTimestamps(t *testing.T) {
	s := NewMemoryStore()
	s.now = func() time.Time { return base }
	saved, err := s.Save(context.Background(), &common.Document{Name: "x.txt", Format: format.TXT})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, base, saved.CreatedAt)
	assert.Equal(t, base, saved.ModifiedAt)

	_, err = s.Save(context.Background(), nil)
	assert.ErrorIs(t, err, perrors.ErrInvalidArg)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Save(ctx, doc("d1", "a.txt", format.TXT, 0))
	require.NoError(t, err)
	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	got.Name = "mutated"
	got.Metadata.Keywords[0] = "z"

	again, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", again.Name)
	assert.Equal(t, "a", again.Metadata.Keywords[0])
}

func TestNewStore_Types(t *testing.T) {
	ctx := context.Background()
	for _, typ := range []string{"", "memory"} {
		s, err := NewStore(ctx, configFor(typ, ""))
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	}
	s, err := NewStore(ctx, configFor("sqlite", ""))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, configFor("postgres", ""))
	assert.Error(t, err)
	_, err = NewStore(ctx, configFor("mongo", ""))
	assert.EqualError(t, err, fmt.Sprintf("不支持的元数据存储类型: %s", "mongo"))
}

func configFor(typ, dsn string) config.MetadataConfig {
	return config.MetadataConfig{Type: typ, DSN: dsn}
}
