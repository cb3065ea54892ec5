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

package object

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "docconv/pkg/errors"
)

func storeSuite(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "docs/a.txt", bytes.NewReader([]byte("hello")), 5, map[string]string{"name": "a.txt"}))
	require.NoError(t, s.Put(ctx, "docs/b.txt", strings.NewReader("world!"), 0, nil))
	require.NoError(t, s.Put(ctx, "other/c.txt", strings.NewReader("c"), 1, nil))

	rc, err := s.Get(ctx, "docs/a.txt")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(b))

	meta, err := s.GetMetadata(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", meta["name"])

	ok, err := s.Exists(ctx, "docs/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := s.List(ctx, "docs/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "docs/a.txt", list[0].Path)
	assert.Equal(t, int64(6), list[1].Size)

	require.NoError(t, s.Delete(ctx, "docs/a.txt"))
	_, err = s.Get(ctx, "docs/a.txt")
	assert.True(t, perrors.IsNotFound(err))
	assert.True(t, perrors.IsNotFound(s.Delete(ctx, "docs/a.txt")))

	ok, err = s.Exists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	storeSuite(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	storeSuite(t, s)
}

func TestFileStore_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	// ".." 被折叠到 root 之内
	require.NoError(t, s.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, nil))
	ok, err := s.Exists(ctx, "escape.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Error(t, s.Put(ctx, "x.meta.json", strings.NewReader("x"), 1, nil))
}

func TestPutBytes_ReadAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ref, size, err := PutBytes(ctx, s, "dir/report.pdf", []byte("%PDF"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.True(t, strings.HasSuffix(ref, "/report.pdf"))

	data, err := ReadAll(ctx, s, ref)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = ReadAll(ctx, s, "missing")
	assert.True(t, perrors.IsNotFound(err))
}

func TestNewRef_Sanitizes(t *testing.T) {
	assert.True(t, strings.HasSuffix(NewRef(`C:\tmp\a.docx`), "/a.docx"))
	assert.True(t, strings.HasSuffix(NewRef(""), "/blob"))
}
