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
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"docconv/internal/pipeline/common"
)

// DefaultRecentLimit ListRecent 在 limit <= 0 时的默认条数
const DefaultRecentLimit = 10

// Store 文档记录存储，以文档 id 为键；列表按修改时间倒序
type Store interface {
	// Save 保存文档（upsert），返回保存后的文档
	Save(ctx context.Context, doc *common.Document) (*common.Document, error)
	// Get 根据 id 获取文档，不存在时返回包装的 errors.ErrNotFound
	Get(ctx context.Context, id string) (*common.Document, error)
	// Delete 删除文档，返回是否确有记录被删除
	Delete(ctx context.Context, id string) (bool, error)
	// List 全部文档
	List(ctx context.Context) ([]*common.Document, error)
	// ListByFormat 指定格式 id 的文档
	ListByFormat(ctx context.Context, formatID string) ([]*common.Document, error)
	// Search 文档名大小写不敏感的子串匹配
	Search(ctx context.Context, text string) ([]*common.Document, error)
	// ListRecent 最近修改的 limit 个文档
	ListRecent(ctx context.Context, limit int) ([]*common.Document, error)
	// Close 关闭存储连接
	Close() error
}

// prepare 补全 id 与时间戳，返回待保存的副本
func prepare(doc *common.Document, now time.Time) *common.Document {
	out := *doc
	out.Metadata = doc.Metadata.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	if out.ModifiedAt.IsZero() {
		out.ModifiedAt = out.CreatedAt
	}
	return &out
}

// sortRecent 修改时间倒序，相同时按 id
func sortRecent(docs []*common.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].ModifiedAt, docs[j].ModifiedAt
		if a.Equal(b) {
			return docs[i].ID < docs[j].ID
		}
		return a.After(b)
	})
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

func matchName(name, text string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(text))
}
