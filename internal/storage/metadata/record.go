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
	"encoding/json"
	"strings"
	"time"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
)

// documentColumns SQL 实现共用的列顺序
const documentColumns = "id, name, format_id, size, storage_ref, local_path, thumbnail_ref, created_at, modified_at, metadata"

// record 文档行
type record struct {
	ID           string
	Name         string
	FormatID     string
	Size         int64
	StorageRef   string
	LocalPath    string
	ThumbnailRef string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Metadata     []byte
}

func toRecord(d *common.Document) (record, error) {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return record{}, err
	}
	return record{
		ID:           d.ID,
		Name:         d.Name,
		FormatID:     d.Format.ID,
		Size:         d.Size,
		StorageRef:   d.StorageRef,
		LocalPath:    d.LocalPath,
		ThumbnailRef: d.ThumbnailRef,
		CreatedAt:    d.CreatedAt,
		ModifiedAt:   d.ModifiedAt,
		Metadata:     meta,
	}, nil
}

// document 行 -> 文档；目录中不存在的格式 id 保留为只有 ID 的格式
func (r record) document() (*common.Document, error) {
	f, ok := format.ByID(r.FormatID)
	if !ok {
		f = format.Format{ID: r.FormatID}
	}
	d := &common.Document{
		ID:           r.ID,
		Name:         r.Name,
		Format:       f,
		Size:         r.Size,
		StorageRef:   r.StorageRef,
		LocalPath:    r.LocalPath,
		ThumbnailRef: r.ThumbnailRef,
		CreatedAt:    r.CreatedAt,
		ModifiedAt:   r.ModifiedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &d.Metadata); err != nil {
			return nil, err
		}
	}
	return d, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern 子串匹配的 LIKE 模式，转义通配符
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
}
