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
	"fmt"
	"strings"
	"time"

	"docconv/internal/format"
)

// Document 文档记录：字节内容通过 StorageRef 由 Blob 存储提供，核心不解释其含义
type Document struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Format       format.Format    `json:"format"`
	Size         int64            `json:"size"`
	StorageRef   string           `json:"storage_ref"`
	LocalPath    string           `json:"local_path,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ModifiedAt   time.Time        `json:"modified_at"`
	ThumbnailRef string           `json:"thumbnail_ref,omitempty"`
	Metadata     DocumentMetadata `json:"metadata"`
}

// DocumentMetadata 文档元数据，提取时整体替换
type DocumentMetadata struct {
	Title             string            `json:"title,omitempty"`
	Author            string            `json:"author,omitempty"`
	Subject           string            `json:"subject,omitempty"`
	Keywords          []string          `json:"keywords,omitempty"`
	Creator           string            `json:"creator,omitempty"`
	Producer          string            `json:"producer,omitempty"`
	CreationDate      *time.Time        `json:"creation_date,omitempty"`
	ModificationDate  *time.Time        `json:"modification_date,omitempty"`
	PageCount         int               `json:"page_count"`
	Encrypted         bool              `json:"encrypted"`
	PasswordProtected bool              `json:"password_protected"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// Clone 深拷贝元数据（Keywords/Properties/日期）
func (m DocumentMetadata) Clone() DocumentMetadata {
	out := m
	if m.Keywords != nil {
		out.Keywords = append([]string(nil), m.Keywords...)
	}
	if m.Properties != nil {
		out.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = v
		}
	}
	if m.CreationDate != nil {
		t := *m.CreationDate
		out.CreationDate = &t
	}
	if m.ModificationDate != nil {
		t := *m.ModificationDate
		out.ModificationDate = &t
	}
	return out
}

// Extension 文档格式扩展名
func (d *Document) Extension() string {
	return d.Format.Extension
}

// FormattedSize 人类可读大小：B / KB / MB（整除 1024）
func (d *Document) FormattedSize() string {
	return FormatSize(d.Size)
}

// FormatSize 字节数格式化
func FormatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%d KB", size/1024)
	default:
		return fmt.Sprintf("%d MB", size/(1024*1024))
	}
}

// OutputName 以目标扩展名替换文件名扩展名；无扩展名时直接追加
func OutputName(name, extension string) string {
	base := name
	if i := strings.LastIndex(name, "."); i > 0 {
		base = name[:i]
	}
	return base + "." + extension
}
