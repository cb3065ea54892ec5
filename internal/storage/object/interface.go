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
	"context"
	"io"
)

// Store 文档字节存储接口，path 即文档的 StorageRef
type Store interface {
	// Put 写入对象，已存在则覆盖
	Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error
	// Get 读取对象，不存在时返回包装的 errors.ErrNotFound
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete 删除对象
	Delete(ctx context.Context, path string) error
	// List 按前缀列出对象
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	// Exists 对象是否存在
	Exists(ctx context.Context, path string) (bool, error)
	// GetMetadata 对象元数据
	GetMetadata(ctx context.Context, path string) (map[string]string, error)
	// Close 释放资源
	Close() error
}

// ObjectInfo 对象信息
type ObjectInfo struct {
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt int64             `json:"created_at"`
}
