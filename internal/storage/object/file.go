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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	perrors "docconv/pkg/errors"
)

// metaSuffix 元数据旁路文件后缀
const metaSuffix = ".meta.json"

// FileStore 本地目录字节存储；对象路径映射到 root 下的相对路径
type FileStore struct {
	root string
}

// NewFileStore 创建目录存储，root 不存在时自动创建
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, perrors.Wrap(perrors.ErrInvalidArg, "file object store requires root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// resolve 对象路径 -> 磁盘路径，拒绝逃逸出 root 的路径
func (s *FileStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + path))
	if clean == string(filepath.Separator) || strings.HasSuffix(clean, metaSuffix) {
		return "", perrors.Wrapf(perrors.ErrInvalidArg, "object path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Put 写入对象；先写临时文件再重命名
func (s *FileStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write object data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if len(metadata) == 0 {
		_ = os.Remove(p + metaSuffix)
		return nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(p+metaSuffix, b, 0o644)
}

// Get 读取对象
func (s *FileStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "object %s", path)
	}
	return f, err
}

// Delete 删除对象及其元数据
func (s *FileStore) Delete(ctx context.Context, path string) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return perrors.Wrapf(perrors.ErrNotFound, "object %s", path)
		}
		return err
	}
	_ = os.Remove(p + metaSuffix)
	return nil
}

// List 按前缀列出对象
func (s *FileStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var results []*ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		meta, _ := readMeta(p)
		results = append(results, &ObjectInfo{
			Path:      rel,
			Size:      info.Size(),
			Metadata:  meta,
			CreatedAt: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// Exists 对象是否存在
func (s *FileStore) Exists(ctx context.Context, path string) (bool, error) {
	p, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// GetMetadata 对象元数据
func (s *FileStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "object %s", path)
	}
	return readMeta(p)
}

// Close 实现 Store
func (s *FileStore) Close() error {
	return nil
}

func readMeta(p string) (map[string]string, error) {
	b, err := os.ReadFile(p + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
