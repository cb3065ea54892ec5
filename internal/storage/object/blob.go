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
	"path"
	"strings"

	"github.com/google/uuid"
)

// NewRef 为文件名生成新的存储引用：<uuid>/<name>
func NewRef(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "blob"
	}
	return uuid.NewString() + "/" + name
}

// PutBytes 以新引用保存字节，返回引用与最终大小
func PutBytes(ctx context.Context, s Store, name string, data []byte, metadata map[string]string) (string, int64, error) {
	ref := NewRef(name)
	if err := s.Put(ctx, ref, bytes.NewReader(data), int64(len(data)), metadata); err != nil {
		return "", 0, err
	}
	return ref, int64(len(data)), nil
}

// ReadAll 读取引用对应的全部字节
func ReadAll(ctx context.Context, s Store, ref string) ([]byte, error) {
	rc, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
