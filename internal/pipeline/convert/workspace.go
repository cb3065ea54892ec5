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
	"fmt"
	"os"
	"path/filepath"

	"docconv/internal/pipeline/common"
	"docconv/internal/storage/object"
)

// workspace 单次调用的工作目录，close 时整体删除
type workspace struct {
	dir string
}

func newWorkspace(root string) (*workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
	}
	dir, err := os.MkdirTemp(root, "docconv-*")
	if err != nil {
		return nil, err
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// materialize 将文档字节写入工作输入文件；无存储引用时直接使用 LocalPath
func (w *workspace) materialize(ctx context.Context, blobs object.Store, doc common.Document) (string, error) {
	if doc.StorageRef == "" {
		if doc.LocalPath == "" {
			return "", common.NewPipelineError(common.StageMaterial, "文档没有可读取的内容",
				fmt.Errorf("%w: %s", common.ErrBlobNotFound, doc.ID))
		}
		if _, err := os.Stat(doc.LocalPath); err != nil {
			return "", common.NewPipelineError(common.StageMaterial, "读取本地文件失败", fmt.Errorf("%w: %v", common.ErrBlobNotFound, err))
		}
		return doc.LocalPath, nil
	}

	data, err := object.ReadAll(ctx, blobs, doc.StorageRef)
	if err != nil {
		return "", common.NewPipelineError(common.StageMaterial, "读取文档内容失败", fmt.Errorf("%w: %v", common.ErrBlobNotFound, err))
	}
	p := w.path("input." + doc.Format.Extension)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", common.NewPipelineError(common.StageMaterial, "写入工作文件失败", err)
	}
	return p, nil
}

func (w *workspace) close() {
	_ = os.RemoveAll(w.dir)
}
