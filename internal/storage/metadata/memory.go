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
	"sync"
	"time"

	"docconv/internal/pipeline/common"
	perrors "docconv/pkg/errors"
)

// MemoryStore 内存文档记录存储
type MemoryStore struct {
	docs map[string]*common.Document
	mu   sync.RWMutex
	now  func() time.Time
}

// NewMemoryStore 创建内存文档记录存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*common.Document),
		now:  time.Now,
	}
}

// Save 实现 Store
func (s *MemoryStore) Save(ctx context.Context, doc *common.Document) (*common.Document, error) {
	if doc == nil {
		return nil, perrors.Wrap(perrors.ErrInvalidArg, "nil document")
	}
	stored := prepare(doc, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[stored.ID] = stored
	return clone(stored), nil
}

// Get 实现 Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "document %s", id)
	}
	return clone(doc), nil
}

// Delete 实现 Store
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

// List 实现 Store
func (s *MemoryStore) List(ctx context.Context) ([]*common.Document, error) {
	return s.filter(func(*common.Document) bool { return true }), nil
}

// ListByFormat 实现 Store
func (s *MemoryStore) ListByFormat(ctx context.Context, formatID string) ([]*common.Document, error) {
	return s.filter(func(d *common.Document) bool { return d.Format.ID == formatID }), nil
}

// Search 实现 Store
func (s *MemoryStore) Search(ctx context.Context, text string) ([]*common.Document, error) {
	return s.filter(func(d *common.Document) bool { return matchName(d.Name, text) }), nil
}

// ListRecent 实现 Store
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*common.Document, error) {
	docs := s.filter(func(*common.Document) bool { return true })
	if n := recentLimit(limit); len(docs) > n {
		docs = docs[:n]
	}
	return docs, nil
}

// Close 实现 Store
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) filter(keep func(*common.Document) bool) []*common.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*common.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if keep(d) {
			out = append(out, clone(d))
		}
	}
	sortRecent(out)
	return out
}

func clone(d *common.Document) *common.Document {
	out := *d
	out.Metadata = d.Metadata.Clone()
	return &out
}
