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
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docconv/internal/pipeline/common"
	perrors "docconv/pkg/errors"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		format_id     TEXT NOT NULL,
		size          INTEGER NOT NULL DEFAULT 0,
		storage_ref   TEXT NOT NULL DEFAULT '',
		local_path    TEXT NOT NULL DEFAULT '',
		thumbnail_ref TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		modified_at   INTEGER NOT NULL,
		metadata      TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents (modified_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_format ON documents (format_id)`,
}

// SQLiteStore 基于 modernc.org/sqlite 的文档记录存储；时间以 UnixNano 存储
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore 打开（必要时创建）SQLite 数据库，dsn 为文件路径或 ":memory:"
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// 单连接：:memory: 每个连接是独立数据库，文件库也避免写锁竞争
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save 实现 Store
func (s *SQLiteStore) Save(ctx context.Context, doc *common.Document) (*common.Document, error) {
	if doc == nil {
		return nil, perrors.Wrap(perrors.ErrInvalidArg, "nil document")
	}
	stored := prepare(doc, s.now())
	r, err := toRecord(stored)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, format_id = excluded.format_id, size = excluded.size,
			storage_ref = excluded.storage_ref, local_path = excluded.local_path,
			thumbnail_ref = excluded.thumbnail_ref, created_at = excluded.created_at,
			modified_at = excluded.modified_at, metadata = excluded.metadata`,
		r.ID, r.Name, r.FormatID, r.Size, r.StorageRef, r.LocalPath, r.ThumbnailRef,
		r.CreatedAt.UnixNano(), r.ModifiedAt.UnixNano(), string(r.Metadata))
	if err != nil {
		return nil, fmt.Errorf("save document %s: %w", r.ID, err)
	}
	return stored, nil
}

// Get 实现 Store
func (s *SQLiteStore) Get(ctx context.Context, id string) (*common.Document, error) {
	docs, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "document %s", id)
	}
	return docs[0], nil
}

// Delete 实现 Store
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// List 实现 Store
func (s *SQLiteStore) List(ctx context.Context) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY modified_at DESC, id`)
}

// ListByFormat 实现 Store
func (s *SQLiteStore) ListByFormat(ctx context.Context, formatID string) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE format_id = ? ORDER BY modified_at DESC, id`, formatID)
}

// Search 实现 Store
func (s *SQLiteStore) Search(ctx context.Context, text string) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE LOWER(name) LIKE ? ESCAPE '\' ORDER BY modified_at DESC, id`, likePattern(text))
}

// ListRecent 实现 Store
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY modified_at DESC, id LIMIT ?`, recentLimit(limit))
}

// Close 实现 Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*common.Document, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*common.Document
	for rows.Next() {
		var (
			r                 record
			created, modified int64
			meta              string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.FormatID, &r.Size, &r.StorageRef, &r.LocalPath, &r.ThumbnailRef, &created, &modified, &meta); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created)
		r.ModifiedAt = time.Unix(0, modified)
		r.Metadata = []byte(meta)
		d, err := r.document()
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", r.ID, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
