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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docconv/internal/pipeline/common"
	perrors "docconv/pkg/errors"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	format_id     TEXT NOT NULL,
	size          BIGINT NOT NULL DEFAULT 0,
	storage_ref   TEXT NOT NULL DEFAULT '',
	local_path    TEXT NOT NULL DEFAULT '',
	thumbnail_ref TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	modified_at   TIMESTAMPTZ NOT NULL,
	metadata      JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents (modified_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_format ON documents (format_id)`

// PostgresStore Postgres 文档记录存储
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore 连接 Postgres 并确保表结构存在；poolSize > 0 时限制连接数
func NewPostgresStore(ctx context.Context, dsn string, poolSize int) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Save 实现 Store
func (s *PostgresStore) Save(ctx context.Context, doc *common.Document) (*common.Document, error) {
	if doc == nil {
		return nil, perrors.Wrap(perrors.ErrInvalidArg, "nil document")
	}
	stored := prepare(doc, s.now())
	r, err := toRecord(stored)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, format_id = EXCLUDED.format_id, size = EXCLUDED.size,
			storage_ref = EXCLUDED.storage_ref, local_path = EXCLUDED.local_path,
			thumbnail_ref = EXCLUDED.thumbnail_ref, created_at = EXCLUDED.created_at,
			modified_at = EXCLUDED.modified_at, metadata = EXCLUDED.metadata`,
		r.ID, r.Name, r.FormatID, r.Size, r.StorageRef, r.LocalPath, r.ThumbnailRef,
		r.CreatedAt, r.ModifiedAt, string(r.Metadata))
	if err != nil {
		return nil, fmt.Errorf("save document %s: %w", r.ID, err)
	}
	return stored, nil
}

// Get 实现 Store
func (s *PostgresStore) Get(ctx context.Context, id string) (*common.Document, error) {
	docs, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, perrors.Wrapf(perrors.ErrNotFound, "document %s", id)
	}
	return docs[0], nil
}

// Delete 实现 Store
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List 实现 Store
func (s *PostgresStore) List(ctx context.Context) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY modified_at DESC, id`)
}

// ListByFormat 实现 Store
func (s *PostgresStore) ListByFormat(ctx context.Context, formatID string) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE format_id = $1 ORDER BY modified_at DESC, id`, formatID)
}

// Search 实现 Store
func (s *PostgresStore) Search(ctx context.Context, text string) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE LOWER(name) LIKE $1 ESCAPE '\' ORDER BY modified_at DESC, id`, likePattern(text))
}

// ListRecent 实现 Store
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*common.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY modified_at DESC, id LIMIT $1`, recentLimit(limit))
}

// Close 关闭连接池
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*common.Document, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record, error) {
		var r record
		err := row.Scan(&r.ID, &r.Name, &r.FormatID, &r.Size, &r.StorageRef, &r.LocalPath, &r.ThumbnailRef, &r.CreatedAt, &r.ModifiedAt, &r.Metadata)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*common.Document, 0, len(recs))
	for _, r := range recs {
		d, err := r.document()
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", r.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}
