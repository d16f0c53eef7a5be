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

package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"datagen-platform/internal/pipeline/common"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS pipeline_checkpoints (
	namespace  TEXT        NOT NULL,
	idx        INTEGER     NOT NULL,
	record     JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, idx)
)`

// PostgresStore pipeline_checkpoints 表，(namespace, idx) 唯一
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresStore 创建基于 PostgreSQL 的 checkpoint 存储并确保表存在
func NewPostgresStore(ctx context.Context, dsn, namespace string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create pipeline_checkpoints: %w", err)
	}
	if namespace == "" {
		namespace = "datagen"
	}
	return &PostgresStore{pool: pool, namespace: namespace}, nil
}

// Load 读取 checkpoint
func (s *PostgresStore) Load(ctx context.Context, idx int) (common.Record, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record::text FROM pipeline_checkpoints WHERE namespace = $1 AND idx = $2`,
		s.namespace, idx).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Save upsert checkpoint
func (s *PostgresStore) Save(ctx context.Context, idx int, record common.Record) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_checkpoints (namespace, idx, record, updated_at) VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (namespace, idx) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		s.namespace, idx, string(data))
	return err
}

// Close 关闭连接池
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
