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
	"strconv"

	"github.com/redis/go-redis/v9"

	"datagen-platform/internal/pipeline/common"
)

// RedisStore 以 <namespace>:<idx> 为键的 Redis checkpoint 存储
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore 连接 Redis 并 Ping
func NewRedisStore(ctx context.Context, opts *redis.Options, namespace string) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(client, namespace), nil
}

// NewRedisStoreWithClient 复用已有 client
func NewRedisStoreWithClient(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "datagen"
	}
	return &RedisStore{client: client, namespace: namespace}
}

// Key 返回 idx 对应的 Redis 键
func (s *RedisStore) Key(idx int) string {
	return s.namespace + ":" + strconv.Itoa(idx)
}

// Load 读取 checkpoint
func (s *RedisStore) Load(ctx context.Context, idx int) (common.Record, bool, error) {
	data, err := s.client.Get(ctx, s.Key(idx)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", s.Key(idx), err)
	}
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Save 写入 checkpoint，不设置过期时间
func (s *RedisStore) Save(ctx context.Context, idx int, record common.Record) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.Key(idx), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.Key(idx), err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
