// Package checkpoint 按 item 下标持久化已接受的输出记录，支撑可恢复的重复运行
package checkpoint

import (
	"context"

	"datagen-platform/internal/pipeline/common"
)

// Store checkpoint 存储接口；同一 idx 一旦写入即视为终态
type Store interface {
	// Load 读取 idx 对应记录；不存在时返回 (nil, false, nil)
	Load(ctx context.Context, idx int) (common.Record, bool, error)
	// Save 写入 idx 对应记录，重复写入覆盖
	Save(ctx context.Context, idx int, record common.Record) error
	// Close 关闭存储连接
	Close() error
}
