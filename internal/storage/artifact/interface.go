// Package artifact 保存后端原始输出，仅用于审计与排查，管线不会回读
package artifact

import (
	"context"

	"github.com/google/uuid"
)

// Store 原始输出存储接口
type Store interface {
	// Put 以 id 保存文本，返回可定位的存储位置
	Put(ctx context.Context, id string, text string) (string, error)
}

// NewID 生成新的 artifact id
func NewID() string {
	return uuid.NewString()
}
