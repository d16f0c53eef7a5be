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

package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"datagen-platform/pkg/metrics"
)

// ProgressFunc 返回当前运行进度快照，序列化为 JSON
type ProgressFunc func() interface{}

// Handler 运行期状态接口：健康检查、Prometheus 指标与进度
type Handler struct {
	service  string
	started  time.Time
	progress ProgressFunc
}

// NewHandler 创建 Handler；progress 可为 nil
func NewHandler(service string, progress ProgressFunc) *Handler {
	if service == "" {
		service = "datagen"
	}
	return &Handler{service: service, started: time.Now(), progress: progress}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":         "ok",
		"timestamp":      time.Now().Unix(),
		"service":        h.service,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Metrics 以 Prometheus 文本格式输出 DefaultRegistry
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.String(consts.StatusInternalServerError, err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// Progress 当前运行进度
func (h *Handler) Progress(ctx context.Context, c *app.RequestContext) {
	if h.progress == nil {
		c.JSON(consts.StatusOK, utils.H{})
		return
	}
	c.JSON(consts.StatusOK, h.progress())
}
