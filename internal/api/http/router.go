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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
)

// Register 注册运行期状态路由
func Register(h *server.Hertz, handler *Handler) {
	h.GET("/metrics", handler.Metrics)
	api := h.Group("/api")
	api.GET("/health", handler.HealthCheck)
	api.GET("/progress", handler.Progress)
}

// NewServer 创建监听 addr 的 Hertz 服务并注册路由；opts 可追加链路追踪等选项
func NewServer(addr string, handler *Handler, opts ...config.Option) *server.Hertz {
	all := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.New(all...)
	Register(h, handler)
	return h
}
