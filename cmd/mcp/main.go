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

// mcp 以 stdio 方式运行 docconv MCP 服务，供 MCP 客户端直接调用转换与校验工具。
// 使用：在客户端配置中以 `docconv-mcp` 为命令启动；配置文件同 cmd/api（DOCCONV_CONFIG 或 configs/api.yaml）。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"docconv/internal/api/mcp"
	"docconv/internal/app"
	"docconv/pkg/config"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	// stdout 为协议通道
	if cfg.Log.File == "" {
		cfg.Log.Output = "stderr"
	}

	bootstrap, err := app.NewBootstrap(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer bootstrap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(bootstrap.DocumentService())
	bootstrap.Logger.Info("MCP 服务启动", "transport", "stdio", "version", mcp.Version)
	if err := srv.Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		bootstrap.Logger.Error("MCP 服务异常退出", "error", err)
		os.Exit(1)
	}
}
