// Package server provides HTTP server initialization and configuration.
package server

import (
	"log"
	"net/http"
	"time"

	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/handler"
	middleware2 "github.com/y-cruce/postflow/internal/server/middleware"
	"github.com/y-cruce/postflow/internal/server/ws"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ProviderSet 提供服务器层的依赖
var ProviderSet = wire.NewSet(
	ws.NewHub,
	wire.Bind(new(service.StatusNotifier), new(*ws.Hub)),
	ProvideRouter,
	ProvideHTTPServer,
)

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers *handler.Handlers, hub *ws.Hub) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware2.Recovery())
	// 服务只经本地反代访问，不信任任何代理头
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("Failed to disable trusted proxies: %v", err)
	}

	return SetupRouter(r, handlers, hub)
}

// ProvideHTTPServer 提供 HTTP 服务器
func ProvideHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	// h2c 让本地反代可以用明文 HTTP/2 回源
	httpHandler := h2c.NewHandler(router, &http2.Server{})

	return &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: httpHandler,
		// ReadHeaderTimeout: 读取请求头的超时时间，防止慢速请求头攻击
		ReadHeaderTimeout: 10 * time.Second,
		// IdleTimeout: 空闲连接超时时间，释放不活跃的连接资源
		IdleTimeout: 120 * time.Second,
		// 注意：不设置 WriteTimeout，websocket 连接会长期保持
	}
}
