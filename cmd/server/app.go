package main

import (
	"database/sql"
	"net/http"

	"github.com/y-cruce/postflow/internal/server/ws"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/redis/go-redis/v9"
)

// App 聚合进程需要启动和关闭的全部组件
type App struct {
	DB          *sql.DB
	Redis       *redis.Client
	HTTPServer  *http.Server
	Scheduler   *service.SchedulerService
	Maintenance *service.MaintenanceService
	Hub         *ws.Hub
}

func newApp(
	db *sql.DB,
	rdb *redis.Client,
	httpServer *http.Server,
	scheduler *service.SchedulerService,
	maintenance *service.MaintenanceService,
	hub *ws.Hub,
) *App {
	return &App{
		DB:          db,
		Redis:       rdb,
		HTTPServer:  httpServer,
		Scheduler:   scheduler,
		Maintenance: maintenance,
		Hub:         hub,
	}
}
