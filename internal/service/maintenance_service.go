package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/y-cruce/postflow/internal/config"
)

const maintenanceJobTimeout = 10 * time.Minute

// MaintenanceService 夜间定时任务：按保留期清理终态帖子，巡检账号令牌并暂停
// 失效账号。表达式来自配置。
type MaintenanceService struct {
	posts    PostRepository
	accounts *AccountService
	clock    Clock

	clearOldSpec   string
	tokenCheckSpec string
	retention      time.Duration
	cron           *cron.Cron
}

func NewMaintenanceService(posts PostRepository, accounts *AccountService, clock Clock, cfg *config.Config) *MaintenanceService {
	return &MaintenanceService{
		posts:          posts,
		accounts:       accounts,
		clock:          clock,
		clearOldSpec:   cfg.Maintenance.ClearOldCron,
		tokenCheckSpec: cfg.Maintenance.TokenCheckCron,
		retention:      time.Duration(cfg.Maintenance.RetentionDays) * 24 * time.Hour,
		cron:           cron.New(),
	}
}

// Start 注册并启动定时任务；坏表达式直接返回错误，由启动方决定退出。
func (s *MaintenanceService) Start() error {
	if _, err := s.cron.AddFunc(s.clearOldSpec, s.runClearOld); err != nil {
		return fmt.Errorf("clear_old cron %q: %w", s.clearOldSpec, err)
	}
	if _, err := s.cron.AddFunc(s.tokenCheckSpec, s.runTokenCheck); err != nil {
		return fmt.Errorf("token_check cron %q: %w", s.tokenCheckSpec, err)
	}
	s.cron.Start()
	log.Printf("[Maintenance] started: clear_old=%q token_check=%q retention_days=%d",
		s.clearOldSpec, s.tokenCheckSpec, int(s.retention.Hours()/24))
	return nil
}

// Stop 停止调度并等正在跑的任务收尾。
func (s *MaintenanceService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *MaintenanceService) runClearOld() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	cutoff := s.clock.Now().Add(-s.retention)
	deleted, err := s.posts.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Maintenance] clear old failed: cutoff=%s err=%v", cutoff.Format(time.RFC3339), err)
		return
	}
	log.Printf("[Maintenance] old terminal posts cleared: cutoff=%s deleted=%d", cutoff.Format(time.RFC3339), deleted)
}

func (s *MaintenanceService) runTokenCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	checked, paused, err := s.accounts.CheckTokens(ctx)
	if err != nil {
		log.Printf("[Maintenance] token check failed: err=%v", err)
		return
	}
	log.Printf("[Maintenance] token check done: checked=%d paused=%d", checked, paused)
}
