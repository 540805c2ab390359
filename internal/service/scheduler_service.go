package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/y-cruce/postflow/internal/config"
)

// SchedulerService 周期领取到期帖子投递到工作池，并用看门狗回收超时租约。
// 领取用 SKIP LOCKED，多实例并存也不会重复派发。
type SchedulerService struct {
	posts     PostRepository
	publisher *PublisherService
	clock     Clock

	tickInterval time.Duration
	grace        time.Duration
	leaseTTL     time.Duration
	batchSize    int

	pool      pond.Pool
	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewSchedulerService(posts PostRepository, publisher *PublisherService, clock Clock, cfg *config.Config) *SchedulerService {
	runCtx, runCancel := context.WithCancel(context.Background())
	return &SchedulerService{
		posts:        posts,
		publisher:    publisher,
		clock:        clock,
		tickInterval: cfg.Scheduler.TickInterval(),
		grace:        cfg.Scheduler.Grace(),
		leaseTTL:     cfg.Scheduler.LeaseTTL(),
		batchSize:    cfg.Scheduler.BatchSize,
		pool:         pond.NewPool(cfg.Scheduler.WorkerCount, pond.WithQueueSize(cfg.Scheduler.QueueSize)),
		runCtx:       runCtx,
		runCancel:    runCancel,
		stopCh:       make(chan struct{}),
	}
}

func (s *SchedulerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLeaseLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWatchdog()
	}()

	log.Printf("[Scheduler] started: tick=%s grace=%s batch=%d lease_ttl=%s",
		s.tickInterval, s.grace, s.batchSize, s.leaseTTL)
}

// Stop 停止领取循环并等在途发布收尾
func (s *SchedulerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.runCancel()
	s.pool.StopAndWait()
	log.Printf("[Scheduler] stopped")
}

func (s *SchedulerService) runLeaseLoop() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.dispatchDue(s.runCtx); err != nil {
				log.Printf("[Scheduler] lease tick failed: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *SchedulerService) runWatchdog() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := s.clock.Now().Add(-s.leaseTTL)
			n, err := s.posts.ReapExpired(s.runCtx, cutoff)
			if err != nil {
				log.Printf("[Scheduler] watchdog sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[Scheduler] watchdog recovered stuck leases: n=%d", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

// dispatchDue 领取一批到期帖子并逐条投递；返回本批数量
func (s *SchedulerService) dispatchDue(ctx context.Context) (int, error) {
	dueBefore := s.clock.Now().Add(s.grace)
	batch, err := s.posts.LeaseDue(ctx, dueBefore, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch.Posts) == 0 {
		return 0, nil
	}

	log.Printf("[Scheduler] leased due posts: n=%d", len(batch.Posts))
	for _, post := range batch.Posts {
		postID := post.ID
		s.pool.Submit(func() {
			s.publisher.PublishLeased(s.runCtx, postID)
		})
	}
	return len(batch.Posts), nil
}

// RunDueNow 手动触发一轮与后台循环完全相同的领取；供 publish_due 接口使用
func (s *SchedulerService) RunDueNow(ctx context.Context) (int, error) {
	return s.dispatchDue(ctx)
}
