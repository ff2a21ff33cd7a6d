package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultSyncPollInterval = 5 * time.Minute
	cleanupSignupsInterval  = time.Hour
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.CarrierSyncService != nil && s.consumer.CarrierSyncService.Enabled() {
		go s.runCarrierSyncPollLoop(ctx)
	}
	if s.consumer != nil {
		go s.runCleanupSignupsLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runCarrierSyncPollLoop 周期扫描到期运单并入队同步任务
func (s *Service) runCarrierSyncPollLoop(ctx context.Context) {
	interval := defaultSyncPollInterval
	if s.consumer.Config != nil && s.consumer.Config.Sync.PollIntervalSeconds > 0 {
		interval = time.Duration(s.consumer.Config.Sync.PollIntervalSeconds) * time.Second
	}

	runOnce := func() {
		enqueued, err := s.consumer.CarrierSyncService.EnqueueDueShipments()
		if err != nil {
			logger.Warnw("worker_carrier_sync_poll_failed", "error", err)
			return
		}
		if enqueued > 0 {
			logger.Infow("worker_carrier_sync_poll_enqueued", "count", enqueued)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runCleanupSignupsLoop 周期入队过期注册令牌清理任务
func (s *Service) runCleanupSignupsLoop(ctx context.Context) {
	queueClient := s.consumer.QueueClient
	if queueClient == nil || !queueClient.Enabled() {
		return
	}

	runOnce := func() {
		if err := queueClient.EnqueueCleanupSignups(); err != nil {
			logger.Warnw("worker_cleanup_signups_enqueue_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(cleanupSignupsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
