package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"
)

// CarrierSyncService 承运商轮询同步服务。拉取跟踪数据并经账本与状态机回放，
// 同步失败只标记 needs_review，不影响已入账数据。
type CarrierSyncService struct {
	shipmentRepo repository.ShipmentRepository
	shipmentSvc  *ShipmentService
	eventSvc     *ShipmentEventService
	provider     carrier.Provider
	queueClient  *queue.Client
	cfg          *config.SyncConfig
}

// NewCarrierSyncService 创建承运商同步服务
func NewCarrierSyncService(
	shipmentRepo repository.ShipmentRepository,
	shipmentSvc *ShipmentService,
	eventSvc *ShipmentEventService,
	provider carrier.Provider,
	queueClient *queue.Client,
	cfg *config.SyncConfig,
) *CarrierSyncService {
	return &CarrierSyncService{
		shipmentRepo: shipmentRepo,
		shipmentSvc:  shipmentSvc,
		eventSvc:     eventSvc,
		provider:     provider,
		queueClient:  queueClient,
		cfg:          cfg,
	}
}

// Enabled 同步是否可用（配置开启且已选定 provider）
func (s *CarrierSyncService) Enabled() bool {
	return s.cfg != nil && s.cfg.Enabled && s.provider != nil
}

// SyncShipment 同步单个运单的承运商跟踪数据
func (s *CarrierSyncService) SyncShipment(ctx context.Context, shipmentID uint) (*TrackingUpdateApplyResult, error) {
	if !s.Enabled() {
		return nil, ErrCarrierSyncDisabled
	}
	shipment, err := s.shipmentSvc.GetShipment(shipmentID)
	if err != nil {
		return nil, err
	}
	if !shipment.HasTrackingNumber() {
		return nil, ErrTrackingNotAssigned
	}

	updates, err := s.provider.FetchTracking(ctx, shipment.Courier, shipment.TrackingNumber)
	if err != nil {
		s.recordSyncFailure(shipment, err)
		return nil, fmt.Errorf("%w: %v", ErrCarrierSyncFailed, err)
	}

	result, err := s.shipmentSvc.ApplyTrackingUpdates(shipment.ID, updates, constants.EventSourceAPISync, s.provider.Name())
	if err != nil {
		s.recordSyncFailure(shipment, err)
		return nil, err
	}

	if err := s.shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
		"last_sync_at":     time.Now(),
		"last_sync_status": constants.SyncStatusSuccess,
		"last_sync_error":  "",
	}); err != nil {
		logger.Warnw("carrier_sync_stamp_failed",
			"shipment_id", shipment.ID,
			"error", err,
		)
	}
	return result, nil
}

// ManualSync 管理端手工触发同步
func (s *CarrierSyncService) ManualSync(ctx context.Context, shipmentID uint) (*TrackingUpdateApplyResult, error) {
	return s.SyncShipment(ctx, shipmentID)
}

// IngestWebhook 回放承运商 webhook 推送的跟踪数据。签名校验由调用方完成；
// 未匹配到运单时返回 ErrShipmentNotFound，公开端点据此仍应答 200。
func (s *CarrierSyncService) IngestWebhook(event *carrier.WebhookEvent) (*TrackingUpdateApplyResult, error) {
	if event == nil {
		return nil, ErrShipmentEventInvalid
	}
	courier := normalizeCourier(event.Courier)
	number := normalizeTrackingNumber(event.TrackingNumber)
	if number == "" {
		return nil, ErrShipmentNotFound
	}
	shipment, err := s.shipmentRepo.GetByCarrierTracking(courier, number)
	if err != nil {
		return nil, ErrShipmentFetchFailed
	}
	if shipment == nil {
		return nil, ErrShipmentNotFound
	}
	return s.shipmentSvc.ApplyTrackingUpdates(shipment.ID, event.Updates, constants.EventSourceWebhook, event.Provider)
}

// EnqueueDueShipments 把到期待同步的运单批量投递到队列，返回投递数量
func (s *CarrierSyncService) EnqueueDueShipments() (int, error) {
	if !s.Enabled() {
		return 0, ErrCarrierSyncDisabled
	}
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return 0, ErrCarrierSyncDisabled
	}

	staleAfter := time.Duration(s.cfg.StaleAfterMinutes) * time.Minute
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	staleBefore := time.Now().Add(-staleAfter)
	shipments, err := s.shipmentRepo.ListDueForSync(staleBefore, s.cfg.BatchSize)
	if err != nil {
		return 0, ErrShipmentFetchFailed
	}

	enqueued := 0
	for _, shipment := range shipments {
		if err := s.queueClient.EnqueueCarrierSync(queue.CarrierSyncPayload{ShipmentID: shipment.ID}); err != nil {
			logger.Warnw("carrier_sync_enqueue_failed",
				"shipment_id", shipment.ID,
				"error", err,
			)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// recordSyncFailure 记录同步失败：打失败标记、追加 sync_failed 事件并通知管理员
func (s *CarrierSyncService) recordSyncFailure(shipment *models.Shipment, cause error) {
	now := time.Now()
	if err := s.shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
		"last_sync_at":     now,
		"last_sync_status": constants.SyncStatusFailed,
		"last_sync_error":  cause.Error(),
		"needs_review":     true,
		"updated_at":       now,
	}); err != nil {
		logger.Warnw("carrier_sync_stamp_failed",
			"shipment_id", shipment.ID,
			"error", err,
		)
	}

	if _, _, err := s.eventSvc.AddEvent(AddShipmentEventInput{
		ShipmentID:  shipment.ID,
		EventType:   constants.EventTypeSyncFailed,
		Source:      constants.EventSourceAPISync,
		SourceID:    s.provider.Name(),
		Description: fmt.Sprintf("carrier sync failed: %v", cause),
		EventTime:   now,
	}); err != nil {
		logger.Warnw("carrier_sync_event_failed",
			"shipment_id", shipment.ID,
			"error", err,
		)
	}

	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventSyncFailed,
		BizType: constants.NotificationBizTypeShipment,
		BizID:   shipment.ID,
		Data: map[string]interface{}{
			"tracking_code": shipment.TrackingCode,
			"error":         cause.Error(),
		},
	})
	if err != nil {
		logger.Warnw("carrier_sync_notify_failed",
			"shipment_id", shipment.ID,
			"error", err,
		)
	}
}
