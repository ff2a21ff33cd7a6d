package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"

	"gorm.io/gorm"
)

// UpdateStatusInput 更新运单状态入参
type UpdateStatusInput struct {
	ShipmentID uint
	NewStatus  string
	Source     string
	SourceID   string
	Notes      string
	Location   string
	EventTime  time.Time
	Override   bool
	Metadata   models.JSON
}

// TrackingUpdateApplyResult 批量回放承运商跟踪数据的结果
type TrackingUpdateApplyResult struct {
	Appended      int    `json:"appended"`       // 新写入的事件数
	Deduped       int    `json:"deduped"`        // 命中去重的事件数
	StatusApplied int    `json:"status_applied"` // 成功推进的状态数
	StatusSkipped int    `json:"status_skipped"` // 被迁移表拒绝而跳过的状态数
	FinalStatus   string `json:"final_status"`   // 回放结束后的运单状态
}

// UpdateStatus 更新运单状态。状态写入与 status_change 事件在同一事务内完成，
// 进入 delivered 时补记实际送达时间。
func (s *ShipmentService) UpdateStatus(input UpdateStatusInput) (*models.Shipment, error) {
	target := normalizeShipmentStatus(input.NewStatus)
	if !isShipmentStatusSupported(target) {
		return nil, ErrShipmentStatusInvalid
	}
	source := strings.ToLower(strings.TrimSpace(input.Source))
	if !isEventSourceSupported(source) {
		return nil, ErrShipmentEventInvalid
	}

	var (
		updated    *models.Shipment
		fromStatus string
	)
	err := s.shipmentRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.shipmentRepo.WithTx(tx)
		shipment, err := repo.GetByIDForUpdate(input.ShipmentID)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		if shipment == nil {
			return ErrShipmentNotFound
		}
		if shipment.Status == target {
			return ErrShipmentStatusSame
		}
		if !s.transitions.CanTransition(shipment.Status, target, source, input.Override) {
			return &StatusTransitionError{From: shipment.Status, To: target, Source: source}
		}
		fromStatus = shipment.Status

		now := time.Now()
		eventTime := normalizeEventTime(input.EventTime)
		updates := map[string]interface{}{
			"status":     target,
			"updated_at": now,
		}
		if target == constants.ShipmentStatusDelivered && shipment.ActualDelivery == nil {
			updates["actual_delivery"] = eventTime
		}
		if err := repo.UpdateFields(shipment.ID, updates); err != nil {
			return ErrShipmentUpdateFailed
		}

		description := strings.TrimSpace(input.Notes)
		if description == "" {
			description = fmt.Sprintf("status changed from %s to %s", fromStatus, target)
		}
		if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeStatusChange,
			Source:      source,
			SourceID:    input.SourceID,
			Status:      target,
			Description: description,
			Location:    input.Location,
			EventTime:   eventTime,
			Metadata:    input.Metadata,
		}); err != nil {
			return err
		}

		shipment.Status = target
		shipment.UpdatedAt = now
		if delivered, ok := updates["actual_delivery"].(time.Time); ok {
			shipment.ActualDelivery = &delivered
		}
		updated = shipment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatusChanged(updated, fromStatus, target, source)
	return updated, nil
}

// ApplyTrackingUpdates 回放承运商跟踪数据：事件按发生时间正序逐条入账（自动去重），
// 携带状态的更新依次推进状态机。被拒绝的回退只记警告并跳过，已入账事件不回滚。
func (s *ShipmentService) ApplyTrackingUpdates(shipmentID uint, updates []carrier.TrackingUpdate, source, sourceID string) (*TrackingUpdateApplyResult, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if !isDedupedEventSource(source) {
		return nil, ErrShipmentEventInvalid
	}
	shipment, err := s.GetShipment(shipmentID)
	if err != nil {
		return nil, err
	}

	sorted := make([]carrier.TrackingUpdate, len(updates))
	copy(sorted, updates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EventTime.Before(sorted[j].EventTime)
	})

	result := &TrackingUpdateApplyResult{FinalStatus: shipment.Status}
	current := shipment.Status
	for _, update := range sorted {
		eventType := strings.ToLower(strings.TrimSpace(update.EventType))
		if eventType == "" {
			eventType = constants.EventTypeLocationUpdate
		}
		_, deduped, err := s.eventSvc.AddEvent(AddShipmentEventInput{
			ShipmentID:  shipmentID,
			EventType:   eventType,
			Source:      source,
			SourceID:    sourceID,
			Status:      update.Status,
			Description: update.Description,
			Location:    update.Location,
			EventTime:   update.EventTime,
			Metadata:    models.JSON(update.Raw),
		})
		if err != nil {
			return result, err
		}
		if deduped {
			result.Deduped++
		} else {
			result.Appended++
		}

		target := normalizeShipmentStatus(update.Status)
		if target == "" || target == current {
			continue
		}
		_, err = s.UpdateStatus(UpdateStatusInput{
			ShipmentID: shipmentID,
			NewStatus:  target,
			Source:     source,
			SourceID:   sourceID,
			Notes:      update.Description,
			Location:   update.Location,
			EventTime:  update.EventTime,
		})
		switch {
		case err == nil:
			current = target
			result.StatusApplied++
		case errors.Is(err, ErrShipmentStatusSame):
			// 并发回放已推进到位
			current = target
		case errors.Is(err, ErrShipmentStatusInvalid):
			logger.Warnw("status_regression_skipped",
				"shipment_id", shipmentID,
				"from_status", current,
				"to_status", target,
				"source", source,
				"source_id", sourceID,
				"event_time", update.EventTime,
			)
			result.StatusSkipped++
		default:
			return result, err
		}
	}
	result.FinalStatus = current
	return result, nil
}

// notifyStatusChanged 事务提交后异步派发状态变更通知，失败只记警告。
func (s *ShipmentService) notifyStatusChanged(shipment *models.Shipment, from, to, source string) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventShipmentStatusChanged,
		BizType: constants.NotificationBizTypeShipment,
		BizID:   shipment.ID,
		Data: map[string]interface{}{
			"tracking_code": shipment.TrackingCode,
			"from_status":   from,
			"to_status":     to,
			"source":        source,
		},
	})
	if err != nil {
		logger.Warnw("shipment_notify_enqueue_failed",
			"shipment_id", shipment.ID,
			"event", constants.NotificationEventShipmentStatusChanged,
			"error", err,
		)
	}
}
