package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupShipmentServiceTest(t *testing.T) (*ShipmentService, *TrackingService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:shipment_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Shipment{}, &models.ShipmentEvent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	// 单连接串行化，避免并发写触发 sqlite 表锁
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	shipmentRepo := repository.NewShipmentRepository(db)
	eventSvc := NewShipmentEventService(shipmentRepo, repository.NewShipmentEventRepository(db))
	trackingSvc := NewTrackingService(shipmentRepo, eventSvc, nil)
	shipmentSvc := NewShipmentService(shipmentRepo, eventSvc, trackingSvc, nil)
	return shipmentSvc, trackingSvc, db
}

func TestCreateShipmentAssignsCodeAndLedgerEntry(t *testing.T) {
	svc, _, db := setupShipmentServiceTest(t)

	shipment, err := svc.CreateShipment(CreateShipmentInput{
		CustomerName:  "  Carlos Mendes  ",
		CustomerEmail: "Carlos.Mendes@Example.COM",
		Weight:        decimal.NewFromFloat(12.5),
		DeclaredValue: decimal.NewFromFloat(400),
		CreatedBy:     3,
	})
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	if !strings.HasPrefix(shipment.TrackingCode, constants.TrackingCodePrefix) {
		t.Fatalf("tracking code %q should carry the %s prefix", shipment.TrackingCode, constants.TrackingCodePrefix)
	}
	if shipment.CustomerName != "Carlos Mendes" {
		t.Fatalf("customer name should be trimmed, got %q", shipment.CustomerName)
	}
	if shipment.CustomerEmail != "carlos.mendes@example.com" {
		t.Fatalf("customer email should be lowercased, got %q", shipment.CustomerEmail)
	}
	if shipment.Status != constants.ShipmentStatusPending {
		t.Fatalf("new shipment status want pending got %s", shipment.Status)
	}

	var events []models.ShipmentEvent
	db.Where("shipment_id = ?", shipment.ID).Find(&events)
	if len(events) != 1 {
		t.Fatalf("expected 1 ledger entry after creation, got %d", len(events))
	}
	if events[0].EventType != constants.EventTypeShipmentCreated || events[0].Source != constants.EventSourceManual {
		t.Fatalf("unexpected creation event: %+v", events[0])
	}
}

func TestCreateShipmentRequiresCustomerName(t *testing.T) {
	svc, _, _ := setupShipmentServiceTest(t)

	if _, err := svc.CreateShipment(CreateShipmentInput{CustomerName: "   "}); !errors.Is(err, ErrShipmentInvalid) {
		t.Fatalf("expected ErrShipmentInvalid, got %v", err)
	}
}

func TestCreateShipmentWithTrackingNumberBindsInOneTransaction(t *testing.T) {
	svc, _, db := setupShipmentServiceTest(t)

	shipment, err := svc.CreateShipment(CreateShipmentInput{
		CustomerName:   "Lena Fischer",
		Courier:        "UPS",
		TrackingNumber: "1z999aa10123456784",
		CreatedBy:      1,
	})
	if err != nil {
		t.Fatalf("create with tracking failed: %v", err)
	}
	if shipment.Courier != constants.CourierUPS {
		t.Fatalf("courier should be normalized to lowercase, got %q", shipment.Courier)
	}
	if shipment.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("tracking number should be normalized to uppercase, got %q", shipment.TrackingNumber)
	}
	if shipment.TrackingAssignmentStatus != constants.TrackingAssignmentAssigned {
		t.Fatalf("tracking assignment status want assigned got %s", shipment.TrackingAssignmentStatus)
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).
		Where("shipment_id = ? AND event_type = ?", shipment.ID, constants.EventTypeTrackingAssigned).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 tracking_assigned event, got %d", count)
	}
}

func TestUpdateStatusWritesSingleLedgerEntry(t *testing.T) {
	svc, _, db := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Amara Okafor")

	updated, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusDelivered,
		Source:     constants.EventSourceManual,
		Notes:      "handed to recipient",
	})
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if updated.Status != constants.ShipmentStatusDelivered {
		t.Fatalf("status want delivered got %s", updated.Status)
	}
	if updated.ActualDelivery == nil {
		t.Fatalf("entering delivered should set actual delivery time")
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).
		Where("shipment_id = ? AND event_type = ?", shipment.ID, constants.EventTypeStatusChange).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 status_change entry, got %d", count)
	}
}

func TestUpdateStatusSameStatusRejected(t *testing.T) {
	svc, _, _ := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Amara Okafor")

	_, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusPending,
		Source:     constants.EventSourceManual,
	})
	if !errors.Is(err, ErrShipmentStatusSame) {
		t.Fatalf("expected ErrShipmentStatusSame, got %v", err)
	}
}

func TestUpdateStatusRegressionRejectedWithoutOverride(t *testing.T) {
	svc, _, _ := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Amara Okafor")

	if _, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusOutForDelivery,
		Source:     constants.EventSourceAPISync,
	}); err != nil {
		t.Fatalf("forward move failed: %v", err)
	}

	_, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusInTransit,
		Source:     constants.EventSourceAPISync,
	})
	var transitionErr *StatusTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected StatusTransitionError, got %v", err)
	}
	if transitionErr.From != constants.ShipmentStatusOutForDelivery || transitionErr.To != constants.ShipmentStatusInTransit {
		t.Fatalf("unexpected transition detail: %+v", transitionErr)
	}

	// 人工覆盖放行
	updated, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusInTransit,
		Source:     constants.EventSourceManual,
		Override:   true,
	})
	if err != nil {
		t.Fatalf("manual override regression failed: %v", err)
	}
	if updated.Status != constants.ShipmentStatusInTransit {
		t.Fatalf("status want in_transit got %s", updated.Status)
	}
}

func TestApplyTrackingUpdatesOutOfOrderDelivery(t *testing.T) {
	svc, _, db := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Carlos Mendes")

	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	// 事件乱序到达：送达在前，揽收在后
	updates := []carrier.TrackingUpdate{
		{EventType: constants.EventTypeStatusChange, Status: constants.ShipmentStatusDelivered, Description: "delivered", EventTime: base.Add(48 * time.Hour)},
		{EventType: constants.EventTypeStatusChange, Status: constants.ShipmentStatusInTransit, Description: "picked up", EventTime: base},
		{EventType: constants.EventTypeLocationUpdate, Location: "Memphis, TN", EventTime: base.Add(12 * time.Hour)},
	}

	result, err := svc.ApplyTrackingUpdates(shipment.ID, updates, constants.EventSourceAPISync, "sync-batch-1")
	if err != nil {
		t.Fatalf("apply tracking updates failed: %v", err)
	}
	if result.Appended != 3 {
		t.Fatalf("expected 3 appended events, got %d", result.Appended)
	}
	if result.StatusApplied != 2 {
		t.Fatalf("expected 2 applied status moves, got %d", result.StatusApplied)
	}
	if result.FinalStatus != constants.ShipmentStatusDelivered {
		t.Fatalf("final status want delivered got %s", result.FinalStatus)
	}

	reloaded, err := svc.GetShipment(shipment.ID)
	if err != nil {
		t.Fatalf("reload shipment failed: %v", err)
	}
	if reloaded.Status != constants.ShipmentStatusDelivered {
		t.Fatalf("shipment status want delivered got %s", reloaded.Status)
	}

	// 重放同一批次：全部命中去重，状态不再推进
	replay, err := svc.ApplyTrackingUpdates(shipment.ID, updates, constants.EventSourceAPISync, "sync-batch-1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.Deduped != 3 || replay.Appended != 0 {
		t.Fatalf("replay should dedupe all events, got appended=%d deduped=%d", replay.Appended, replay.Deduped)
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).Where("shipment_id = ?", shipment.ID).Count(&count)
	// 建单事件 + 3 条回放事件；两条回放本身就是 status_change，状态推进的补记
	// 与其去重键完全相同而合并入账
	if count != 4 {
		t.Fatalf("expected 4 ledger entries, got %d", count)
	}
}

func TestApplyTrackingUpdatesLocationScanStillRecordsStatusChange(t *testing.T) {
	svc, _, db := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Helena Novák")

	// 承运商把揽收扫描报成 location_update 但携带 in_transit 状态，
	// 状态推进后账本里必须有对应的 status_change 事件
	updates := []carrier.TrackingUpdate{
		{
			EventType:   constants.EventTypeLocationUpdate,
			Status:      constants.ShipmentStatusInTransit,
			Description: "arrived at facility",
			Location:    "Memphis, TN",
			EventTime:   time.Date(2026, 8, 22, 6, 0, 0, 0, time.UTC),
		},
	}
	result, err := svc.ApplyTrackingUpdates(shipment.ID, updates, constants.EventSourceAPISync, "sync-scan-1")
	if err != nil {
		t.Fatalf("apply tracking updates failed: %v", err)
	}
	if result.StatusApplied != 1 || result.FinalStatus != constants.ShipmentStatusInTransit {
		t.Fatalf("status should advance to in_transit, got applied=%d final=%s", result.StatusApplied, result.FinalStatus)
	}

	var statusChanges int64
	db.Model(&models.ShipmentEvent{}).
		Where("shipment_id = ? AND event_type = ? AND status = ?",
			shipment.ID, constants.EventTypeStatusChange, constants.ShipmentStatusInTransit).
		Count(&statusChanges)
	if statusChanges != 1 {
		t.Fatalf("expected 1 status_change entry for the advance, got %d", statusChanges)
	}

	var locationUpdates int64
	db.Model(&models.ShipmentEvent{}).
		Where("shipment_id = ? AND event_type = ?", shipment.ID, constants.EventTypeLocationUpdate).
		Count(&locationUpdates)
	if locationUpdates != 1 {
		t.Fatalf("raw carrier event should also be in the ledger, got %d", locationUpdates)
	}
}

func TestApplyTrackingUpdatesSkipsRegression(t *testing.T) {
	svc, _, _ := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Carlos Mendes")

	if _, err := svc.UpdateStatus(UpdateStatusInput{
		ShipmentID: shipment.ID,
		NewStatus:  constants.ShipmentStatusOutForDelivery,
		Source:     constants.EventSourceAPISync,
	}); err != nil {
		t.Fatalf("seed status failed: %v", err)
	}

	// 迟到的旧状态更新：入账但不回退状态
	late := []carrier.TrackingUpdate{
		{EventType: constants.EventTypeStatusChange, Status: constants.ShipmentStatusInTransit, Description: "late scan", EventTime: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)},
	}
	result, err := svc.ApplyTrackingUpdates(shipment.ID, late, constants.EventSourceWebhook, "hook-1")
	if err != nil {
		t.Fatalf("apply late update failed: %v", err)
	}
	if result.Appended != 1 {
		t.Fatalf("late event should still be recorded, appended=%d", result.Appended)
	}
	if result.StatusSkipped != 1 {
		t.Fatalf("regression should be skipped, skipped=%d", result.StatusSkipped)
	}
	if result.FinalStatus != constants.ShipmentStatusOutForDelivery {
		t.Fatalf("final status want out_for_delivery got %s", result.FinalStatus)
	}
}

func TestDeleteShipmentRequiresForceWhenActive(t *testing.T) {
	svc, _, _ := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, svc, "Carlos Mendes")

	if err := svc.DeleteShipment(shipment.ID, false); !errors.Is(err, ErrShipmentDeleteNotAllowed) {
		t.Fatalf("expected ErrShipmentDeleteNotAllowed, got %v", err)
	}
	if err := svc.DeleteShipment(shipment.ID, true); err != nil {
		t.Fatalf("force delete failed: %v", err)
	}
	if _, err := svc.GetShipment(shipment.ID); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("deleted shipment should not be found, got %v", err)
	}
}

func mustCreateShipment(t *testing.T, svc *ShipmentService, name string) *models.Shipment {
	t.Helper()

	shipment, err := svc.CreateShipment(CreateShipmentInput{CustomerName: name, CreatedBy: 1})
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	return shipment
}
