package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupShipmentEventServiceTest(t *testing.T) (*ShipmentEventService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:shipment_event_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Shipment{}, &models.ShipmentEvent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	shipmentRepo := repository.NewShipmentRepository(db)
	eventRepo := repository.NewShipmentEventRepository(db)
	return NewShipmentEventService(shipmentRepo, eventRepo), db
}

func createEventTestShipment(t *testing.T, db *gorm.DB, code string) models.Shipment {
	t.Helper()

	shipment := models.Shipment{
		TrackingCode:             code,
		TrackingAssignmentStatus: constants.TrackingAssignmentUnassigned,
		Status:                   constants.ShipmentStatusPending,
		CustomerName:             "Test Customer",
		UserAssignmentStatus:     constants.UserAssignmentUnassigned,
	}
	if err := db.Create(&shipment).Error; err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	return shipment
}

func TestAddEventDeduplicatesAutomatedSources(t *testing.T) {
	svc, db := setupShipmentEventServiceTest(t)
	shipment := createEventTestShipment(t, db, "TRK-EVT0000001")

	eventTime := time.Date(2026, 8, 20, 9, 30, 0, 123456789, time.UTC)
	for _, source := range []string{constants.EventSourceAPISync, constants.EventSourceWebhook} {
		first, deduped, err := svc.AddEvent(AddShipmentEventInput{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeLocationUpdate,
			Source:      source,
			Description: "package scanned",
			EventTime:   eventTime,
		})
		if err != nil {
			t.Fatalf("first add for %s failed: %v", source, err)
		}
		if deduped {
			t.Fatalf("first event for %s should not be deduped", source)
		}

		// 同一来源、同一毫秒时间戳的重复投递命中去重
		second, deduped, err := svc.AddEvent(AddShipmentEventInput{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeLocationUpdate,
			Source:      source,
			Description: "package scanned again",
			EventTime:   eventTime.Add(200 * time.Microsecond),
		})
		if err != nil {
			t.Fatalf("second add for %s failed: %v", source, err)
		}
		if !deduped {
			t.Fatalf("duplicate event for %s should be deduped", source)
		}
		if second.ID != first.ID {
			t.Fatalf("dedupe should return the existing event, got id %d want %d", second.ID, first.ID)
		}
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).Where("shipment_id = ?", shipment.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 stored events (one per source), got %d", count)
	}
}

func TestAddEventSameTimeDifferentTypeNotDeduped(t *testing.T) {
	svc, db := setupShipmentEventServiceTest(t)
	shipment := createEventTestShipment(t, db, "TRK-EVT0000005")

	// 承运商原始事件与状态机补记的 status_change 可以落在同一毫秒，必须各自入账
	eventTime := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	for _, eventType := range []string{constants.EventTypeLocationUpdate, constants.EventTypeStatusChange} {
		_, deduped, err := svc.AddEvent(AddShipmentEventInput{
			ShipmentID: shipment.ID,
			EventType:  eventType,
			Source:     constants.EventSourceAPISync,
			Status:     constants.ShipmentStatusInTransit,
			EventTime:  eventTime,
		})
		if err != nil {
			t.Fatalf("add %s failed: %v", eventType, err)
		}
		if deduped {
			t.Fatalf("%s at the same timestamp should not collide with another event type", eventType)
		}
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).Where("shipment_id = ?", shipment.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 stored events, got %d", count)
	}
}

func TestAddEventManualNeverDeduped(t *testing.T) {
	svc, db := setupShipmentEventServiceTest(t)
	shipment := createEventTestShipment(t, db, "TRK-EVT0000002")

	eventTime := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, deduped, err := svc.AddEvent(AddShipmentEventInput{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeStatusChange,
			Source:      constants.EventSourceManual,
			Description: "operator note",
			EventTime:   eventTime,
			CreatedBy:   7,
		})
		if err != nil {
			t.Fatalf("manual add %d failed: %v", i+1, err)
		}
		if deduped {
			t.Fatalf("manual events must never be deduped")
		}
	}

	var count int64
	db.Model(&models.ShipmentEvent{}).Where("shipment_id = ?", shipment.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 manual events, got %d", count)
	}
}

func TestAddEventRejectsUnknownSource(t *testing.T) {
	svc, db := setupShipmentEventServiceTest(t)
	shipment := createEventTestShipment(t, db, "TRK-EVT0000003")

	_, _, err := svc.AddEvent(AddShipmentEventInput{
		ShipmentID: shipment.ID,
		EventType:  constants.EventTypeLocationUpdate,
		Source:     "carrier_pigeon",
		EventTime:  time.Now(),
	})
	if !errors.Is(err, ErrShipmentEventInvalid) {
		t.Fatalf("expected ErrShipmentEventInvalid, got %v", err)
	}
}

func TestAddEventMissingShipment(t *testing.T) {
	svc, _ := setupShipmentEventServiceTest(t)

	_, _, err := svc.AddEvent(AddShipmentEventInput{
		ShipmentID: 9999,
		EventType:  constants.EventTypeLocationUpdate,
		Source:     constants.EventSourceAPISync,
		EventTime:  time.Now(),
	})
	if !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
}

func TestNormalizeEventTimeTruncatesToMillisecond(t *testing.T) {
	raw := time.Date(2026, 8, 20, 9, 30, 0, 123456789, time.UTC)
	got := normalizeEventTime(raw)
	if got.Nanosecond() != 123000000 {
		t.Fatalf("expected millisecond truncation, got %d ns", got.Nanosecond())
	}
	if normalizeEventTime(time.Time{}).IsZero() {
		t.Fatalf("zero event time should fall back to now")
	}
}

func TestListShipmentEventsFilterBySource(t *testing.T) {
	svc, db := setupShipmentEventServiceTest(t)
	shipment := createEventTestShipment(t, db, "TRK-EVT0000004")

	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	inputs := []AddShipmentEventInput{
		{ShipmentID: shipment.ID, EventType: constants.EventTypeShipmentCreated, Source: constants.EventSourceManual, EventTime: base},
		{ShipmentID: shipment.ID, EventType: constants.EventTypeLocationUpdate, Source: constants.EventSourceAPISync, EventTime: base.Add(time.Hour)},
		{ShipmentID: shipment.ID, EventType: constants.EventTypeLocationUpdate, Source: constants.EventSourceAPISync, EventTime: base.Add(2 * time.Hour)},
	}
	for i, input := range inputs {
		if _, _, err := svc.AddEvent(input); err != nil {
			t.Fatalf("add event %d failed: %v", i, err)
		}
	}

	events, total, err := svc.ListShipmentEvents(repository.ShipmentEventListFilter{
		ShipmentID: shipment.ID,
		Source:     constants.EventSourceAPISync,
		Page:       1,
		PageSize:   10,
	})
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("expected 2 api_sync events, got total=%d len=%d", total, len(events))
	}
	if !events[0].EventTime.Before(events[1].EventTime) {
		t.Fatalf("events should be ordered by event time ascending")
	}

	if _, _, err := svc.ListShipmentEvents(repository.ShipmentEventListFilter{
		ShipmentID: shipment.ID,
		Source:     "bogus",
	}); !errors.Is(err, ErrShipmentEventInvalid) {
		t.Fatalf("expected ErrShipmentEventInvalid for unknown source filter, got %v", err)
	}

	counts, err := svc.CountBySource(shipment.ID)
	if err != nil {
		t.Fatalf("count by source failed: %v", err)
	}
	if counts[constants.EventSourceManual] != 1 || counts[constants.EventSourceAPISync] != 2 {
		t.Fatalf("unexpected source counts: %+v", counts)
	}
}
