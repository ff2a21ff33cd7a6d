package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupShipmentEventRepositoryTest(t *testing.T) (*GormShipmentEventRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:shipment_event_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Shipment{},
		&models.ShipmentEvent{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewShipmentEventRepository(db), db
}

func TestShipmentEventRepositoryFindDuplicate(t *testing.T) {
	repo, db := setupShipmentEventRepositoryTest(t)
	eventTime := time.Date(2026, 3, 10, 14, 30, 0, 123000000, time.UTC)

	event := models.ShipmentEvent{
		ShipmentID: 7,
		EventType:  constants.EventTypeLocationUpdate,
		Source:     constants.EventSourceAPISync,
		EventTime:  eventTime,
		Location:   "Memphis, TN",
		CreatedAt:  time.Now(),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("create event failed: %v", err)
	}

	t.Run("same key hits", func(t *testing.T) {
		got, err := repo.FindDuplicate(7, constants.EventSourceAPISync, constants.EventTypeLocationUpdate, eventTime)
		if err != nil {
			t.Fatalf("find duplicate failed: %v", err)
		}
		if got == nil {
			t.Fatalf("expected duplicate, got nil")
		}
		if got.ID != event.ID {
			t.Fatalf("event id want %d got %d", event.ID, got.ID)
		}
	})

	t.Run("different source misses", func(t *testing.T) {
		got, err := repo.FindDuplicate(7, constants.EventSourceWebhook, constants.EventTypeLocationUpdate, eventTime)
		if err != nil {
			t.Fatalf("find duplicate failed: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got event id=%d", got.ID)
		}
	})

	t.Run("different event type misses", func(t *testing.T) {
		got, err := repo.FindDuplicate(7, constants.EventSourceAPISync, constants.EventTypeStatusChange, eventTime)
		if err != nil {
			t.Fatalf("find duplicate failed: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got event id=%d", got.ID)
		}
	})

	t.Run("different millisecond misses", func(t *testing.T) {
		got, err := repo.FindDuplicate(7, constants.EventSourceAPISync, constants.EventTypeLocationUpdate, eventTime.Add(time.Millisecond))
		if err != nil {
			t.Fatalf("find duplicate failed: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got event id=%d", got.ID)
		}
	})
}

func TestShipmentEventRepositoryListOrdering(t *testing.T) {
	repo, db := setupShipmentEventRepositoryTest(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	// 故意乱序写入，读取必须按事件时间正序
	events := []models.ShipmentEvent{
		{
			ShipmentID: 3,
			EventType:  constants.EventTypeStatusChange,
			Source:     constants.EventSourceWebhook,
			EventTime:  base.Add(2 * time.Hour),
			Status:     constants.ShipmentStatusOutForDelivery,
			CreatedAt:  time.Now(),
		},
		{
			ShipmentID: 3,
			EventType:  constants.EventTypeShipmentCreated,
			Source:     constants.EventSourceManual,
			EventTime:  base,
			CreatedAt:  time.Now(),
		},
		{
			ShipmentID: 3,
			EventType:  constants.EventTypeLocationUpdate,
			Source:     constants.EventSourceAPISync,
			EventTime:  base.Add(time.Hour),
			Location:   "Louisville, KY",
			CreatedAt:  time.Now(),
		},
		{
			ShipmentID: 4,
			EventType:  constants.EventTypeShipmentCreated,
			Source:     constants.EventSourceManual,
			EventTime:  base,
			CreatedAt:  time.Now(),
		},
	}
	if err := db.Create(&events).Error; err != nil {
		t.Fatalf("create events failed: %v", err)
	}

	t.Run("ascending by event time", func(t *testing.T) {
		rows, total, err := repo.List(ShipmentEventListFilter{
			Page:       1,
			PageSize:   20,
			ShipmentID: 3,
		})
		if err != nil {
			t.Fatalf("list events failed: %v", err)
		}
		if total != 3 || len(rows) != 3 {
			t.Fatalf("want 3 rows got total=%d len=%d", total, len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].EventTime.Before(rows[i-1].EventTime) {
				t.Fatalf("events out of order at index %d", i)
			}
		}
		if rows[0].EventType != constants.EventTypeShipmentCreated {
			t.Fatalf("first event want shipment_created got %s", rows[0].EventType)
		}
	})

	t.Run("filter by source", func(t *testing.T) {
		rows, total, err := repo.List(ShipmentEventListFilter{
			Page:       1,
			PageSize:   20,
			ShipmentID: 3,
			Source:     constants.EventSourceAPISync,
		})
		if err != nil {
			t.Fatalf("list events failed: %v", err)
		}
		if total != 1 || len(rows) != 1 {
			t.Fatalf("want 1 row got total=%d len=%d", total, len(rows))
		}
		if rows[0].Location != "Louisville, KY" {
			t.Fatalf("unexpected location=%s", rows[0].Location)
		}
	})

	t.Run("pagination slices ordered result", func(t *testing.T) {
		rows, total, err := repo.List(ShipmentEventListFilter{
			Page:       2,
			PageSize:   2,
			ShipmentID: 3,
		})
		if err != nil {
			t.Fatalf("list events failed: %v", err)
		}
		if total != 3 {
			t.Fatalf("total want 3 got %d", total)
		}
		if len(rows) != 1 {
			t.Fatalf("page 2 want 1 row got %d", len(rows))
		}
		if rows[0].EventType != constants.EventTypeStatusChange {
			t.Fatalf("last event want status_change got %s", rows[0].EventType)
		}
	})

	t.Run("count by source", func(t *testing.T) {
		counts, err := repo.CountBySource(3)
		if err != nil {
			t.Fatalf("count by source failed: %v", err)
		}
		if counts[constants.EventSourceManual] != 1 ||
			counts[constants.EventSourceAPISync] != 1 ||
			counts[constants.EventSourceWebhook] != 1 {
			t.Fatalf("unexpected counts: %+v", counts)
		}
	})
}
