package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupNotificationServiceTest(t *testing.T) (*NotificationService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:notification_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}, &models.Notification{}, &models.NotificationPreference{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	svc := NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewAdminRepository(db),
		nil,
	)
	return svc, db
}

func createNotificationTestAdmin(t *testing.T, db *gorm.DB, username string) models.Admin {
	t.Helper()

	admin := models.Admin{Username: username, PasswordHash: "hash"}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	return admin
}

func TestDispatchWritesNotificationPerAdmin(t *testing.T) {
	svc, db := setupNotificationServiceTest(t)
	a := createNotificationTestAdmin(t, db, "ops-a")
	b := createNotificationTestAdmin(t, db, "ops-b")

	err := svc.Dispatch(context.Background(), queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventShipmentStatusChanged,
		BizType: constants.NotificationBizTypeShipment,
		BizID:   42,
		Data: map[string]interface{}{
			"tracking_code": "TRK-A1B2C3D4E5",
			"from_status":   "pending",
			"to_status":     "in_transit",
			"source":        "api_sync",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	for _, admin := range []models.Admin{a, b} {
		notifications, total, err := svc.List(admin.ID, repository.NotificationListFilter{Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("list for admin %d failed: %v", admin.ID, err)
		}
		if total != 1 || len(notifications) != 1 {
			t.Fatalf("admin %d should have 1 notification, got %d", admin.ID, total)
		}
		notification := notifications[0]
		if !strings.Contains(notification.Title, "TRK-A1B2C3D4E5") {
			t.Fatalf("title should carry tracking code, got %q", notification.Title)
		}
		if !strings.Contains(notification.Body, "pending") || !strings.Contains(notification.Body, "in_transit") {
			t.Fatalf("body should carry status move, got %q", notification.Body)
		}
		if notification.BizType != constants.NotificationBizTypeShipment || notification.BizID != 42 {
			t.Fatalf("unexpected biz reference: %+v", notification)
		}
	}
}

func TestDispatchUnknownEventRejected(t *testing.T) {
	svc, _ := setupNotificationServiceTest(t)

	err := svc.Dispatch(context.Background(), queue.NotificationDispatchPayload{Event: "mystery_event"})
	if !errors.Is(err, ErrNotificationEventInvalid) {
		t.Fatalf("expected ErrNotificationEventInvalid, got %v", err)
	}
}

func TestDispatchHonorsDisabledPreference(t *testing.T) {
	svc, db := setupNotificationServiceTest(t)
	muted := createNotificationTestAdmin(t, db, "muted")
	listening := createNotificationTestAdmin(t, db, "listening")

	if err := svc.UpdatePreference(muted.ID, constants.NotificationEventLeadConverted, false); err != nil {
		t.Fatalf("update preference failed: %v", err)
	}

	err := svc.Dispatch(context.Background(), queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventLeadConverted,
		BizType: constants.NotificationBizTypeLead,
		BizID:   7,
		Data:    map[string]interface{}{"lead_name": "Carlos", "tracking_code": "TRK-A1B2C3D4E5"},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if count, err := svc.UnreadCount(muted.ID); err != nil || count != 0 {
		t.Fatalf("muted admin should receive nothing, count=%d err=%v", count, err)
	}
	if count, err := svc.UnreadCount(listening.ID); err != nil || count != 1 {
		t.Fatalf("listening admin should receive 1, count=%d err=%v", count, err)
	}
}

func TestMarkReadOnlyTouchesOwnNotifications(t *testing.T) {
	svc, db := setupNotificationServiceTest(t)
	owner := createNotificationTestAdmin(t, db, "owner")
	other := createNotificationTestAdmin(t, db, "other")

	if err := svc.Dispatch(context.Background(), queue.NotificationDispatchPayload{
		Event: constants.NotificationEventTrackingAssigned,
		Data:  map[string]interface{}{"tracking_code": "TRK-A1B2C3D4E5", "courier": "ups", "tracking_number": "1Z999AA10123456784"},
	}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	var ownerNotification models.Notification
	if err := db.Where("admin_id = ?", owner.ID).First(&ownerNotification).Error; err != nil {
		t.Fatalf("load owner notification failed: %v", err)
	}

	// 其他管理员不能把别人的通知标记为已读
	updated, err := svc.MarkRead(other.ID, []uint{ownerNotification.ID})
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if updated != 0 {
		t.Fatalf("cross-admin mark read should touch nothing, got %d", updated)
	}

	updated, err = svc.MarkRead(owner.ID, []uint{ownerNotification.ID})
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("owner mark read should update 1, got %d", updated)
	}
	if count, err := svc.UnreadCount(owner.ID); err != nil || count != 0 {
		t.Fatalf("owner unread count want 0 got %d err=%v", count, err)
	}
}

func TestListPreferencesDefaultsToEnabled(t *testing.T) {
	svc, db := setupNotificationServiceTest(t)
	admin := createNotificationTestAdmin(t, db, "ops")

	views, err := svc.ListPreferences(admin.ID)
	if err != nil {
		t.Fatalf("list preferences failed: %v", err)
	}
	if len(views) != len(SupportedNotificationEvents()) {
		t.Fatalf("expected a view per supported event, got %d", len(views))
	}
	for _, view := range views {
		if !view.Enabled {
			t.Fatalf("preference for %s should default to enabled", view.Event)
		}
	}

	if err := svc.UpdatePreference(admin.ID, constants.NotificationEventSyncFailed, false); err != nil {
		t.Fatalf("disable preference failed: %v", err)
	}
	views, err = svc.ListPreferences(admin.ID)
	if err != nil {
		t.Fatalf("list preferences failed: %v", err)
	}
	for _, view := range views {
		if view.Event == constants.NotificationEventSyncFailed && view.Enabled {
			t.Fatalf("disabled preference should be reported as disabled")
		}
	}

	if err := svc.UpdatePreference(admin.ID, "mystery_event", false); !errors.Is(err, ErrNotificationEventInvalid) {
		t.Fatalf("unknown event preference should be rejected, got %v", err)
	}
}

func TestRenderNotificationTemplate(t *testing.T) {
	rendered := renderNotificationTemplate(
		"Shipment {{tracking_code}} moved to {{to_status}} ({{missing}})",
		map[string]interface{}{"tracking_code": "TRK-X", "to_status": "delivered"},
	)
	if rendered != "Shipment TRK-X moved to delivered ()" {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
}
