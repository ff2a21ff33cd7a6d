package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupLoginLogServiceTest(t *testing.T) (*LoginLogService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:login_log_svc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.LoginLog{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	return NewLoginLogService(repository.NewLoginLogRepository(db)), db
}

func TestRecordSuccessAndFailure(t *testing.T) {
	svc, db := setupLoginLogServiceTest(t)

	svc.RecordSuccess(7, LoginAttemptContext{
		Username:  " admin ",
		ClientIP:  "10.0.0.1",
		UserAgent: "curl/8.0",
		RequestID: "req-1",
	})
	svc.RecordFailure("password_mismatch", LoginAttemptContext{
		Username: "admin",
		ClientIP: "10.0.0.1",
	})

	var logs []models.LoginLog
	if err := db.Order("id ASC").Find(&logs).Error; err != nil {
		t.Fatalf("查询登录日志失败: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}

	success := logs[0]
	if success.Status != constants.LoginLogStatusSuccess {
		t.Fatalf("expected success status, got %s", success.Status)
	}
	if success.AdminID != 7 {
		t.Fatalf("expected admin id 7, got %d", success.AdminID)
	}
	if success.Username != "admin" {
		t.Fatalf("expected trimmed username, got %q", success.Username)
	}

	failure := logs[1]
	if failure.Status != constants.LoginLogStatusFailed {
		t.Fatalf("expected failed status, got %s", failure.Status)
	}
	if failure.FailReason != "password_mismatch" {
		t.Fatalf("unexpected fail reason %q", failure.FailReason)
	}
	if failure.AdminID != 0 {
		t.Fatalf("failed login should not carry admin id, got %d", failure.AdminID)
	}
}

func TestRecentFailuresLookbackWindow(t *testing.T) {
	svc, db := setupLoginLogServiceTest(t)

	now := time.Now()
	rows := []models.LoginLog{
		{Username: "ops", Status: constants.LoginLogStatusFailed, ClientIP: "1.2.3.4", CreatedAt: now.Add(-2 * time.Minute)},
		{Username: "ops", Status: constants.LoginLogStatusFailed, ClientIP: "1.2.3.4", CreatedAt: now.Add(-5 * time.Minute)},
		// 同 IP 不同账号也计入
		{Username: "other", Status: constants.LoginLogStatusFailed, ClientIP: "1.2.3.4", CreatedAt: now.Add(-3 * time.Minute)},
		// 窗口外的失败不计入
		{Username: "ops", Status: constants.LoginLogStatusFailed, ClientIP: "1.2.3.4", CreatedAt: now.Add(-30 * time.Minute)},
		// 成功记录不计入
		{Username: "ops", Status: constants.LoginLogStatusSuccess, ClientIP: "1.2.3.4", CreatedAt: now.Add(-1 * time.Minute)},
		// 无关账号与 IP
		{Username: "stranger", Status: constants.LoginLogStatusFailed, ClientIP: "9.9.9.9", CreatedAt: now.Add(-1 * time.Minute)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("写入测试数据失败: %v", err)
		}
	}

	if got := svc.RecentFailures("ops", "1.2.3.4"); got != 3 {
		t.Fatalf("expected 3 recent failures, got %d", got)
	}
	if got := svc.RecentFailures("ops", ""); got != 2 {
		t.Fatalf("expected 2 failures by username, got %d", got)
	}
	if got := svc.RecentFailures("", "1.2.3.4"); got != 3 {
		t.Fatalf("expected 3 failures by ip, got %d", got)
	}
	if got := svc.RecentFailures("", ""); got != 0 {
		t.Fatalf("expected 0 without identifiers, got %d", got)
	}
}

func TestLoginLogList(t *testing.T) {
	svc, db := setupLoginLogServiceTest(t)

	for i := 0; i < 3; i++ {
		status := constants.LoginLogStatusFailed
		if i == 0 {
			status = constants.LoginLogStatusSuccess
		}
		if err := db.Create(&models.LoginLog{Username: "admin", Status: status, ClientIP: "10.0.0.1"}).Error; err != nil {
			t.Fatalf("写入测试数据失败: %v", err)
		}
	}

	logs, total, err := svc.List(repository.LoginLogListFilter{Status: constants.LoginLogStatusFailed, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("查询列表失败: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Fatalf("expected 2 failed logs, got total=%d len=%d", total, len(logs))
	}
	for _, log := range logs {
		if log.Status != constants.LoginLogStatusFailed {
			t.Fatalf("unexpected status %s in filtered list", log.Status)
		}
	}
}
