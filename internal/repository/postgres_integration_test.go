//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.ShipmentEvent{},
		&models.Shipment{},
		&models.Lead{},
		&models.User{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Lead{},
		&models.Shipment{},
		&models.ShipmentEvent{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresShipmentSearchUsesILike(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewShipmentRepository(db)

	shipment := &models.Shipment{
		TrackingCode:             "TRK-PG000001",
		Courier:                  "ups",
		TrackingNumber:           "1Z999AA10123456784",
		TrackingAssignmentStatus: constants.TrackingAssignmentAssigned,
		Status:                   constants.ShipmentStatusInTransit,
		CustomerName:             "Helena Nováková",
		CustomerEmail:            "helena@example.com",
	}
	if err := repo.Create(shipment); err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}

	// ILIKE 模糊查询对大小写不敏感
	rows, total, err := repo.List(ShipmentListFilter{Page: 1, Search: "helena NOVÁK"})
	if err != nil {
		t.Fatalf("shipment search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("shipment search want 1 got total=%d len=%d", total, len(rows))
	}
	if rows[0].TrackingCode != "TRK-PG000001" {
		t.Fatalf("unexpected shipment %s", rows[0].TrackingCode)
	}

	rows, total, err = repo.List(ShipmentListFilter{Page: 1, Search: "trk-pg0000"})
	if err != nil {
		t.Fatalf("shipment code search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("shipment code search want 1 got total=%d len=%d", total, len(rows))
	}
}

func TestPostgresDashboardQueries(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewDashboardRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	delivered := now
	shipments := []models.Shipment{
		{
			TrackingCode:             "TRK-PGDB0001",
			Courier:                  "ups",
			TrackingAssignmentStatus: constants.TrackingAssignmentAssigned,
			Status:                   constants.ShipmentStatusInTransit,
			CustomerName:             "Postgres 客户一",
			CreatedAt:                now,
		},
		{
			TrackingCode:             "TRK-PGDB0002",
			Courier:                  "dhl",
			TrackingAssignmentStatus: constants.TrackingAssignmentAssigned,
			Status:                   constants.ShipmentStatusDelivered,
			CustomerName:             "Postgres 客户二",
			ActualDelivery:           &delivered,
			CreatedAt:                now,
		},
	}
	for i := range shipments {
		if err := db.Create(&shipments[i]).Error; err != nil {
			t.Fatalf("create shipment failed: %v", err)
		}
	}

	lead := models.Lead{
		Name:      "Postgres 线索",
		Email:     "pg-lead@example.com",
		Status:    constants.LeadStatusConverted,
		CreatedAt: now,
	}
	if err := db.Create(&lead).Error; err != nil {
		t.Fatalf("create lead failed: %v", err)
	}

	startAt := now.Add(-time.Hour)
	endAt := now.Add(time.Hour)

	overview, err := repo.GetOverview(startAt, endAt)
	if err != nil {
		t.Fatalf("get overview failed: %v", err)
	}
	if overview.ShipmentsTotal != 2 || overview.ShipmentsDelivered != 1 {
		t.Fatalf("overview want total=2 delivered=1 got %+v", overview)
	}
	if overview.LeadsConverted != 1 {
		t.Fatalf("overview leads converted want 1 got %d", overview.LeadsConverted)
	}

	trends, err := repo.GetShipmentTrends(startAt, endAt)
	if err != nil {
		t.Fatalf("get shipment trends failed: %v", err)
	}
	if len(trends) == 0 {
		t.Fatalf("shipment trends should not be empty")
	}
	if strings.TrimSpace(trends[0].Day) == "" {
		t.Fatalf("trend day should not be empty")
	}

	carriers, err := repo.GetCarrierBreakdown(startAt, endAt, 5)
	if err != nil {
		t.Fatalf("get carrier breakdown failed: %v", err)
	}
	if len(carriers) != 2 {
		t.Fatalf("carrier rows want 2 got %d", len(carriers))
	}
}
