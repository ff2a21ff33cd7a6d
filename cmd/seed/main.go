package main

import (
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	now := time.Now()

	// 演示线索：覆盖 new / contacted / qualified 三种阶段
	leads := []models.Lead{
		{
			Name:               "Carlos Mendes",
			Email:              "carlos.mendes@example.com",
			Phone:              "+55 11 98877 1234",
			Company:            "Mendes Importações",
			OriginCountry:      "CN",
			DestinationCountry: "BR",
			EstimatedWeight:    decimal.NewFromFloat(120.5),
			EstimatedValue:     models.NewMoneyFromDecimal(decimal.NewFromFloat(8600)),
			Status:             constants.LeadStatusNew,
			Notes:              "询价：电子配件整柜海运",
			CreatedBy:          1,
		},
		{
			Name:               "Amara Okafor",
			Email:              "amara.okafor@example.com",
			Phone:              "+234 803 555 0182",
			Company:            "Okafor Trading Co",
			OriginCountry:      "US",
			DestinationCountry: "NG",
			EstimatedWeight:    decimal.NewFromFloat(45),
			EstimatedValue:     models.NewMoneyFromDecimal(decimal.NewFromFloat(3200)),
			Status:             constants.LeadStatusContacted,
			Notes:              "已报价，等待确认装运时间",
			CreatedBy:          1,
		},
		{
			Name:               "Lena Fischer",
			Email:              "lena.fischer@example.com",
			Company:            "Fischer Feinkost GmbH",
			OriginCountry:      "DE",
			DestinationCountry: "CA",
			EstimatedWeight:    decimal.NewFromFloat(18.2),
			EstimatedValue:     models.NewMoneyFromDecimal(decimal.NewFromFloat(950)),
			Status:             constants.LeadStatusQualified,
			Notes:              "样品件，空运加急",
			CreatedBy:          1,
		},
	}
	for _, lead := range leads {
		var existing models.Lead
		if err := models.DB.Where("email = ?", lead.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&lead).Error; err != nil {
				stdLog.Printf("Failed to create lead %s: %v", lead.Email, err)
			} else {
				stdLog.Printf("Created lead: %s", lead.Email)
			}
		} else {
			stdLog.Printf("Lead already exists: %s", lead.Email)
		}
	}

	// 演示客户账号：一个已激活，一个仍处于邀请状态
	signupExpires := now.Add(72 * time.Hour)
	activatedAt := now.Add(-240 * time.Hour)
	users := []models.User{
		{
			Email:             "carlos.mendes@example.com",
			DisplayName:       "Carlos Mendes",
			Phone:             "+55 11 98877 1234",
			Status:            constants.UserStatusActive,
			SignupCompletedAt: &activatedAt,
			CreatedBy:         1,
		},
		{
			Email:                "amara.okafor@example.com",
			DisplayName:          "Amara Okafor",
			Status:               constants.UserStatusInvited,
			SignupToken:          "seed-invite-token-amara",
			SignupTokenExpiresAt: &signupExpires,
			CreatedBy:            1,
		},
	}
	userIDs := map[string]uint{}
	for _, user := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", user.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&user).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", user.Email, err)
				continue
			}
			stdLog.Printf("Created user: %s", user.Email)
			userIDs[user.Email] = user.ID
		} else {
			stdLog.Printf("User already exists: %s", user.Email)
			userIDs[user.Email] = existing.ID
		}
	}

	// 演示运单：在途、已送达、待揽收三种形态
	carlosID := userIDs["carlos.mendes@example.com"]
	estimated := now.Add(96 * time.Hour)
	delivered := now.Add(-48 * time.Hour)
	shipments := []models.Shipment{
		{
			TrackingCode:             "TRK-SEED000001",
			Courier:                  constants.CourierUPS,
			TrackingNumber:           "1Z999AA10123456784",
			TrackingAssignmentStatus: constants.TrackingAssignmentAssigned,
			Status:                   constants.ShipmentStatusInTransit,
			CustomerName:             "Carlos Mendes",
			CustomerEmail:            "carlos.mendes@example.com",
			CustomerPhone:            "+55 11 98877 1234",
			OriginAddress:            "88 Huanghe Rd, Shenzhen",
			OriginCountry:            "CN",
			DestinationAddress:       "Av. Paulista 1578, São Paulo",
			DestinationCountry:       "BR",
			ShippingMethod:           "sea_freight",
			Weight:                   decimal.NewFromFloat(120.5),
			DeclaredValue:            models.NewMoneyFromDecimal(decimal.NewFromFloat(8600)),
			ShippingCost:             models.NewMoneyFromDecimal(decimal.NewFromFloat(640)),
			EstimatedDelivery:        &estimated,
			UserAssignmentStatus:     constants.UserAssignmentAssigned,
			CreatedBy:                1,
		},
		{
			TrackingCode:             "TRK-SEED000002",
			Courier:                  constants.CourierDHL,
			TrackingNumber:           "JD014600003582918273",
			TrackingAssignmentStatus: constants.TrackingAssignmentAssigned,
			Status:                   constants.ShipmentStatusDelivered,
			CustomerName:             "Lena Fischer",
			CustomerEmail:            "lena.fischer@example.com",
			OriginAddress:            "Borsigstraße 14, Hamburg",
			OriginCountry:            "DE",
			DestinationAddress:       "120 King St W, Toronto",
			DestinationCountry:       "CA",
			ShippingMethod:           "air_express",
			Weight:                   decimal.NewFromFloat(18.2),
			DeclaredValue:            models.NewMoneyFromDecimal(decimal.NewFromFloat(950)),
			ShippingCost:             models.NewMoneyFromDecimal(decimal.NewFromFloat(210)),
			ActualDelivery:           &delivered,
			CreatedBy:                1,
		},
		{
			TrackingCode:             "TRK-SEED000003",
			TrackingAssignmentStatus: constants.TrackingAssignmentUnassigned,
			Status:                   constants.ShipmentStatusPending,
			CustomerName:             "Amara Okafor",
			CustomerEmail:            "amara.okafor@example.com",
			OriginAddress:            "2200 Industrial Blvd, Houston",
			OriginCountry:            "US",
			DestinationAddress:       "14 Marina Rd, Lagos",
			DestinationCountry:       "NG",
			ShippingMethod:           "sea_freight",
			Weight:                   decimal.NewFromFloat(45),
			DeclaredValue:            models.NewMoneyFromDecimal(decimal.NewFromFloat(3200)),
			UserAssignmentStatus:     constants.UserAssignmentSignupSent,
			CreatedBy:                1,
		},
	}
	if carlosID != 0 {
		shipments[0].UserID = &carlosID
	}

	for i := range shipments {
		shipment := shipments[i]
		var existing models.Shipment
		if err := models.DB.Where("tracking_code = ?", shipment.TrackingCode).First(&existing).Error; err != nil {
			if err := models.DB.Create(&shipment).Error; err != nil {
				stdLog.Printf("Failed to create shipment %s: %v", shipment.TrackingCode, err)
				continue
			}
			stdLog.Printf("Created shipment: %s", shipment.TrackingCode)
			seedShipmentEvents(stdLog.Printf, shipment, now)
		} else {
			stdLog.Printf("Shipment already exists: %s", shipment.TrackingCode)
		}
	}

	stdLog.Printf("Seed completed")
}

// seedShipmentEvents 为新建的演示运单补齐事件账本
func seedShipmentEvents(printf func(string, ...interface{}), shipment models.Shipment, now time.Time) {
	base := now.Add(-120 * time.Hour).Truncate(time.Millisecond)
	events := []models.ShipmentEvent{
		{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeShipmentCreated,
			Source:      constants.EventSourceManual,
			Status:      constants.ShipmentStatusPending,
			Description: "Shipment created",
			EventTime:   base,
			CreatedBy:   shipment.CreatedBy,
		},
	}
	if shipment.TrackingNumber != "" {
		events = append(events, models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeTrackingAssigned,
			Source:      constants.EventSourceManual,
			Status:      constants.ShipmentStatusPending,
			Description: "Tracking number assigned",
			EventTime:   base.Add(2 * time.Hour),
			CreatedBy:   shipment.CreatedBy,
		})
	}
	if shipment.Status == constants.ShipmentStatusInTransit || shipment.Status == constants.ShipmentStatusDelivered {
		events = append(events, models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeStatusChange,
			Source:      constants.EventSourceAPISync,
			SourceID:    "seed-pickup-" + shipment.TrackingCode,
			Status:      constants.ShipmentStatusInTransit,
			Description: "Picked up by carrier",
			Location:    shipment.OriginCountry,
			EventTime:   base.Add(12 * time.Hour),
		})
	}
	if shipment.Status == constants.ShipmentStatusDelivered {
		events = append(events, models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			EventType:   constants.EventTypeStatusChange,
			Source:      constants.EventSourceAPISync,
			SourceID:    "seed-delivery-" + shipment.TrackingCode,
			Status:      constants.ShipmentStatusDelivered,
			Description: "Delivered",
			Location:    shipment.DestinationCountry,
			EventTime:   base.Add(72 * time.Hour),
		})
	}

	for _, event := range events {
		if err := models.DB.Create(&event).Error; err != nil {
			printf("Failed to create event for %s: %v", shipment.TrackingCode, err)
		}
	}
	printf("Created %d events for shipment %s", len(events), shipment.TrackingCode)
}
