package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier/shipengine"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/provider"
	"github.com/Juddanxavier/track-sub003/internal/repository"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_public_handler_test"

func setupPublicHandlerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Shipment{}, &models.ShipmentEvent{}, &models.User{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.WhiteLabel = config.WhiteLabelConfig{HideCarrierInfo: true, MaskTrackingNumber: false}
	cfg.Carriers = config.CarriersConfig{
		Provider: constants.ProviderShipEngine,
		ShipEngine: config.ShipEngineConfig{
			APIKey:           "TEST_KEY",
			WebhookSecret:    testWebhookSecret,
			ToleranceSeconds: 300,
		},
	}
	cfg.Sync = config.SyncConfig{Enabled: true}
	cfg.Signup = config.SignupConfig{TokenTTLHours: 72}

	shipmentRepo := repository.NewShipmentRepository(db)
	eventSvc := service.NewShipmentEventService(shipmentRepo, repository.NewShipmentEventRepository(db))
	trackingSvc := service.NewTrackingService(shipmentRepo, eventSvc, nil)
	shipmentSvc := service.NewShipmentService(shipmentRepo, eventSvc, trackingSvc, nil)
	userSvc := service.NewUserService(
		repository.NewUserRepository(db),
		shipmentRepo,
		eventSvc,
		nil,
		&cfg.Signup,
		cfg.Security.PasswordPolicy,
	)
	syncSvc := service.NewCarrierSyncService(shipmentRepo, shipmentSvc, eventSvc, nil, nil, &cfg.Sync)

	container := &provider.Container{
		Config:               cfg,
		ShipmentRepo:         shipmentRepo,
		ShipmentEventService: eventSvc,
		TrackingService:      trackingSvc,
		ShipmentService:      shipmentSvc,
		WhiteLabelService:    service.NewWhiteLabelService(&cfg.WhiteLabel),
		CarrierSyncService:   syncSvc,
		UserService:          userSvc,
	}
	handler := New(container)

	r := gin.New()
	r.GET("/api/v1/public/tracking/:code", handler.GetPublicTracking)
	r.POST("/api/v1/public/webhooks/:provider", handler.CarrierWebhook)
	r.POST("/api/v1/public/complete-signup", handler.CompleteSignup)
	return r, db
}

func countShipmentEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.ShipmentEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count shipment events failed: %v", err)
	}
	return count
}

func TestCarrierWebhookInvalidSignatureLeavesNoTrace(t *testing.T) {
	r, db := setupPublicHandlerTest(t)

	body := `{"resource_type":"track","data":{"tracking_number":"1Z999AA10123456784","carrier_code":"ups"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/webhooks/shipengine", strings.NewReader(body))
	req.Header.Set("X-ShipEngine-Signature", fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"status_code":401`) {
		t.Fatalf("expected status_code 401 envelope, got %s", w.Body.String())
	}
	if got := countShipmentEvents(t, db); got != 0 {
		t.Fatalf("invalid signature must not append events, got %d", got)
	}
}

func TestCarrierWebhookUnknownProvider(t *testing.T) {
	r, _ := setupPublicHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/webhooks/pigeonpost", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"status_code":404`) {
		t.Fatalf("expected status_code 404 envelope, got %s", w.Body.String())
	}
}

func TestCarrierWebhookUnmatchedShipmentStillAccepted(t *testing.T) {
	r, db := setupPublicHandlerTest(t)

	// 合法签名但运单不存在：回 200 避免承运商重试风暴
	body := []byte(`{"resource_type":"track","data":{"tracking_number":"1Z999AA10123456784","carrier_code":"ups","events":[{"event_id":"evt-1","occurred_at":"2026-03-10T14:30:00Z","status_code":"IT","description":"Departed facility"}]}}`)
	now := time.Now()
	sig := shipengine.ComputeSignature(testWebhookSecret, now.Unix(), body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/webhooks/shipengine", strings.NewReader(string(body)))
	req.Header.Set("X-ShipEngine-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"status_code":0`) {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"accepted":true`) {
		t.Fatalf("expected accepted ack, got %s", w.Body.String())
	}
	if got := countShipmentEvents(t, db); got != 0 {
		t.Fatalf("unmatched webhook must not append events, got %d", got)
	}
}

func TestGetPublicTrackingMasksCarrierAndSetsCacheHeader(t *testing.T) {
	r, db := setupPublicHandlerTest(t)

	shipmentRepo := repository.NewShipmentRepository(db)
	eventSvc := service.NewShipmentEventService(shipmentRepo, repository.NewShipmentEventRepository(db))
	trackingSvc := service.NewTrackingService(shipmentRepo, eventSvc, nil)
	shipmentSvc := service.NewShipmentService(shipmentRepo, eventSvc, trackingSvc, nil)

	shipment, err := shipmentSvc.CreateShipment(service.CreateShipmentInput{
		CustomerName:   "Amara Okafor",
		CustomerEmail:  "amara@example.com",
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		CreatedBy:      1,
	})
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	// 内部诊断事件不应出现在公开响应中
	if _, _, err := eventSvc.AddEvent(service.AddShipmentEventInput{
		ShipmentID:  shipment.ID,
		EventType:   constants.EventTypeAPISync,
		Description: "UPS poll returned 3 events",
		Source:      constants.EventSourceAPISync,
		EventTime:   time.Now(),
	}); err != nil {
		t.Fatalf("append api_sync event failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/tracking/"+shipment.TrackingCode, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("unexpected Cache-Control header %q", got)
	}

	var envelope struct {
		StatusCode int             `json:"status_code"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if envelope.StatusCode != 0 {
		t.Fatalf("expected success, got %s", w.Body.String())
	}

	payload := strings.ToLower(string(envelope.Data))
	if !strings.Contains(payload, strings.ToLower(shipment.TrackingCode)) {
		t.Fatalf("response should carry the internal tracking code: %s", payload)
	}
	if strings.Contains(payload, "1z999aa10123456784") {
		t.Fatalf("carrier tracking number leaked: %s", payload)
	}
	if strings.Contains(payload, `"ups"`) {
		t.Fatalf("carrier identity leaked: %s", payload)
	}
	if strings.Contains(payload, constants.EventTypeAPISync+`"`) && strings.Contains(payload, "poll returned") {
		t.Fatalf("internal api_sync event leaked: %s", payload)
	}
}

func TestGetPublicTrackingNotFoundIsGeneric(t *testing.T) {
	r, _ := setupPublicHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/tracking/TRK-MISSING99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"status_code":404`) {
		t.Fatalf("expected status_code 404 envelope, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "tracking code not found") {
		t.Fatalf("expected generic not-found message, got %s", w.Body.String())
	}
}

func TestCompleteSignupEndToEnd(t *testing.T) {
	r, db := setupPublicHandlerTest(t)

	expiry := time.Now().Add(24 * time.Hour)
	user := models.User{
		Email:                "invitee@example.com",
		Status:               constants.UserStatusInvited,
		SignupToken:          "tok-public-handler",
		SignupTokenExpiresAt: &expiry,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create invited user failed: %v", err)
	}

	body := `{"token":"tok-public-handler","password":"Str0ng!Pass","display_name":"Invitee"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/complete-signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"status_code":0`) {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}

	var updated models.User
	if err := db.First(&updated, user.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if updated.Status != constants.UserStatusActive {
		t.Fatalf("user should be active, got %s", updated.Status)
	}
	if updated.SignupToken != "" {
		t.Fatalf("signup token should be consumed")
	}

	// 令牌一次性，重放应失败
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/complete-signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "signup token invalid") {
		t.Fatalf("expected token invalid on replay, got %s", w.Body.String())
	}
}
