package shipengine

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidateConfig(t *testing.T) {
	cfg := &Config{APIKey: " TEST_KEY "}
	cfg.Normalize()
	if cfg.APIKey != "TEST_KEY" {
		t.Fatalf("unexpected api key: %s", cfg.APIKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default base url: %s", cfg.APIBaseURL)
	}
	if cfg.WebhookToleranceSeconds != defaultWebhookToleranceS {
		t.Fatalf("unexpected default tolerance: %d", cfg.WebhookToleranceSeconds)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}

	if err := ValidateConfig(&Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestVerifyAndParseWebhook(t *testing.T) {
	now := time.Unix(1770000000, 0)
	cfg := &Config{
		APIKey:                  "TEST_KEY",
		WebhookSecret:           "whsec_track_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"resource_type": "track",
		"data": map[string]interface{}{
			"tracking_number": "123456789012",
			"carrier_code":    "fedex",
			"status_code":     "IT",
			"events": []interface{}{
				map[string]interface{}{
					"event_id":      "evt-1",
					"occurred_at":   "2026-03-10T14:30:00.123Z",
					"status_code":   "IT",
					"description":   "Departed facility",
					"city_locality": "Memphis",
					"state_province": "TN",
					"country_code":  "US",
				},
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := ComputeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"X-ShipEngine-Signature": "t=1770000000,v1=" + sig,
	}

	result, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if result.TrackingNumber != "123456789012" {
		t.Fatalf("unexpected tracking number: %s", result.TrackingNumber)
	}
	if result.CarrierCode != "fedex" {
		t.Fatalf("unexpected carrier code: %s", result.CarrierCode)
	}
	if len(result.Events) != 1 {
		t.Fatalf("events len want 1 got %d", len(result.Events))
	}
	event := result.Events[0]
	if event.StatusCode != "IT" {
		t.Fatalf("unexpected status code: %s", event.StatusCode)
	}
	if event.Location() != "Memphis, TN, US" {
		t.Fatalf("unexpected location: %s", event.Location())
	}
	want := time.Date(2026, 3, 10, 14, 30, 0, 123000000, time.UTC)
	if !event.OccurredAt.Equal(want) {
		t.Fatalf("occurred_at want %v got %v", want, event.OccurredAt)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1770000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_track_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"resource_type":"track","data":{"tracking_number":"123456789012"}}`)
	headers := map[string]string{
		"X-ShipEngine-Signature": "t=1770000000,v1=deadbeef",
	}
	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected verify error")
	}
}

func TestVerifyAndParseWebhookTimestampOutsideTolerance(t *testing.T) {
	now := time.Unix(1770000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_track_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"resource_type":"track","data":{"tracking_number":"123456789012"}}`)
	stale := now.Add(-time.Hour).Unix()
	sig := ComputeSignature(cfg.WebhookSecret, stale, body)
	headers := map[string]string{
		"X-ShipEngine-Signature": "t=1769996400,v1=" + sig,
	}
	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected tolerance error")
	}
}
