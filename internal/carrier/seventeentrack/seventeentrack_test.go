package seventeentrack

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidateConfig(t *testing.T) {
	cfg := &Config{APIKey: " 17TOKEN "}
	cfg.Normalize()
	if cfg.APIKey != "17TOKEN" {
		t.Fatalf("unexpected api key: %s", cfg.APIKey)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("unexpected default base url: %s", cfg.BaseURL)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}

	if err := ValidateConfig(&Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestVerifyWebhook(t *testing.T) {
	cfg := &Config{WebhookSecret: "17secret"}
	body := []byte(`{"event":"TRACKING_UPDATED","data":{"number":"RB123456789CN"}}`)
	sig := ComputeSignature(cfg.WebhookSecret, body)

	headers := map[string]string{"X-17Track-Sign": sig}
	if err := VerifyWebhook(cfg, headers, body); err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}

	headers = map[string]string{"X-17Track-Sign": "deadbeef"}
	if err := VerifyWebhook(cfg, headers, body); err == nil {
		t.Fatalf("expected signature error")
	}

	if err := VerifyWebhook(cfg, map[string]string{}, body); err == nil {
		t.Fatalf("expected missing header error")
	}
}

func TestParseWebhook(t *testing.T) {
	payload := map[string]interface{}{
		"event": "TRACKING_UPDATED",
		"data": map[string]interface{}{
			"number": "RB123456789CN",
			"stage":  "InTransit",
			"events": []interface{}{
				map[string]interface{}{
					"time":        "2026-03-10 14:30:00",
					"description": "Arrived at sorting center",
					"location":    "Shenzhen",
					"stage":       "InTransit",
				},
			},
		},
	}
	body, _ := json.Marshal(payload)

	result, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if result.Event != "TRACKING_UPDATED" {
		t.Fatalf("unexpected event: %s", result.Event)
	}
	if result.Data.Number != "RB123456789CN" {
		t.Fatalf("unexpected number: %s", result.Data.Number)
	}
	if result.Data.Stage != StageInTransit {
		t.Fatalf("unexpected stage: %s", result.Data.Stage)
	}
	if len(result.Data.Events) != 1 {
		t.Fatalf("events len want 1 got %d", len(result.Data.Events))
	}
}

func TestTrackEventParsedTime(t *testing.T) {
	event := TrackEvent{TimeISO: "2026-03-10T14:30:00Z"}
	parsed, ok := event.ParsedTime()
	if !ok {
		t.Fatalf("parse rfc3339 time failed")
	}
	if !parsed.Equal(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time: %v", parsed)
	}

	event = TrackEvent{TimeISO: "2026-03-10 14:30:00"}
	parsed, ok = event.ParsedTime()
	if !ok {
		t.Fatalf("parse plain time failed")
	}
	if !parsed.Equal(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time: %v", parsed)
	}

	event = TrackEvent{TimeISO: "not-a-time"}
	if _, ok := event.ParsedTime(); ok {
		t.Fatalf("expected parse failure")
	}
}
