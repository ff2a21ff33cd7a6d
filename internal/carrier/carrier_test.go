package carrier

import (
	"errors"
	"testing"

	"github.com/Juddanxavier/track-sub003/internal/carrier/seventeentrack"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
)

func TestNewByName(t *testing.T) {
	cfg := &config.CarriersConfig{
		Provider:   constants.ProviderShipEngine,
		ShipEngine: config.ShipEngineConfig{APIKey: "TEST_KEY"},
		SeventeenTrack: config.SeventeenTrackConfig{
			APIKey: "17TOKEN",
		},
	}

	provider, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider failed: %v", err)
	}
	if provider.Name() != constants.ProviderShipEngine {
		t.Fatalf("unexpected provider name: %s", provider.Name())
	}

	provider, err = NewByName(constants.ProviderSeventeenTrack, cfg)
	if err != nil {
		t.Fatalf("new 17track provider failed: %v", err)
	}
	if provider.Name() != constants.ProviderSeventeenTrack {
		t.Fatalf("unexpected provider name: %s", provider.Name())
	}

	if _, err := NewByName("pigeon_post", cfg); !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected ErrProviderUnknown, got %v", err)
	}
	if _, err := New(nil); !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected ErrProviderUnknown for nil config, got %v", err)
	}
}

func TestShipEngineCarrierCodeRoundTrip(t *testing.T) {
	cases := map[string]string{
		constants.CourierFedex: "fedex",
		constants.CourierUPS:   "ups",
		constants.CourierUSPS:  "stamps_com",
		constants.CourierDHL:   "dhl_express",
	}
	for courier, code := range cases {
		if got := shipEngineCarrierCode(courier); got != code {
			t.Fatalf("carrier code for %s want %s got %s", courier, code, got)
		}
		if got := courierFromShipEngineCode(code); got != courier {
			t.Fatalf("courier for %s want %s got %s", code, courier, got)
		}
	}
	if got := shipEngineCarrierCode("Aramex"); got != "aramex" {
		t.Fatalf("unknown courier should pass through lowercased, got %s", got)
	}
}

func TestMapShipEngineStatusCode(t *testing.T) {
	cases := []struct {
		code      string
		status    string
		eventType string
	}{
		{"AC", constants.ShipmentStatusInTransit, constants.EventTypeLocationUpdate},
		{"IT", constants.ShipmentStatusInTransit, constants.EventTypeLocationUpdate},
		{"OD", constants.ShipmentStatusOutForDelivery, constants.EventTypeStatusChange},
		{"DE", constants.ShipmentStatusDelivered, constants.EventTypeStatusChange},
		{"SP", constants.ShipmentStatusDelivered, constants.EventTypeStatusChange},
		{"EX", constants.ShipmentStatusException, constants.EventTypeStatusChange},
		{"AT", "", constants.EventTypeDeliveryAttempt},
		{"NY", "", constants.EventTypeLocationUpdate},
		{"UN", "", constants.EventTypeLocationUpdate},
	}
	for _, c := range cases {
		status, eventType := mapShipEngineStatusCode(c.code)
		if status != c.status || eventType != c.eventType {
			t.Fatalf("code %s want (%s,%s) got (%s,%s)", c.code, c.status, c.eventType, status, eventType)
		}
	}
}

func TestMapSeventeenTrackStage(t *testing.T) {
	cases := []struct {
		stage     string
		status    string
		eventType string
	}{
		{seventeentrack.StageInTransit, constants.ShipmentStatusInTransit, constants.EventTypeLocationUpdate},
		{seventeentrack.StageOutForDelivery, constants.ShipmentStatusOutForDelivery, constants.EventTypeStatusChange},
		{seventeentrack.StageDelivered, constants.ShipmentStatusDelivered, constants.EventTypeStatusChange},
		{seventeentrack.StageException, constants.ShipmentStatusException, constants.EventTypeStatusChange},
		{seventeentrack.StageExpired, constants.ShipmentStatusException, constants.EventTypeStatusChange},
		{seventeentrack.StageDeliveryFailure, "", constants.EventTypeDeliveryAttempt},
		{seventeentrack.StageInfoReceived, "", constants.EventTypeLocationUpdate},
	}
	for _, c := range cases {
		status, eventType := mapSeventeenTrackStage(c.stage)
		if status != c.status || eventType != c.eventType {
			t.Fatalf("stage %s want (%s,%s) got (%s,%s)", c.stage, c.status, c.eventType, status, eventType)
		}
	}
}
