package carrier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier/shipengine"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
)

type shipEngineProvider struct {
	cfg shipengine.Config
}

func newShipEngineProvider(cfg config.ShipEngineConfig) *shipEngineProvider {
	adapted := shipengine.Config{
		APIKey:                  cfg.APIKey,
		WebhookSecret:           cfg.WebhookSecret,
		APIBaseURL:              cfg.BaseURL,
		TimeoutMS:               cfg.TimeoutMS,
		WebhookToleranceSeconds: cfg.ToleranceSeconds,
	}
	adapted.Normalize()
	return &shipEngineProvider{cfg: adapted}
}

// Name 返回 provider 标识
func (p *shipEngineProvider) Name() string {
	return constants.ProviderShipEngine
}

// FetchTracking 拉取并归一化承运商轨迹
func (p *shipEngineProvider) FetchTracking(ctx context.Context, courier, trackingNumber string) ([]TrackingUpdate, error) {
	result, err := shipengine.FetchTracking(ctx, &p.cfg, shipEngineCarrierCode(courier), trackingNumber)
	if err != nil {
		return nil, mapShipEngineError(err)
	}
	return mapShipEngineEvents(result.Events), nil
}

// VerifyAndParseWebhook 校验签名并归一化 webhook 通知
func (p *shipEngineProvider) VerifyAndParseWebhook(headers map[string]string, body []byte, now time.Time) (*WebhookEvent, error) {
	result, err := shipengine.VerifyAndParseWebhook(&p.cfg, headers, body, now)
	if err != nil {
		return nil, mapShipEngineError(err)
	}
	return &WebhookEvent{
		Provider:       constants.ProviderShipEngine,
		Courier:        courierFromShipEngineCode(result.CarrierCode),
		TrackingNumber: result.TrackingNumber,
		Updates:        mapShipEngineEvents(result.Events),
	}, nil
}

// shipEngineCarrierCode 内部承运商标识转 ShipEngine carrier_code
func shipEngineCarrierCode(courier string) string {
	switch strings.ToLower(strings.TrimSpace(courier)) {
	case constants.CourierFedex:
		return "fedex"
	case constants.CourierUPS:
		return "ups"
	case constants.CourierUSPS:
		return "stamps_com"
	case constants.CourierDHL:
		return "dhl_express"
	default:
		return strings.ToLower(strings.TrimSpace(courier))
	}
}

func courierFromShipEngineCode(carrierCode string) string {
	switch strings.ToLower(strings.TrimSpace(carrierCode)) {
	case "fedex":
		return constants.CourierFedex
	case "ups":
		return constants.CourierUPS
	case "stamps_com", "usps":
		return constants.CourierUSPS
	case "dhl_express", "dhl_ecommerce":
		return constants.CourierDHL
	default:
		return strings.ToLower(strings.TrimSpace(carrierCode))
	}
}

func mapShipEngineEvents(events []shipengine.TrackingEvent) []TrackingUpdate {
	updates := make([]TrackingUpdate, 0, len(events))
	for _, event := range events {
		status, eventType := mapShipEngineStatusCode(event.StatusCode)
		updates = append(updates, TrackingUpdate{
			EventType:   eventType,
			Status:      status,
			Description: event.Description,
			Location:    event.Location(),
			EventTime:   event.OccurredAt,
			SourceID:    event.EventID,
			Raw:         event.Raw,
		})
	}
	return updates
}

// mapShipEngineStatusCode 状态码映射：返回断言的运单状态（可为空）与事件类型
func mapShipEngineStatusCode(code string) (string, string) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "AC", "IT":
		return constants.ShipmentStatusInTransit, constants.EventTypeLocationUpdate
	case "OD":
		return constants.ShipmentStatusOutForDelivery, constants.EventTypeStatusChange
	case "DE", "SP":
		return constants.ShipmentStatusDelivered, constants.EventTypeStatusChange
	case "EX":
		return constants.ShipmentStatusException, constants.EventTypeStatusChange
	case "AT":
		return "", constants.EventTypeDeliveryAttempt
	default:
		// NY / UN 等不断言状态
		return "", constants.EventTypeLocationUpdate
	}
}

func mapShipEngineError(err error) error {
	switch {
	case errors.Is(err, shipengine.ErrTrackingNotFound):
		return fmt.Errorf("%w: %v", ErrTrackingNotFound, err)
	case errors.Is(err, shipengine.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, shipengine.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	case errors.Is(err, shipengine.ErrRequestFailed), errors.Is(err, shipengine.ErrConfigInvalid):
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
}
