package carrier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier/seventeentrack"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
)

type seventeenTrackProvider struct {
	cfg seventeentrack.Config
}

func newSeventeenTrackProvider(cfg config.SeventeenTrackConfig) *seventeenTrackProvider {
	adapted := seventeentrack.Config{
		APIKey:        cfg.APIKey,
		WebhookSecret: cfg.WebhookSecret,
		BaseURL:       cfg.BaseURL,
		TimeoutMS:     cfg.TimeoutMS,
	}
	adapted.Normalize()
	return &seventeenTrackProvider{cfg: adapted}
}

// Name 返回 provider 标识
func (p *seventeenTrackProvider) Name() string {
	return constants.ProviderSeventeenTrack
}

// FetchTracking 拉取并归一化承运商轨迹
func (p *seventeenTrackProvider) FetchTracking(ctx context.Context, courier, trackingNumber string) ([]TrackingUpdate, error) {
	info, err := seventeentrack.FetchTracking(ctx, &p.cfg, strings.ToLower(strings.TrimSpace(courier)), trackingNumber)
	if err != nil {
		return nil, mapSeventeenTrackError(err)
	}
	return mapSeventeenTrackEvents(info.Events), nil
}

// VerifyAndParseWebhook 校验签名并归一化 webhook 通知
func (p *seventeenTrackProvider) VerifyAndParseWebhook(headers map[string]string, body []byte, now time.Time) (*WebhookEvent, error) {
	if err := seventeentrack.VerifyWebhook(&p.cfg, headers, body); err != nil {
		return nil, mapSeventeenTrackError(err)
	}
	payload, err := seventeentrack.ParseWebhook(body)
	if err != nil {
		return nil, mapSeventeenTrackError(err)
	}
	return &WebhookEvent{
		Provider:       constants.ProviderSeventeenTrack,
		TrackingNumber: strings.TrimSpace(payload.Data.Number),
		Updates:        mapSeventeenTrackEvents(payload.Data.Events),
	}, nil
}

func mapSeventeenTrackEvents(events []seventeentrack.TrackEvent) []TrackingUpdate {
	updates := make([]TrackingUpdate, 0, len(events))
	for _, event := range events {
		eventTime, ok := event.ParsedTime()
		if !ok {
			continue
		}
		status, eventType := mapSeventeenTrackStage(event.Stage)
		updates = append(updates, TrackingUpdate{
			EventType:   eventType,
			Status:      status,
			Description: strings.TrimSpace(event.Description),
			Location:    strings.TrimSpace(event.Location),
			EventTime:   eventTime,
		})
	}
	return updates
}

// mapSeventeenTrackStage 阶段映射：返回断言的运单状态（可为空）与事件类型
func mapSeventeenTrackStage(stage string) (string, string) {
	switch strings.TrimSpace(stage) {
	case seventeentrack.StageInTransit:
		return constants.ShipmentStatusInTransit, constants.EventTypeLocationUpdate
	case seventeentrack.StageOutForDelivery:
		return constants.ShipmentStatusOutForDelivery, constants.EventTypeStatusChange
	case seventeentrack.StageDelivered:
		return constants.ShipmentStatusDelivered, constants.EventTypeStatusChange
	case seventeentrack.StageException, seventeentrack.StageExpired:
		return constants.ShipmentStatusException, constants.EventTypeStatusChange
	case seventeentrack.StageDeliveryFailure:
		return "", constants.EventTypeDeliveryAttempt
	default:
		// InfoReceived 等不断言状态
		return "", constants.EventTypeLocationUpdate
	}
}

func mapSeventeenTrackError(err error) error {
	switch {
	case errors.Is(err, seventeentrack.ErrTrackingNotFound):
		return fmt.Errorf("%w: %v", ErrTrackingNotFound, err)
	case errors.Is(err, seventeentrack.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, seventeentrack.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
}
