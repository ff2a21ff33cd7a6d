package carrier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
)

// 统一错误类别，服务层按类别映射响应；具体适配器错误包裹在底层。
var (
	ErrProviderUnknown  = errors.New("carrier provider unknown")
	ErrRequestFailed    = errors.New("carrier request failed")
	ErrResponseInvalid  = errors.New("carrier response invalid")
	ErrSignatureInvalid = errors.New("carrier signature invalid")
	ErrTrackingNotFound = errors.New("carrier tracking not found")
)

// TrackingUpdate 归一化后的承运商事件
type TrackingUpdate struct {
	EventType   string                 // 事件类型（status_change/location_update/delivery_attempt）
	Status      string                 // 推导出的运单状态，空表示不断言状态
	Description string                 // 事件描述
	Location    string                 // 事件发生地
	EventTime   time.Time              // 事件发生时间
	SourceID    string                 // 承运商侧事件ID
	Raw         map[string]interface{} // 原始载荷
}

// WebhookEvent 归一化后的 webhook 通知
type WebhookEvent struct {
	Provider       string
	Courier        string
	TrackingNumber string
	Updates        []TrackingUpdate
}

// Provider 承运商数据源
type Provider interface {
	Name() string
	FetchTracking(ctx context.Context, courier, trackingNumber string) ([]TrackingUpdate, error)
	VerifyAndParseWebhook(headers map[string]string, body []byte, now time.Time) (*WebhookEvent, error)
}

// New 根据配置中的 provider 名称创建承运商数据源
func New(cfg *config.CarriersConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: carriers config is nil", ErrProviderUnknown)
	}
	return NewByName(cfg.Provider, cfg)
}

// NewByName 创建指定承运商数据源。仅支持注册表内的 provider。
func NewByName(name string, cfg *config.CarriersConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: carriers config is nil", ErrProviderUnknown)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case constants.ProviderShipEngine:
		return newShipEngineProvider(cfg.ShipEngine), nil
	case constants.ProviderSeventeenTrack:
		return newSeventeenTrackProvider(cfg.SeventeenTrack), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
}
