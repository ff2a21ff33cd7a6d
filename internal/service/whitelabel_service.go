package service

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
)

// publicEventTypes 允许对外展示的事件类型
var publicEventTypes = map[string]bool{
	constants.EventTypeShipmentCreated: true,
	constants.EventTypeStatusChange:    true,
	constants.EventTypeLocationUpdate:  true,
	constants.EventTypeDeliveryAttempt: true,
}

// publicEventFallbacks 文本清洗后为空时按事件类型回落的通用描述
var publicEventFallbacks = map[string]string{
	constants.EventTypeShipmentCreated: "Shipment created",
	constants.EventTypeStatusChange:    "Shipment status updated",
	constants.EventTypeLocationUpdate:  "Package in transit",
	constants.EventTypeDeliveryAttempt: "Delivery attempted",
}

const publicEventDefaultDescription = "Tracking update"

// 文本清洗规则。顺序有意义：先抹承运商品牌，再抹场站，再抹嵌入的单号与工号。
var (
	carrierBrandPattern = regexp.MustCompile(`(?i)\b(fedex|federal express|ups|united parcel service|usps|u\.?s\.? postal service|dhl(?: express)?)\b`)

	facilityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b[a-z]+\s+hub\b`),
		regexp.MustCompile(`(?i)\bdistribution cent(?:er|re)\b`),
		regexp.MustCompile(`(?i)\bsort(?:ation)?\s+facility\b`),
		regexp.MustCompile(`(?i)\bdepot\b`),
		regexp.MustCompile(`(?i)\b[a-z]{3}\s+gateway\b`),
	}

	embeddedTrackingNumberPattern = regexp.MustCompile(`\b(1Z[0-9A-Za-z]{16}|\d{10,22})\b`)
	staffIdentifierPattern        = regexp.MustCompile(`(?i)\b(employee|driver|courier)\s*(?:id|number|no\.?)?\s*[:#]?\s*\d[a-z0-9-]*`)
	whitespacePattern             = regexp.MustCompile(`\s+`)
)

const facilityReplacement = "regional facility"
const carrierReplacement = "carrier"

// PublicTrackingEvent 对外展示的跟踪事件
type PublicTrackingEvent struct {
	EventType   string    `json:"event_type"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	EventTime   time.Time `json:"event_time"`
}

// PublicTrackingView 公开跟踪视图。只从运单与事件即时推导，永不落库。
type PublicTrackingView struct {
	TrackingCode      string                `json:"tracking_code"`
	Status            string                `json:"status"`
	Carrier           string                `json:"carrier"`
	TrackingNumber    string                `json:"tracking_number"`
	EstimatedDelivery *time.Time            `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time            `json:"actual_delivery,omitempty"`
	Events            []PublicTrackingEvent `json:"events"`
}

// WhiteLabelService 公开跟踪白标过滤。纯函数，不做任何 I/O。
type WhiteLabelService struct {
	hideCarrierInfo    bool
	maskTrackingNumber bool
}

// NewWhiteLabelService 创建白标过滤服务
func NewWhiteLabelService(cfg *config.WhiteLabelConfig) *WhiteLabelService {
	svc := &WhiteLabelService{hideCarrierInfo: true}
	if cfg != nil {
		svc.hideCarrierInfo = cfg.HideCarrierInfo
		svc.maskTrackingNumber = cfg.MaskTrackingNumber
	}
	return svc
}

// SanitizeShipmentForPublic 把内部运单与事件转换为对外视图。
// 内部跟踪码若撞上承运商单号格式则直接拒绝，防止录入事故泄露承运商身份。
func (s *WhiteLabelService) SanitizeShipmentForPublic(shipment *models.Shipment, events []models.ShipmentEvent) (*PublicTrackingView, error) {
	if shipment == nil {
		return nil, ErrShipmentNotFound
	}
	if matchesCarrierNumberFormat(shipment.TrackingCode) {
		return nil, ErrTrackingCodeUnsafe
	}

	view := &PublicTrackingView{
		TrackingCode:      shipment.TrackingCode,
		Status:            shipment.Status,
		Carrier:           s.maskCarrierName(shipment.Courier),
		TrackingNumber:    s.maskTrackingValue(shipment.TrackingNumber),
		EstimatedDelivery: shipment.EstimatedDelivery,
		ActualDelivery:    shipment.ActualDelivery,
		Events:            make([]PublicTrackingEvent, 0, len(events)),
	}

	for _, event := range events {
		if !publicEventTypes[event.EventType] {
			continue
		}
		view.Events = append(view.Events, PublicTrackingEvent{
			EventType:   event.EventType,
			Status:      event.Status,
			Description: scrubPublicText(event.Description, fallbackDescription(event.EventType)),
			Location:    scrubPublicText(event.Location, ""),
			EventTime:   event.EventTime,
		})
	}
	sort.SliceStable(view.Events, func(i, j int) bool {
		return view.Events[i].EventTime.Before(view.Events[j].EventTime)
	})
	return view, nil
}

func (s *WhiteLabelService) maskCarrierName(courier string) string {
	courier = strings.TrimSpace(courier)
	if courier == "" {
		return constants.MaskedCarrierName
	}
	if s.hideCarrierInfo {
		return constants.MaskedCarrierName
	}
	return courier
}

func (s *WhiteLabelService) maskTrackingValue(trackingNumber string) string {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return constants.MaskedTrackingNumberHidden
	}
	if s.maskTrackingNumber {
		return partialMask(trackingNumber)
	}
	if s.hideCarrierInfo {
		return constants.MaskedTrackingNumberHidden
	}
	return trackingNumber
}

// partialMask 保留首尾各两位，中间以星号代替
func partialMask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// scrubPublicText 公开文本清洗：抹掉承运商品牌、场站名、嵌入单号与人员工号，
// 清洗后为空则回落到通用描述。
func scrubPublicText(text, fallback string) string {
	result := carrierBrandPattern.ReplaceAllString(text, carrierReplacement)
	for _, pattern := range facilityPatterns {
		result = pattern.ReplaceAllString(result, facilityReplacement)
	}
	result = embeddedTrackingNumberPattern.ReplaceAllString(result, "")
	result = staffIdentifierPattern.ReplaceAllString(result, "")
	result = whitespacePattern.ReplaceAllString(result, " ")
	result = strings.Trim(result, " \t,;:.-")
	if result == "" {
		return fallback
	}
	return result
}

func fallbackDescription(eventType string) string {
	if fallback, ok := publicEventFallbacks[eventType]; ok {
		return fallback
	}
	return publicEventDefaultDescription
}
