package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"gorm.io/gorm"
)

// ShipmentEventService 运单事件账本服务
// 账本只追加：自动来源按 (来源, 事件类型, 事件时间毫秒) 去重，人工来源永不去重。
type ShipmentEventService struct {
	shipmentRepo repository.ShipmentRepository
	eventRepo    repository.ShipmentEventRepository
}

// NewShipmentEventService 创建运单事件服务
func NewShipmentEventService(
	shipmentRepo repository.ShipmentRepository,
	eventRepo repository.ShipmentEventRepository,
) *ShipmentEventService {
	return &ShipmentEventService{
		shipmentRepo: shipmentRepo,
		eventRepo:    eventRepo,
	}
}

// AddShipmentEventInput 追加事件输入
type AddShipmentEventInput struct {
	ShipmentID  uint
	EventType   string
	Source      string
	SourceID    string
	Status      string
	Description string
	Location    string
	EventTime   time.Time
	Metadata    models.JSON
	CreatedBy   uint
}

// AddEvent 追加运单事件。返回写入的事件与是否命中去重（命中时返回已存在的事件）。
func (s *ShipmentEventService) AddEvent(input AddShipmentEventInput) (*models.ShipmentEvent, bool, error) {
	if input.ShipmentID == 0 {
		return nil, false, ErrShipmentNotFound
	}
	shipment, err := s.shipmentRepo.GetByID(input.ShipmentID)
	if err != nil {
		return nil, false, ErrShipmentFetchFailed
	}
	if shipment == nil {
		return nil, false, ErrShipmentNotFound
	}
	return s.appendEvent(s.eventRepo, input)
}

// AddEventTx 在事务内追加运单事件，调用方保证运单存在且已加锁。
func (s *ShipmentEventService) AddEventTx(tx *gorm.DB, input AddShipmentEventInput) (*models.ShipmentEvent, bool, error) {
	if input.ShipmentID == 0 {
		return nil, false, ErrShipmentNotFound
	}
	return s.appendEvent(s.eventRepo.WithTx(tx), input)
}

// ListShipmentEvents 分页查询运单事件，按事件时间正序
func (s *ShipmentEventService) ListShipmentEvents(filter repository.ShipmentEventListFilter) ([]models.ShipmentEvent, int64, error) {
	if filter.ShipmentID == 0 {
		return nil, 0, ErrShipmentNotFound
	}
	shipment, err := s.shipmentRepo.GetByID(filter.ShipmentID)
	if err != nil {
		return nil, 0, ErrShipmentFetchFailed
	}
	if shipment == nil {
		return nil, 0, ErrShipmentNotFound
	}
	if filter.Source != "" && !isEventSourceSupported(filter.Source) {
		return nil, 0, ErrShipmentEventInvalid
	}
	return s.eventRepo.List(filter)
}

// ListAllByShipment 获取运单的完整事件账目，按事件时间正序
func (s *ShipmentEventService) ListAllByShipment(shipmentID uint) ([]models.ShipmentEvent, error) {
	if shipmentID == 0 {
		return nil, ErrShipmentNotFound
	}
	return s.eventRepo.ListAllByShipment(shipmentID)
}

// CountBySource 按来源统计运单事件数
func (s *ShipmentEventService) CountBySource(shipmentID uint) (map[string]int64, error) {
	if shipmentID == 0 {
		return nil, ErrShipmentNotFound
	}
	return s.eventRepo.CountBySource(shipmentID)
}

func (s *ShipmentEventService) appendEvent(repo repository.ShipmentEventRepository, input AddShipmentEventInput) (*models.ShipmentEvent, bool, error) {
	eventType := strings.ToLower(strings.TrimSpace(input.EventType))
	source := strings.ToLower(strings.TrimSpace(input.Source))
	if eventType == "" || !isEventSourceSupported(source) {
		return nil, false, ErrShipmentEventInvalid
	}

	eventTime := normalizeEventTime(input.EventTime)

	if isDedupedEventSource(source) {
		existing, err := repo.FindDuplicate(input.ShipmentID, source, eventType, eventTime)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	event := &models.ShipmentEvent{
		ShipmentID:  input.ShipmentID,
		EventType:   eventType,
		Source:      source,
		SourceID:    strings.TrimSpace(input.SourceID),
		Status:      strings.ToLower(strings.TrimSpace(input.Status)),
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		EventTime:   eventTime,
		Metadata:    input.Metadata,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   time.Now(),
	}
	if err := repo.Create(event); err != nil {
		return nil, false, ErrShipmentEventCreateFailed
	}
	return event, false, nil
}

// normalizeEventTime 事件时间统一截断到毫秒，零值回落到当前时间
func normalizeEventTime(eventTime time.Time) time.Time {
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	return eventTime.UTC().Truncate(time.Millisecond)
}

func isEventSourceSupported(source string) bool {
	switch source {
	case constants.EventSourceManual,
		constants.EventSourceAPISync,
		constants.EventSourceWebhook,
		constants.EventSourceUserAction:
		return true
	default:
		return false
	}
}

// isDedupedEventSource 自动来源允许去重，人工操作每次都记账
func isDedupedEventSource(source string) bool {
	return source == constants.EventSourceAPISync || source == constants.EventSourceWebhook
}

// formatAdminSourceID 事件 SourceID 统一记录操作者身份
func formatAdminSourceID(adminID uint) string {
	if adminID == 0 {
		return ""
	}
	return "admin:" + strconv.FormatUint(uint64(adminID), 10)
}

func formatUserSourceID(userID uint) string {
	if userID == 0 {
		return ""
	}
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}
