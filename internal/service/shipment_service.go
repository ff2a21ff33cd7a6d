package service

import (
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShipmentService 运单服务
type ShipmentService struct {
	shipmentRepo repository.ShipmentRepository
	eventSvc     *ShipmentEventService
	trackingSvc  *TrackingService
	queueClient  *queue.Client
	transitions  TransitionTable
}

// NewShipmentService 创建运单服务
func NewShipmentService(
	shipmentRepo repository.ShipmentRepository,
	eventSvc *ShipmentEventService,
	trackingSvc *TrackingService,
	queueClient *queue.Client,
) *ShipmentService {
	return &ShipmentService{
		shipmentRepo: shipmentRepo,
		eventSvc:     eventSvc,
		trackingSvc:  trackingSvc,
		queueClient:  queueClient,
		transitions:  DefaultTransitionTable(),
	}
}

// CreateShipmentInput 创建运单入参
type CreateShipmentInput struct {
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	OriginAddress      string
	OriginCountry      string
	DestinationAddress string
	DestinationCountry string
	ShippingMethod     string
	Weight             decimal.Decimal
	DeclaredValue      decimal.Decimal
	ShippingCost       decimal.Decimal
	EstimatedDelivery  *time.Time
	Courier            string
	TrackingNumber     string
	LeadID             *uint
	UserID             *uint
	CreatedBy          uint
}

// UpdateShipmentInput 更新运单入参，nil 字段表示不修改
type UpdateShipmentInput struct {
	CustomerName       *string
	CustomerEmail      *string
	CustomerPhone      *string
	OriginAddress      *string
	OriginCountry      *string
	DestinationAddress *string
	DestinationCountry *string
	ShippingMethod     *string
	Weight             *decimal.Decimal
	DeclaredValue      *decimal.Decimal
	ShippingCost       *decimal.Decimal
	EstimatedDelivery  *time.Time
}

// ShipmentDetail 运单详情（含事件账目）
type ShipmentDetail struct {
	Shipment    *models.Shipment       `json:"shipment"`
	Events      []models.ShipmentEvent `json:"events"`
	EventCounts map[string]int64       `json:"event_counts"`
}

// CreateShipment 创建运单。携带承运商单号时在同一事务内完成绑定。
func (s *ShipmentService) CreateShipment(input CreateShipmentInput) (*models.Shipment, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, ErrShipmentInvalid
	}
	courier := normalizeCourier(input.Courier)
	trackingNumber := normalizeTrackingNumber(input.TrackingNumber)
	if trackingNumber != "" {
		if err := s.trackingSvc.ValidateTrackingNumberFormat(courier, trackingNumber); err != nil {
			return nil, err
		}
	}

	code, err := s.newTrackingCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	shipment := &models.Shipment{
		TrackingCode:             code,
		TrackingAssignmentStatus: constants.TrackingAssignmentUnassigned,
		Status:                   constants.ShipmentStatusPending,
		CustomerName:             name,
		CustomerEmail:            strings.TrimSpace(strings.ToLower(input.CustomerEmail)),
		CustomerPhone:            strings.TrimSpace(input.CustomerPhone),
		OriginAddress:            strings.TrimSpace(input.OriginAddress),
		OriginCountry:            strings.TrimSpace(input.OriginCountry),
		DestinationAddress:       strings.TrimSpace(input.DestinationAddress),
		DestinationCountry:       strings.TrimSpace(input.DestinationCountry),
		ShippingMethod:           strings.TrimSpace(input.ShippingMethod),
		Weight:                   input.Weight,
		DeclaredValue:            models.NewMoneyFromDecimal(input.DeclaredValue),
		ShippingCost:             models.NewMoneyFromDecimal(input.ShippingCost),
		EstimatedDelivery:        input.EstimatedDelivery,
		UserID:                   input.UserID,
		LeadID:                   input.LeadID,
		UserAssignmentStatus:     constants.UserAssignmentUnassigned,
		CreatedBy:                input.CreatedBy,
	}

	err = s.shipmentRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.createShipmentTx(tx, shipment, now); err != nil {
			return err
		}
		if trackingNumber == "" {
			return nil
		}
		return s.trackingSvc.assignWithinTx(tx, shipment, courier, trackingNumber, shipment.ShippingMethod, input.CreatedBy, now)
	})
	if err != nil {
		return nil, err
	}

	if shipment.TrackingAssignmentStatus == constants.TrackingAssignmentAssigned {
		enqueueCarrierSync(s.queueClient, shipment.ID)
	}
	return shipment, nil
}

// createShipmentTx 事务内创建运单并记录建单事件，供线索转化复用。
func (s *ShipmentService) createShipmentTx(tx *gorm.DB, shipment *models.Shipment, now time.Time) error {
	repo := s.shipmentRepo.WithTx(tx)
	if err := repo.Create(shipment); err != nil {
		return ErrShipmentCreateFailed
	}
	if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
		ShipmentID:  shipment.ID,
		EventType:   constants.EventTypeShipmentCreated,
		Source:      constants.EventSourceManual,
		SourceID:    formatAdminSourceID(shipment.CreatedBy),
		Status:      shipment.Status,
		Description: "shipment created",
		EventTime:   now,
		CreatedBy:   shipment.CreatedBy,
	}); err != nil {
		return err
	}
	return nil
}

// GetShipment 获取运单
func (s *ShipmentService) GetShipment(id uint) (*models.Shipment, error) {
	shipment, err := s.shipmentRepo.GetByID(id)
	if err != nil {
		return nil, ErrShipmentFetchFailed
	}
	if shipment == nil {
		return nil, ErrShipmentNotFound
	}
	return shipment, nil
}

// GetShipmentByTrackingCode 根据内部跟踪码获取运单
func (s *ShipmentService) GetShipmentByTrackingCode(code string) (*models.Shipment, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrShipmentNotFound
	}
	shipment, err := s.shipmentRepo.GetByTrackingCode(code)
	if err != nil {
		return nil, ErrShipmentFetchFailed
	}
	if shipment == nil {
		return nil, ErrShipmentNotFound
	}
	return shipment, nil
}

// GetShipmentDetail 获取运单详情与完整事件账目
func (s *ShipmentService) GetShipmentDetail(id uint) (*ShipmentDetail, error) {
	shipment, err := s.GetShipment(id)
	if err != nil {
		return nil, err
	}
	events, err := s.eventSvc.ListAllByShipment(shipment.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.eventSvc.CountBySource(shipment.ID)
	if err != nil {
		return nil, err
	}
	return &ShipmentDetail{
		Shipment:    shipment,
		Events:      events,
		EventCounts: counts,
	}, nil
}

// ListShipments 分页查询运单
func (s *ShipmentService) ListShipments(filter repository.ShipmentListFilter) ([]models.Shipment, int64, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Status = normalizeShipmentStatus(filter.Status)
	filter.Courier = normalizeCourier(filter.Courier)
	shipments, total, err := s.shipmentRepo.List(filter)
	if err != nil {
		return nil, 0, ErrShipmentFetchFailed
	}
	return shipments, total, nil
}

// UpdateShipment 更新运单的客户与路线信息
func (s *ShipmentService) UpdateShipment(id uint, input UpdateShipmentInput) (*models.Shipment, error) {
	shipment, err := s.GetShipment(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.CustomerName != nil {
		name := strings.TrimSpace(*input.CustomerName)
		if name == "" {
			return nil, ErrShipmentInvalid
		}
		updates["customer_name"] = name
	}
	if input.CustomerEmail != nil {
		updates["customer_email"] = strings.TrimSpace(strings.ToLower(*input.CustomerEmail))
	}
	if input.CustomerPhone != nil {
		updates["customer_phone"] = strings.TrimSpace(*input.CustomerPhone)
	}
	if input.OriginAddress != nil {
		updates["origin_address"] = strings.TrimSpace(*input.OriginAddress)
	}
	if input.OriginCountry != nil {
		updates["origin_country"] = strings.TrimSpace(*input.OriginCountry)
	}
	if input.DestinationAddress != nil {
		updates["destination_address"] = strings.TrimSpace(*input.DestinationAddress)
	}
	if input.DestinationCountry != nil {
		updates["destination_country"] = strings.TrimSpace(*input.DestinationCountry)
	}
	if input.ShippingMethod != nil {
		updates["shipping_method"] = strings.TrimSpace(*input.ShippingMethod)
	}
	if input.Weight != nil {
		updates["weight"] = *input.Weight
	}
	if input.DeclaredValue != nil {
		updates["declared_value"] = models.NewMoneyFromDecimal(*input.DeclaredValue)
	}
	if input.ShippingCost != nil {
		updates["shipping_cost"] = models.NewMoneyFromDecimal(*input.ShippingCost)
	}
	if input.EstimatedDelivery != nil {
		updates["estimated_delivery"] = *input.EstimatedDelivery
	}
	if len(updates) == 0 {
		return shipment, nil
	}
	updates["updated_at"] = time.Now()

	if err := s.shipmentRepo.UpdateFields(shipment.ID, updates); err != nil {
		return nil, ErrShipmentUpdateFailed
	}
	return s.GetShipment(shipment.ID)
}

// DeleteShipment 软删除运单。未到终态时仅允许管理员强制删除。
func (s *ShipmentService) DeleteShipment(id uint, force bool) error {
	shipment, err := s.GetShipment(id)
	if err != nil {
		return err
	}
	if !shipment.IsTerminal() && !force {
		return ErrShipmentDeleteNotAllowed
	}
	if err := s.shipmentRepo.Delete(shipment.ID); err != nil {
		return ErrShipmentUpdateFailed
	}
	return nil
}

// MarkReviewed 将需要复核的运单标记为已处理
func (s *ShipmentService) MarkReviewed(id uint) (*models.Shipment, error) {
	shipment, err := s.GetShipment(id)
	if err != nil {
		return nil, err
	}
	if !shipment.NeedsReview {
		return shipment, nil
	}
	if err := s.shipmentRepo.UpdateFields(shipment.ID, map[string]interface{}{
		"needs_review": false,
		"updated_at":   time.Now(),
	}); err != nil {
		return nil, ErrShipmentUpdateFailed
	}
	return s.GetShipment(shipment.ID)
}

// newTrackingCode 生成未被占用的内部跟踪码，并排除与承运商单号撞形的结果。
func (s *ShipmentService) newTrackingCode() (string, error) {
	for i := 0; i < 5; i++ {
		code := generateTrackingCode()
		if matchesCarrierNumberFormat(code) {
			continue
		}
		existing, err := s.shipmentRepo.GetByTrackingCode(code)
		if err != nil {
			return "", ErrShipmentFetchFailed
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ErrShipmentCreateFailed
}
