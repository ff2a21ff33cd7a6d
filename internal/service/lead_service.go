package service

import (
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LeadService 询盘线索服务
type LeadService struct {
	leadRepo    repository.LeadRepository
	shipmentSvc *ShipmentService
	queueClient *queue.Client
}

// NewLeadService 创建线索服务
func NewLeadService(
	leadRepo repository.LeadRepository,
	shipmentSvc *ShipmentService,
	queueClient *queue.Client,
) *LeadService {
	return &LeadService{
		leadRepo:    leadRepo,
		shipmentSvc: shipmentSvc,
		queueClient: queueClient,
	}
}

// CreateLeadInput 创建线索入参
type CreateLeadInput struct {
	Name               string
	Email              string
	Phone              string
	Company            string
	OriginCountry      string
	DestinationCountry string
	EstimatedWeight    decimal.Decimal
	EstimatedValue     decimal.Decimal
	Notes              string
	AssignedAdminID    *uint
	CreatedBy          uint
}

// UpdateLeadInput 更新线索入参，nil 字段表示不修改
type UpdateLeadInput struct {
	Name               *string
	Email              *string
	Phone              *string
	Company            *string
	OriginCountry      *string
	DestinationCountry *string
	EstimatedWeight    *decimal.Decimal
	EstimatedValue     *decimal.Decimal
	Notes              *string
	Status             *string
	AssignedAdminID    *uint
}

// ConvertLeadInput 线索转运单入参
type ConvertLeadInput struct {
	OriginAddress      string
	DestinationAddress string
	ShippingMethod     string
	Weight             *decimal.Decimal
	DeclaredValue      *decimal.Decimal
	ShippingCost       *decimal.Decimal
	EstimatedDelivery  *time.Time
	AdminID            uint
}

// CreateLead 创建线索
func (s *LeadService) CreateLead(input CreateLeadInput) (*models.Lead, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || email == "" {
		return nil, ErrLeadInvalid
	}

	lead := &models.Lead{
		Name:               name,
		Email:              email,
		Phone:              strings.TrimSpace(input.Phone),
		Company:            strings.TrimSpace(input.Company),
		OriginCountry:      strings.TrimSpace(input.OriginCountry),
		DestinationCountry: strings.TrimSpace(input.DestinationCountry),
		EstimatedWeight:    input.EstimatedWeight,
		EstimatedValue:     models.NewMoneyFromDecimal(input.EstimatedValue),
		Status:             constants.LeadStatusNew,
		Notes:              strings.TrimSpace(input.Notes),
		AssignedAdminID:    input.AssignedAdminID,
		CreatedBy:          input.CreatedBy,
	}
	if err := s.leadRepo.Create(lead); err != nil {
		return nil, ErrLeadCreateFailed
	}
	return lead, nil
}

// GetLead 获取线索
func (s *LeadService) GetLead(id uint) (*models.Lead, error) {
	lead, err := s.leadRepo.GetByID(id)
	if err != nil {
		return nil, ErrLeadFetchFailed
	}
	if lead == nil {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

// ListLeads 分页查询线索
func (s *LeadService) ListLeads(filter repository.LeadListFilter) ([]models.Lead, int64, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	leads, total, err := s.leadRepo.List(filter)
	if err != nil {
		return nil, 0, ErrLeadFetchFailed
	}
	return leads, total, nil
}

// UpdateLead 更新线索。converted 状态只能由转化流程写入。
func (s *LeadService) UpdateLead(id uint, input UpdateLeadInput) (*models.Lead, error) {
	lead, err := s.GetLead(id)
	if err != nil {
		return nil, err
	}
	if lead.Status == constants.LeadStatusConverted {
		return nil, ErrLeadAlreadyConverted
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrLeadInvalid
		}
		lead.Name = name
	}
	if input.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*input.Email))
		if email == "" {
			return nil, ErrLeadInvalid
		}
		lead.Email = email
	}
	if input.Phone != nil {
		lead.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Company != nil {
		lead.Company = strings.TrimSpace(*input.Company)
	}
	if input.OriginCountry != nil {
		lead.OriginCountry = strings.TrimSpace(*input.OriginCountry)
	}
	if input.DestinationCountry != nil {
		lead.DestinationCountry = strings.TrimSpace(*input.DestinationCountry)
	}
	if input.EstimatedWeight != nil {
		lead.EstimatedWeight = *input.EstimatedWeight
	}
	if input.EstimatedValue != nil {
		lead.EstimatedValue = models.NewMoneyFromDecimal(*input.EstimatedValue)
	}
	if input.Notes != nil {
		lead.Notes = strings.TrimSpace(*input.Notes)
	}
	if input.AssignedAdminID != nil {
		lead.AssignedAdminID = input.AssignedAdminID
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		if !isLeadStatusEditable(status) {
			return nil, ErrLeadInvalid
		}
		lead.Status = status
	}

	if err := s.leadRepo.Update(lead); err != nil {
		return nil, ErrLeadUpdateFailed
	}
	return lead, nil
}

// DeleteLead 软删除线索
func (s *LeadService) DeleteLead(id uint) error {
	if _, err := s.GetLead(id); err != nil {
		return err
	}
	if err := s.leadRepo.Delete(id); err != nil {
		return ErrLeadUpdateFailed
	}
	return nil
}

// CountByStatus 按状态统计线索数
func (s *LeadService) CountByStatus() (map[string]int64, error) {
	counts, err := s.leadRepo.CountByStatus()
	if err != nil {
		return nil, ErrLeadFetchFailed
	}
	return counts, nil
}

// ConvertLead 线索转运单。加行锁防止并发重复转化，
// 运单创建、建单事件与线索状态翻转在同一事务内完成。
func (s *LeadService) ConvertLead(leadID uint, input ConvertLeadInput) (*models.Lead, *models.Shipment, error) {
	code, err := s.shipmentSvc.newTrackingCode()
	if err != nil {
		return nil, nil, err
	}

	var (
		lead     *models.Lead
		shipment *models.Shipment
	)
	err = s.leadRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.leadRepo.WithTx(tx)
		locked, err := repo.GetByIDForUpdate(leadID)
		if err != nil {
			return ErrLeadFetchFailed
		}
		if locked == nil {
			return ErrLeadNotFound
		}
		if locked.Status == constants.LeadStatusConverted || locked.ShipmentID != nil {
			return ErrLeadAlreadyConverted
		}

		now := time.Now()
		created := &models.Shipment{
			TrackingCode:             code,
			TrackingAssignmentStatus: constants.TrackingAssignmentUnassigned,
			Status:                   constants.ShipmentStatusPending,
			CustomerName:             locked.Name,
			CustomerEmail:            locked.Email,
			CustomerPhone:            locked.Phone,
			OriginAddress:            strings.TrimSpace(input.OriginAddress),
			OriginCountry:            locked.OriginCountry,
			DestinationAddress:       strings.TrimSpace(input.DestinationAddress),
			DestinationCountry:       locked.DestinationCountry,
			ShippingMethod:           strings.TrimSpace(input.ShippingMethod),
			Weight:                   locked.EstimatedWeight,
			DeclaredValue:            locked.EstimatedValue,
			EstimatedDelivery:        input.EstimatedDelivery,
			LeadID:                   &locked.ID,
			UserAssignmentStatus:     constants.UserAssignmentUnassigned,
			CreatedBy:                input.AdminID,
		}
		if input.Weight != nil {
			created.Weight = *input.Weight
		}
		if input.DeclaredValue != nil {
			created.DeclaredValue = models.NewMoneyFromDecimal(*input.DeclaredValue)
		}
		if input.ShippingCost != nil {
			created.ShippingCost = models.NewMoneyFromDecimal(*input.ShippingCost)
		}
		if err := s.shipmentSvc.createShipmentTx(tx, created, now); err != nil {
			return err
		}

		locked.Status = constants.LeadStatusConverted
		locked.ConvertedAt = &now
		locked.ShipmentID = &created.ID
		locked.UpdatedAt = now
		if err := repo.Update(locked); err != nil {
			return ErrLeadUpdateFailed
		}

		lead = locked
		shipment = created
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.notifyLeadConverted(lead, shipment)
	return lead, shipment, nil
}

func (s *LeadService) notifyLeadConverted(lead *models.Lead, shipment *models.Shipment) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventLeadConverted,
		BizType: constants.NotificationBizTypeLead,
		BizID:   lead.ID,
		Data: map[string]interface{}{
			"lead_name":     lead.Name,
			"tracking_code": shipment.TrackingCode,
		},
	})
	if err != nil {
		logger.Warnw("lead_notify_enqueue_failed",
			"lead_id", lead.ID,
			"event", constants.NotificationEventLeadConverted,
			"error", err,
		)
	}
}

// isLeadStatusEditable 手工可设置的线索状态（converted 除外）
func isLeadStatusEditable(status string) bool {
	switch status {
	case constants.LeadStatusNew,
		constants.LeadStatusContacted,
		constants.LeadStatusQualified,
		constants.LeadStatusClosed:
		return true
	default:
		return false
	}
}
