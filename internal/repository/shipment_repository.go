package repository

import (
	"errors"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShipmentRepository 运单数据访问接口
type ShipmentRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormShipmentRepository
	Create(shipment *models.Shipment) error
	GetByID(id uint) (*models.Shipment, error)
	GetByIDForUpdate(id uint) (*models.Shipment, error)
	GetByTrackingCode(code string) (*models.Shipment, error)
	GetByCarrierTracking(courier, trackingNumber string) (*models.Shipment, error)
	GetByCarrierTrackingForUpdate(courier, trackingNumber string) (*models.Shipment, error)
	Update(shipment *models.Shipment) error
	UpdateFields(id uint, fields map[string]interface{}) error
	Delete(id uint) error
	List(filter ShipmentListFilter) ([]models.Shipment, int64, error)
	ListDueForSync(staleBefore time.Time, limit int) ([]models.Shipment, error)
	ListByUser(userID uint) ([]models.Shipment, error)
}

// GormShipmentRepository GORM 实现
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewShipmentRepository 创建运单仓库
func NewShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// Transaction 执行事务
func (r *GormShipmentRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormShipmentRepository) WithTx(tx *gorm.DB) *GormShipmentRepository {
	if tx == nil {
		return r
	}
	return &GormShipmentRepository{db: tx}
}

// Create 创建运单
func (r *GormShipmentRepository) Create(shipment *models.Shipment) error {
	return r.db.Create(shipment).Error
}

// GetByID 根据 ID 获取运单
func (r *GormShipmentRepository) GetByID(id uint) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.First(&shipment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// GetByIDForUpdate 根据 ID 获取运单并加行锁（需在事务内调用）
func (r *GormShipmentRepository) GetByIDForUpdate(id uint) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&shipment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// GetByTrackingCode 根据内部跟踪码获取运单
func (r *GormShipmentRepository) GetByTrackingCode(code string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.Where("tracking_code = ?", code).First(&shipment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// GetByCarrierTracking 根据 (承运商, 运单号) 获取运单
func (r *GormShipmentRepository) GetByCarrierTracking(courier, trackingNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.Where("courier = ? AND tracking_number = ?", courier, trackingNumber).
		First(&shipment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// GetByCarrierTrackingForUpdate 根据 (承运商, 运单号) 获取运单并加行锁（需在事务内调用）
func (r *GormShipmentRepository) GetByCarrierTrackingForUpdate(courier, trackingNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("courier = ? AND tracking_number = ?", courier, trackingNumber).
		First(&shipment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// Update 更新运单
func (r *GormShipmentRepository) Update(shipment *models.Shipment) error {
	return r.db.Save(shipment).Error
}

// UpdateFields 部分字段更新
func (r *GormShipmentRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	if id == 0 || len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Shipment{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除运单（软删除）
func (r *GormShipmentRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.Shipment{}, id).Error
}

// List 运单列表
func (r *GormShipmentRepository) List(filter ShipmentListFilter) ([]models.Shipment, int64, error) {
	query := r.db.Model(&models.Shipment{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Courier != "" {
		query = query.Where("courier = ?", filter.Courier)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.LeadID > 0 {
		query = query.Where("lead_id = ?", filter.LeadID)
	}
	if filter.NeedsReview != nil {
		query = query.Where("needs_review = ?", *filter.NeedsReview)
	}
	if filter.TrackingAssignmentStatus != "" {
		query = query.Where("tracking_assignment_status = ?", filter.TrackingAssignmentStatus)
	}
	if filter.UserAssignmentStatus != "" {
		query = query.Where("user_assignment_status = ?", filter.UserAssignmentStatus)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		condition, argCount := buildSearchLikeCondition(r.db, []string{
			"tracking_code",
			"tracking_number",
			"customer_name",
			"customer_email",
		})
		if argCount > 0 {
			query = query.Where(condition, repeatLikeArgs(like, argCount)...)
		}
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var shipments []models.Shipment
	if err := query.Order("id DESC").Find(&shipments).Error; err != nil {
		return nil, 0, err
	}
	return shipments, total, nil
}

// ListDueForSync 查询待同步运单：已绑定运单号、非终态且最近同步早于给定时间
func (r *GormShipmentRepository) ListDueForSync(staleBefore time.Time, limit int) ([]models.Shipment, error) {
	if limit <= 0 {
		limit = 50
	}
	var shipments []models.Shipment
	err := r.db.Model(&models.Shipment{}).
		Where("tracking_assignment_status = ?", constants.TrackingAssignmentAssigned).
		Where("status NOT IN ?", []string{constants.ShipmentStatusDelivered, constants.ShipmentStatusCancelled}).
		Where("last_sync_at IS NULL OR last_sync_at < ?", staleBefore).
		Order("last_sync_at ASC NULLS FIRST").
		Limit(limit).
		Find(&shipments).Error
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

// ListByUser 查询客户名下运单
func (r *GormShipmentRepository) ListByUser(userID uint) ([]models.Shipment, error) {
	if userID == 0 {
		return []models.Shipment{}, nil
	}
	var shipments []models.Shipment
	if err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}
