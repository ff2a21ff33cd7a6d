package repository

import (
	"errors"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
)

// ShipmentEventRepository 运单事件数据访问接口
// 说明：事件账本只追加，不提供更新与删除。
type ShipmentEventRepository interface {
	WithTx(tx *gorm.DB) *GormShipmentEventRepository
	Create(event *models.ShipmentEvent) error
	FindDuplicate(shipmentID uint, source, eventType string, eventTime time.Time) (*models.ShipmentEvent, error)
	List(filter ShipmentEventListFilter) ([]models.ShipmentEvent, int64, error)
	ListAllByShipment(shipmentID uint) ([]models.ShipmentEvent, error)
	CountBySource(shipmentID uint) (map[string]int64, error)
}

// GormShipmentEventRepository GORM 实现
type GormShipmentEventRepository struct {
	db *gorm.DB
}

// NewShipmentEventRepository 创建运单事件仓库
func NewShipmentEventRepository(db *gorm.DB) *GormShipmentEventRepository {
	return &GormShipmentEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormShipmentEventRepository) WithTx(tx *gorm.DB) *GormShipmentEventRepository {
	if tx == nil {
		return r
	}
	return &GormShipmentEventRepository{db: tx}
}

// Create 追加事件
func (r *GormShipmentEventRepository) Create(event *models.ShipmentEvent) error {
	return r.db.Create(event).Error
}

// FindDuplicate 按去重键 (shipment_id, source, event_type, event_time) 查找已有事件。
// 事件类型参与去重：同一时刻承运商原始事件与状态机补记的 status_change 需要各自入账。
func (r *GormShipmentEventRepository) FindDuplicate(shipmentID uint, source, eventType string, eventTime time.Time) (*models.ShipmentEvent, error) {
	var event models.ShipmentEvent
	err := r.db.Where("shipment_id = ? AND source = ? AND event_type = ? AND event_time = ?", shipmentID, source, eventType, eventTime).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// List 运单事件列表，按事件发生时间正序
func (r *GormShipmentEventRepository) List(filter ShipmentEventListFilter) ([]models.ShipmentEvent, int64, error) {
	query := r.db.Model(&models.ShipmentEvent{})

	if filter.ShipmentID > 0 {
		query = query.Where("shipment_id = ?", filter.ShipmentID)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var events []models.ShipmentEvent
	if err := query.Order("event_time ASC, id ASC").Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListAllByShipment 获取运单全部事件，按事件发生时间正序
func (r *GormShipmentEventRepository) ListAllByShipment(shipmentID uint) ([]models.ShipmentEvent, error) {
	var events []models.ShipmentEvent
	err := r.db.Where("shipment_id = ?", shipmentID).
		Order("event_time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountBySource 统计运单各来源事件数
func (r *GormShipmentEventRepository) CountBySource(shipmentID uint) (map[string]int64, error) {
	type countRow struct {
		Source string
		Total  int64
	}
	var rows []countRow
	err := r.db.Model(&models.ShipmentEvent{}).
		Select("source, COUNT(*) as total").
		Where("shipment_id = ?", shipmentID).
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Source] = row.Total
	}
	return result, nil
}
