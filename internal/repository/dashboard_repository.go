package repository

import (
	"fmt"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
)

// DashboardRepository 仪表盘聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type DashboardRepository interface {
	GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error)
	GetShipmentTrends(startAt, endAt time.Time) ([]DashboardShipmentTrendRow, error)
	GetCarrierBreakdown(startAt, endAt time.Time, limit int) ([]DashboardCarrierRow, error)
	GetLeadFunnel() (map[string]int64, error)
}

// DashboardOverviewRow 仪表盘总览原始统计结果
type DashboardOverviewRow struct {
	ShipmentsTotal     int64
	ShipmentsActive    int64
	ShipmentsDelivered int64
	ShipmentsException int64
	ShipmentsCancelled int64
	NeedsReview        int64
	TrackingUnassigned int64
	LeadsTotal         int64
	LeadsConverted     int64
	UsersTotal         int64
	UsersInvited       int64
}

// DashboardShipmentTrendRow 运单趋势统计
type DashboardShipmentTrendRow struct {
	Day               string
	ShipmentsCreated  int64
	ShipmentsDelivered int64
}

// DashboardCarrierRow 承运商分布原始行
type DashboardCarrierRow struct {
	Courier        string
	ShipmentsTotal int64
	ExceptionCount int64
	DeliveredCount int64
}

// GormDashboardRepository GORM 仪表盘聚合实现
type GormDashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository 创建仪表盘仓库
func NewDashboardRepository(db *gorm.DB) *GormDashboardRepository {
	return &GormDashboardRepository{db: db}
}

func activeShipmentStatuses() []string {
	return []string{
		constants.ShipmentStatusPending,
		constants.ShipmentStatusInTransit,
		constants.ShipmentStatusOutForDelivery,
	}
}

// GetOverview 获取总览统计
func (r *GormDashboardRepository) GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error) {
	result := DashboardOverviewRow{}

	shipmentBase := func() *gorm.DB {
		return r.db.Model(&models.Shipment{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}

	if err := shipmentBase().Count(&result.ShipmentsTotal).Error; err != nil {
		return result, err
	}
	if err := shipmentBase().Where("status IN ?", activeShipmentStatuses()).Count(&result.ShipmentsActive).Error; err != nil {
		return result, err
	}
	if err := shipmentBase().Where("status = ?", constants.ShipmentStatusDelivered).Count(&result.ShipmentsDelivered).Error; err != nil {
		return result, err
	}
	if err := shipmentBase().Where("status = ?", constants.ShipmentStatusException).Count(&result.ShipmentsException).Error; err != nil {
		return result, err
	}
	if err := shipmentBase().Where("status = ?", constants.ShipmentStatusCancelled).Count(&result.ShipmentsCancelled).Error; err != nil {
		return result, err
	}

	// 复核与未绑定单量不按时间窗过滤，反映当前待办
	if err := r.db.Model(&models.Shipment{}).
		Where("needs_review = ?", true).
		Count(&result.NeedsReview).Error; err != nil {
		return result, err
	}
	if err := r.db.Model(&models.Shipment{}).
		Where("tracking_assignment_status = ? AND status IN ?", constants.TrackingAssignmentUnassigned, activeShipmentStatuses()).
		Count(&result.TrackingUnassigned).Error; err != nil {
		return result, err
	}

	leadBase := func() *gorm.DB {
		return r.db.Model(&models.Lead{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}
	if err := leadBase().Count(&result.LeadsTotal).Error; err != nil {
		return result, err
	}
	if err := leadBase().Where("status = ?", constants.LeadStatusConverted).Count(&result.LeadsConverted).Error; err != nil {
		return result, err
	}

	if err := r.db.Model(&models.User{}).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Count(&result.UsersTotal).Error; err != nil {
		return result, err
	}
	if err := r.db.Model(&models.User{}).
		Where("status = ?", constants.UserStatusInvited).
		Count(&result.UsersInvited).Error; err != nil {
		return result, err
	}

	return result, nil
}

// GetShipmentTrends 获取运单趋势
func (r *GormDashboardRepository) GetShipmentTrends(startAt, endAt time.Time) ([]DashboardShipmentTrendRow, error) {
	type createdRow struct {
		Day   string
		Total int64
	}
	type deliveredRow struct {
		Day   string
		Total int64
	}

	dayExpr := "CAST(date(created_at) AS TEXT)"

	var created []createdRow
	if err := r.db.Model(&models.Shipment{}).
		Select(fmt.Sprintf("%s as day, COUNT(*) as total", dayExpr)).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Group(dayExpr).
		Order("day asc").
		Scan(&created).Error; err != nil {
		return nil, err
	}

	deliveredDayExpr := "CAST(date(actual_delivery) AS TEXT)"
	var delivered []deliveredRow
	if err := r.db.Model(&models.Shipment{}).
		Select(fmt.Sprintf("%s as day, COUNT(*) as total", deliveredDayExpr)).
		Where("actual_delivery IS NOT NULL AND actual_delivery >= ? AND actual_delivery < ?", startAt, endAt).
		Group(deliveredDayExpr).
		Order("day asc").
		Scan(&delivered).Error; err != nil {
		return nil, err
	}

	deliveredMap := make(map[string]int64, len(delivered))
	for _, item := range delivered {
		deliveredMap[item.Day] = item.Total
	}

	seen := make(map[string]struct{}, len(created)+len(delivered))
	result := make([]DashboardShipmentTrendRow, 0, len(created))
	push := func(day string, createdTotal int64) {
		if day == "" {
			return
		}
		if _, ok := seen[day]; ok {
			return
		}
		seen[day] = struct{}{}
		result = append(result, DashboardShipmentTrendRow{
			Day:                day,
			ShipmentsCreated:   createdTotal,
			ShipmentsDelivered: deliveredMap[day],
		})
	}
	for _, item := range created {
		push(item.Day, item.Total)
	}
	for _, item := range delivered {
		push(item.Day, 0)
	}

	return result, nil
}

// GetCarrierBreakdown 获取承运商分布
func (r *GormDashboardRepository) GetCarrierBreakdown(startAt, endAt time.Time, limit int) ([]DashboardCarrierRow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows := make([]DashboardCarrierRow, 0)
	err := r.db.Model(&models.Shipment{}).
		Select(`
			courier,
			COUNT(*) as shipments_total,
			SUM(CASE WHEN status = 'exception' THEN 1 ELSE 0 END) as exception_count,
			SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END) as delivered_count
		`).
		Where("created_at >= ? AND created_at < ? AND courier <> ''", startAt, endAt).
		Group("courier").
		Order("shipments_total DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetLeadFunnel 获取线索漏斗（按状态计数）
func (r *GormDashboardRepository) GetLeadFunnel() (map[string]int64, error) {
	type countRow struct {
		Status string
		Total  int64
	}
	var rows []countRow
	err := r.db.Model(&models.Lead{}).
		Select("status, COUNT(*) as total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}
