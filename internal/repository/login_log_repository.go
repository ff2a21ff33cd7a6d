package repository

import (
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
)

// LoginLogRepository 登录日志数据访问接口
type LoginLogRepository interface {
	Create(log *models.LoginLog) error
	List(filter LoginLogListFilter) ([]models.LoginLog, int64, error)
	CountRecentFailures(username, clientIP string, since time.Time) (int64, error)
}

// GormLoginLogRepository GORM 实现
type GormLoginLogRepository struct {
	db *gorm.DB
}

// NewLoginLogRepository 创建登录日志仓库
func NewLoginLogRepository(db *gorm.DB) *GormLoginLogRepository {
	return &GormLoginLogRepository{db: db}
}

// Create 写入登录日志
func (r *GormLoginLogRepository) Create(log *models.LoginLog) error {
	return r.db.Create(log).Error
}

// List 登录日志列表
func (r *GormLoginLogRepository) List(filter LoginLogListFilter) ([]models.LoginLog, int64, error) {
	query := r.db.Model(&models.LoginLog{})

	if filter.AdminID > 0 {
		query = query.Where("admin_id = ?", filter.AdminID)
	}
	if filter.Username != "" {
		query = query.Where("username = ?", filter.Username)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FailReason != "" {
		query = query.Where("fail_reason = ?", filter.FailReason)
	}
	if filter.ClientIP != "" {
		query = query.Where("client_ip = ?", filter.ClientIP)
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

	var logs []models.LoginLog
	if err := query.Order("id DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// CountRecentFailures 统计指定账号或 IP 近期失败次数（验证码触发阈值用）
func (r *GormLoginLogRepository) CountRecentFailures(username, clientIP string, since time.Time) (int64, error) {
	query := r.db.Model(&models.LoginLog{}).
		Where("status = ? AND created_at >= ?", constants.LoginLogStatusFailed, since)

	switch {
	case username != "" && clientIP != "":
		query = query.Where("username = ? OR client_ip = ?", username, clientIP)
	case username != "":
		query = query.Where("username = ?", username)
	case clientIP != "":
		query = query.Where("client_ip = ?", clientIP)
	default:
		return 0, nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
