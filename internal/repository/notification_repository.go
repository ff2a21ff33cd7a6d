package repository

import (
	"errors"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository 站内通知数据访问接口
type NotificationRepository interface {
	Create(notification *models.Notification) error
	CreateBatch(notifications []models.Notification) error
	List(filter NotificationListFilter) ([]models.Notification, int64, error)
	UnreadCount(adminID uint) (int64, error)
	MarkRead(adminID uint, ids []uint) (int64, error)
	MarkAllRead(adminID uint) (int64, error)
	GetPreference(adminID uint, event string) (*models.NotificationPreference, error)
	ListPreferences(adminID uint) ([]models.NotificationPreference, error)
	UpsertPreference(adminID uint, event string, enabled bool) error
	ListDisabledAdminIDs(event string) ([]uint, error)
}

// GormNotificationRepository GORM 实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create 创建通知
func (r *GormNotificationRepository) Create(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

// CreateBatch 批量创建通知
func (r *GormNotificationRepository) CreateBatch(notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.Create(&notifications).Error
}

// List 通知列表，按创建时间倒序
func (r *GormNotificationRepository) List(filter NotificationListFilter) ([]models.Notification, int64, error) {
	query := r.db.Model(&models.Notification{})

	if filter.AdminID > 0 {
		query = query.Where("admin_id = ?", filter.AdminID)
	}
	if filter.Event != "" {
		query = query.Where("event = ?", filter.Event)
	}
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var notifications []models.Notification
	if err := query.Order("id DESC").Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// UnreadCount 统计未读通知数
func (r *GormNotificationRepository) UnreadCount(adminID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("admin_id = ? AND read_at IS NULL", adminID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead 标记指定通知为已读，返回受影响行数
func (r *GormNotificationRepository) MarkRead(adminID uint, ids []uint) (int64, error) {
	if adminID == 0 || len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	result := r.db.Model(&models.Notification{}).
		Where("admin_id = ? AND id IN ? AND read_at IS NULL", adminID, ids).
		Update("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkAllRead 标记全部通知为已读，返回受影响行数
func (r *GormNotificationRepository) MarkAllRead(adminID uint) (int64, error) {
	if adminID == 0 {
		return 0, nil
	}
	now := time.Now()
	result := r.db.Model(&models.Notification{}).
		Where("admin_id = ? AND read_at IS NULL", adminID).
		Update("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GetPreference 获取单条通知偏好
func (r *GormNotificationRepository) GetPreference(adminID uint, event string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.db.Where("admin_id = ? AND event = ?", adminID, event).First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}

// ListPreferences 获取管理员全部通知偏好
func (r *GormNotificationRepository) ListPreferences(adminID uint) ([]models.NotificationPreference, error) {
	prefs := make([]models.NotificationPreference, 0)
	if err := r.db.Where("admin_id = ?", adminID).Order("event ASC").Find(&prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}

// UpsertPreference 写入或更新通知偏好
func (r *GormNotificationRepository) UpsertPreference(adminID uint, event string, enabled bool) error {
	existing, err := r.GetPreference(adminID, event)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.Create(&models.NotificationPreference{
			AdminID: adminID,
			Event:   event,
			Enabled: enabled,
		}).Error
	}
	if existing.Enabled == enabled {
		return nil
	}
	return r.db.Model(&models.NotificationPreference{}).
		Where("id = ?", existing.ID).
		Update("enabled", enabled).Error
}

// ListDisabledAdminIDs 获取关闭了指定事件通知的管理员 ID
func (r *GormNotificationRepository) ListDisabledAdminIDs(event string) ([]uint, error) {
	ids := make([]uint, 0)
	err := r.db.Model(&models.NotificationPreference{}).
		Where("event = ? AND enabled = ?", event, false).
		Pluck("admin_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
