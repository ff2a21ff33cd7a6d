package models

import "time"

// Notification 站内通知表
type Notification struct {
	ID        uint       `gorm:"primarykey" json:"id"`                              // 主键
	AdminID   uint       `gorm:"index;not null" json:"admin_id"`                    // 接收人（管理员）
	Event     string     `gorm:"type:varchar(64);index;not null" json:"event"`      // 通知事件类型
	Title     string     `gorm:"type:varchar(255);not null" json:"title"`           // 标题
	Body      string     `gorm:"type:text" json:"body"`                             // 正文
	BizType   string     `gorm:"type:varchar(32);index" json:"biz_type"`            // 业务对象类型（shipment/lead）
	BizID     uint       `gorm:"index" json:"biz_id"`                               // 业务对象ID
	ReadAt    *time.Time `gorm:"index" json:"read_at"`                              // 已读时间
	CreatedAt time.Time  `gorm:"index" json:"created_at"`                           // 创建时间
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// NotificationPreference 管理员通知偏好
// 说明：无记录视为开启，显式关闭才写入 Enabled=false。
type NotificationPreference struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                                    // 主键
	AdminID   uint      `gorm:"not null;uniqueIndex:idx_notification_prefs_admin_event,priority:1" json:"admin_id"`      // 管理员ID
	Event     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_notification_prefs_admin_event,priority:2" json:"event"` // 通知事件类型
	Enabled   bool      `gorm:"not null" json:"enabled"`                                                                 // 是否接收；列默认不能给 true，否则零值 false 在插入时会被默认值覆盖
	CreatedAt time.Time `json:"created_at"`                                                                              // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                                              // 更新时间
}

// TableName 指定表名
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}
