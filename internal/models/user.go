package models

import (
	"time"

	"gorm.io/gorm"
)

// User 客户账号表
// 说明：客户由管理员通过运单关联流程邀请创建，初始状态 invited，
// 完成注册前仅持有一次性 SignupToken，不具备登录凭据。
type User struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                                         // 主键
	Email                string         `gorm:"uniqueIndex;not null" json:"email"`                            // 邮箱
	PasswordHash         string         `gorm:"type:varchar(255)" json:"-"`                                   // 密码哈希（完成注册前为空）
	DisplayName          string         `gorm:"type:varchar(255);default:''" json:"display_name"`             // 姓名
	Phone                string         `gorm:"type:varchar(64)" json:"phone"`                                // 电话
	Status               string         `gorm:"type:varchar(32);not null;default:'invited';index" json:"status"` // 账号状态
	SignupToken          string         `gorm:"type:varchar(64);index" json:"-"`                              // 注册邀请令牌（一次性）
	SignupTokenExpiresAt *time.Time     `json:"-"`                                                            // 令牌过期时间
	SignupCompletedAt    *time.Time     `json:"signup_completed_at"`                                          // 完成注册时间
	CreatedBy            uint           `gorm:"index" json:"created_by"`                                      // 创建人（管理员）
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt            time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// SignupTokenValid 判断注册令牌在给定时刻是否可用
func (u *User) SignupTokenValid(now time.Time) bool {
	if u.SignupToken == "" || u.SignupTokenExpiresAt == nil {
		return false
	}
	return now.Before(*u.SignupTokenExpiresAt)
}
