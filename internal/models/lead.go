package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lead 询盘线索表
type Lead struct {
	ID                 uint            `gorm:"primarykey" json:"id"`                                       // 主键
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`                     // 联系人姓名
	Email              string          `gorm:"type:varchar(255);index;not null" json:"email"`              // 联系邮箱
	Phone              string          `gorm:"type:varchar(64)" json:"phone"`                              // 联系电话
	Company            string          `gorm:"type:varchar(255)" json:"company"`                           // 公司名称
	OriginCountry      string          `gorm:"type:varchar(64)" json:"origin_country"`                     // 发货国家
	DestinationCountry string          `gorm:"type:varchar(64)" json:"destination_country"`                // 收货国家
	EstimatedWeight    decimal.Decimal `gorm:"type:decimal(12,3)" json:"estimated_weight"`                 // 预估重量（kg）
	EstimatedValue     Money           `gorm:"type:decimal(12,2)" json:"estimated_value"`                  // 预估货值
	Status             string          `gorm:"type:varchar(32);not null;default:'new';index" json:"status"` // 线索状态
	Notes              string          `gorm:"type:text" json:"notes"`                                     // 跟进备注
	ConvertedAt        *time.Time      `json:"converted_at"`                                               // 转化时间
	ShipmentID         *uint           `gorm:"index" json:"shipment_id"`                                   // 转化生成的运单
	AssignedAdminID    *uint           `gorm:"index" json:"assigned_admin_id"`                             // 跟进管理员
	CreatedBy          uint            `gorm:"index" json:"created_by"`                                    // 创建人（管理员）
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt          time.Time       `gorm:"index" json:"updated_at"`                                    // 更新时间
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (Lead) TableName() string {
	return "leads"
}
