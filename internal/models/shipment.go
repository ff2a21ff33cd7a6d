package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shipment 运单表
// 说明：TrackingCode 是对外公开的内部单号，TrackingNumber 是承运商原始单号。
// (courier, tracking_number) 的唯一性由服务层在事务内保证，便于给出冲突详情。
type Shipment struct {
	ID                       uint            `gorm:"primarykey" json:"id"`                                                    // 主键
	TrackingCode             string          `gorm:"uniqueIndex;not null" json:"tracking_code"`                               // 内部跟踪码（TRK- 前缀）
	Courier                  string          `gorm:"type:varchar(64);index:idx_shipments_carrier,priority:1" json:"courier"`  // 承运商标识
	TrackingNumber           string          `gorm:"type:varchar(64);index:idx_shipments_carrier,priority:2" json:"tracking_number"` // 承运商运单号（可为空）
	TrackingAssignmentStatus string          `gorm:"type:varchar(32);not null;default:'unassigned'" json:"tracking_assignment_status"` // 运单号绑定状态
	Status                   string          `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`         // 运单状态
	CustomerName             string          `gorm:"type:varchar(255)" json:"customer_name"`                                  // 收件人姓名
	CustomerEmail            string          `gorm:"type:varchar(255);index" json:"customer_email"`                           // 收件人邮箱
	CustomerPhone            string          `gorm:"type:varchar(64)" json:"customer_phone"`                                  // 收件人电话
	OriginAddress            string          `gorm:"type:text" json:"origin_address"`                                         // 发货地址
	OriginCountry            string          `gorm:"type:varchar(64)" json:"origin_country"`                                  // 发货国家
	DestinationAddress       string          `gorm:"type:text" json:"destination_address"`                                    // 收货地址
	DestinationCountry       string          `gorm:"type:varchar(64)" json:"destination_country"`                             // 收货国家
	ShippingMethod           string          `gorm:"type:varchar(64)" json:"shipping_method"`                                 // 运输方式
	Weight                   decimal.Decimal `gorm:"type:decimal(12,3)" json:"weight"`                                        // 重量（kg）
	DeclaredValue            Money           `gorm:"type:decimal(12,2)" json:"declared_value"`                                // 申报价值
	ShippingCost             Money           `gorm:"type:decimal(12,2)" json:"shipping_cost"`                                 // 运费
	EstimatedDelivery        *time.Time      `json:"estimated_delivery"`                                                      // 预计送达时间
	ActualDelivery           *time.Time      `json:"actual_delivery"`                                                         // 实际送达时间
	UserID                   *uint           `gorm:"index" json:"user_id"`                                                    // 关联客户账号
	LeadID                   *uint           `gorm:"index" json:"lead_id"`                                                    // 来源线索
	UserAssignmentStatus     string          `gorm:"type:varchar(32);not null;default:'unassigned'" json:"user_assignment_status"` // 客户关联状态
	LastSyncAt               *time.Time      `json:"last_sync_at"`                                                            // 最近一次承运商同步时间
	LastSyncStatus           string          `gorm:"type:varchar(16)" json:"last_sync_status"`                                // 最近同步结果（success/failed）
	LastSyncError            string          `gorm:"type:text" json:"last_sync_error"`                                        // 最近同步失败原因
	NeedsReview              bool            `gorm:"not null;default:false;index" json:"needs_review"`                        // 是否需要人工复核
	CreatedBy                uint            `gorm:"index" json:"created_by"`                                                 // 创建人（管理员）
	CreatedAt                time.Time       `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt                time.Time       `gorm:"index" json:"updated_at"`                                                 // 更新时间
	DeletedAt                gorm.DeletedAt  `gorm:"index" json:"-"`                                                          // 软删除时间
}

// TableName 指定表名
func (Shipment) TableName() string {
	return "shipments"
}

// IsTerminal 判断当前状态是否为终态
func (s *Shipment) IsTerminal() bool {
	return s.Status == "delivered" || s.Status == "cancelled"
}

// HasTrackingNumber 判断是否已绑定承运商运单号
func (s *Shipment) HasTrackingNumber() bool {
	return s.TrackingNumber != ""
}
