package models

import "time"

// ShipmentEvent 运单事件账本
// 说明：仅追加不修改。EventTime 统一截断到毫秒，(shipment_id, source, event_type, event_time)
// 作为自动来源的去重键，复合索引同时服务去重查询与按时间排序的读取。
type ShipmentEvent struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                                                                          // 主键
	ShipmentID  uint      `gorm:"not null;index:idx_shipment_events_time,priority:1;index:idx_shipment_events_dedupe,priority:1" json:"shipment_id"` // 运单ID
	EventType   string    `gorm:"type:varchar(32);not null;index;index:idx_shipment_events_dedupe,priority:3" json:"event_type"`                 // 事件类型
	Source      string    `gorm:"type:varchar(16);not null;index:idx_shipment_events_dedupe,priority:2" json:"source"`                           // 事件来源
	SourceID    string    `gorm:"type:varchar(128)" json:"source_id"`                                                                            // 外部事件ID（承运商侧）
	Status      string    `gorm:"type:varchar(32)" json:"status"`                                                                                // 事件发生后的运单状态
	Description string    `gorm:"type:text" json:"description"`                                                                                  // 事件描述
	Location    string    `gorm:"type:varchar(255)" json:"location"`                                                                             // 事件发生地
	EventTime   time.Time `gorm:"not null;index:idx_shipment_events_time,priority:2;index:idx_shipment_events_dedupe,priority:4" json:"event_time"` // 事件发生时间（毫秒精度）
	Metadata    JSON      `gorm:"type:json" json:"metadata"`                                                                                     // 事件元数据
	CreatedBy   uint      `json:"created_by"`                                                                                                    // 操作人（管理员，自动来源为0）
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                                                                       // 写入时间
}

// TableName 指定表名
func (ShipmentEvent) TableName() string {
	return "shipment_events"
}
