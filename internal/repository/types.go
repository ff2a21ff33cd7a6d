package repository

import "time"

// ShipmentListFilter 查询运单列表的过滤条件
type ShipmentListFilter struct {
	Page                     int
	PageSize                 int
	Status                   string
	Courier                  string
	Search                   string
	UserID                   uint
	LeadID                   uint
	NeedsReview              *bool
	TrackingAssignmentStatus string
	UserAssignmentStatus     string
	CreatedFrom              *time.Time
	CreatedTo                *time.Time
}

// ShipmentEventListFilter 查询运单事件的过滤条件
type ShipmentEventListFilter struct {
	Page       int
	PageSize   int
	ShipmentID uint
	Source     string
	EventType  string
}

// LeadListFilter 查询线索列表的过滤条件
type LeadListFilter struct {
	Page            int
	PageSize        int
	Status          string
	Search          string
	AssignedAdminID uint
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// UserListFilter 查询客户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// LoginLogListFilter 查询登录日志列表的过滤条件
type LoginLogListFilter struct {
	Page        int
	PageSize    int
	AdminID     uint
	Username    string
	Status      string
	FailReason  string
	ClientIP    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// NotificationListFilter 查询站内通知的过滤条件
type NotificationListFilter struct {
	Page       int
	PageSize   int
	AdminID    uint
	Event      string
	UnreadOnly bool
}
