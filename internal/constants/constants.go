package constants

// 运单状态常量
const (
	ShipmentStatusPending        = "pending"
	ShipmentStatusInTransit      = "in_transit"
	ShipmentStatusOutForDelivery = "out_for_delivery"
	ShipmentStatusDelivered      = "delivered"
	ShipmentStatusException      = "exception"
	ShipmentStatusCancelled      = "cancelled"
)

// ShipmentStatusOrder 运单状态推进顺序（正向链路）
var ShipmentStatusOrder = map[string]int{
	ShipmentStatusPending:        0,
	ShipmentStatusInTransit:      1,
	ShipmentStatusOutForDelivery: 2,
	ShipmentStatusDelivered:      3,
}

// 事件来源常量
const (
	EventSourceManual     = "manual"
	EventSourceAPISync    = "api_sync"
	EventSourceWebhook    = "webhook"
	EventSourceUserAction = "user_action"
)

// 事件类型常量
const (
	EventTypeShipmentCreated  = "shipment_created"
	EventTypeStatusChange     = "status_change"
	EventTypeLocationUpdate   = "location_update"
	EventTypeDeliveryAttempt  = "delivery_attempt"
	EventTypeAPISync          = "api_sync"
	EventTypeTrackingAssigned = "tracking_assigned"
	EventTypeTrackingRemoved  = "tracking_removed"
	EventTypeUserAssigned     = "user_assigned"
	EventTypeSyncFailed       = "sync_failed"
)

// 用户绑定状态常量
const (
	UserAssignmentUnassigned      = "unassigned"
	UserAssignmentSignupSent      = "signup_sent"
	UserAssignmentSignupCompleted = "signup_completed"
	UserAssignmentAssigned        = "assigned"
)

// 单号绑定状态常量
const (
	TrackingAssignmentUnassigned = "unassigned"
	TrackingAssignmentAssigned   = "assigned"
)

// 承运商常量
const (
	CourierFedex = "fedex"
	CourierUPS   = "ups"
	CourierUSPS  = "usps"
	CourierDHL   = "dhl"
)

// 跟踪数据提供方常量
const (
	ProviderShipEngine     = "shipengine"
	ProviderSeventeenTrack = "seventeentrack"
)

// 单号冲突处理动作常量
const (
	ConflictActionOverride       = "override"
	ConflictActionSkip           = "skip"
	ConflictActionUpdateExisting = "update_existing"
)

// 批量绑定校验错误类别常量
const (
	BulkErrorFormat           = "format"
	BulkErrorConflict         = "conflict"
	BulkErrorDuplicateInBatch = "duplicate_in_batch"
)

// 同步结果常量
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// 线索状态常量
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusClosed    = "closed"
)

// 用户状态常量
const (
	UserStatusInvited  = "invited"
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 登录日志状态常量
const (
	LoginLogStatusSuccess = "success"
	LoginLogStatusFailed  = "failed"
)

// 登录日志失败原因常量
const (
	LoginLogFailReasonBadRequest         = "bad_request"
	LoginLogFailReasonCaptchaRequired    = "captcha_required"
	LoginLogFailReasonCaptchaInvalid     = "captcha_invalid"
	LoginLogFailReasonInvalidCredentials = "invalid_credentials"
	LoginLogFailReasonAdminDisabled      = "admin_disabled"
	LoginLogFailReasonInternalError      = "internal_error"
)

// 通知事件常量
const (
	NotificationEventShipmentStatusChanged = "shipment_status_changed"
	NotificationEventTrackingAssigned      = "tracking_assigned"
	NotificationEventTrackingConflict      = "tracking_conflict_resolved"
	NotificationEventSyncFailed            = "carrier_sync_failed"
	NotificationEventLeadConverted         = "lead_converted"
)

// 通知业务类型常量
const (
	NotificationBizTypeShipment = "shipment"
	NotificationBizTypeLead     = "lead"
)

// 队列常量
const (
	QueueDefault             = "default"
	TaskCarrierSync          = "shipment:carrier_sync"
	TaskNotificationDispatch = "notification:dispatch"
	TaskSignupEmail          = "shipment:signup_email"
	TaskCleanupSignups       = "cleanup:expired_signups"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "ts"
)

// 内部单号常量
const (
	TrackingCodePrefix = "TRK-"
	TrackingCodeLength = 10
)

// 公开接口脱敏常量
const (
	MaskedTrackingNumberHidden = "Hidden"
	MaskedCarrierName          = "Standard Carrier"
)
