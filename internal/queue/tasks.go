package queue

import (
	"encoding/json"

	"github.com/Juddanxavier/track-sub003/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskCarrierSync 承运商轨迹同步任务
	TaskCarrierSync = constants.TaskCarrierSync
	// TaskNotificationDispatch 通知分发任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskSignupEmail 客户注册邀请邮件任务
	TaskSignupEmail = constants.TaskSignupEmail
	// TaskCleanupSignups 过期注册令牌清理任务
	TaskCleanupSignups = constants.TaskCleanupSignups
)

// CarrierSyncPayload 承运商同步任务载荷
type CarrierSyncPayload struct {
	ShipmentID uint `json:"shipment_id"`
}

// NotificationDispatchPayload 通知分发任务载荷
type NotificationDispatchPayload struct {
	Event   string                 `json:"event"`
	BizType string                 `json:"biz_type"`
	BizID   uint                   `json:"biz_id"`
	Force   bool                   `json:"force"`
	Data    map[string]interface{} `json:"data"`
}

// SignupEmailPayload 注册邀请邮件任务载荷
type SignupEmailPayload struct {
	UserID     uint `json:"user_id"`
	ShipmentID uint `json:"shipment_id"`
}

// CleanupSignupsPayload 过期注册令牌清理任务载荷
type CleanupSignupsPayload struct{}

// NewCarrierSyncTask 创建承运商同步任务
func NewCarrierSyncTask(payload CarrierSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCarrierSync, body), nil
}

// NewNotificationDispatchTask 创建通知分发任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}

// NewSignupEmailTask 创建注册邀请邮件任务
func NewSignupEmailTask(payload SignupEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSignupEmail, body), nil
}

// NewCleanupSignupsTask 创建过期注册令牌清理任务
func NewCleanupSignupsTask() (*asynq.Task, error) {
	body, err := json.Marshal(CleanupSignupsPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCleanupSignups, body), nil
}
