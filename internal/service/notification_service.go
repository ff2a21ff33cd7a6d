package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/cache"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"
)

var notificationTemplateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

const notificationDedupeTTL = 5 * time.Minute

// notificationTemplate 事件通知模板
type notificationTemplate struct {
	Title string
	Body  string
}

// 事件模板按 {{var}} 占位符渲染，缺失变量渲染为空串。
var notificationEventTemplates = map[string]notificationTemplate{
	constants.NotificationEventShipmentStatusChanged: {
		Title: "Shipment {{tracking_code}} status changed",
		Body:  "Shipment {{tracking_code}} moved from {{from_status}} to {{to_status}} (source: {{source}}).",
	},
	constants.NotificationEventTrackingAssigned: {
		Title: "Tracking assigned to {{tracking_code}}",
		Body:  "Shipment {{tracking_code}} was assigned {{courier}} tracking number {{tracking_number}}.",
	},
	constants.NotificationEventTrackingConflict: {
		Title: "Tracking conflict resolved on {{tracking_code}}",
		Body:  "Conflict on {{courier}}/{{tracking_number}} resolved with action {{action}} for shipment {{tracking_code}}.",
	},
	constants.NotificationEventSyncFailed: {
		Title: "Carrier sync failed for {{tracking_code}}",
		Body:  "Carrier sync for shipment {{tracking_code}} kept failing and it was marked for review. Last error: {{error}}",
	},
	constants.NotificationEventLeadConverted: {
		Title: "Lead {{lead_name}} converted",
		Body:  "Lead {{lead_name}} was converted to shipment {{tracking_code}}.",
	},
}

// NotificationService 通知中心服务。消费分发任务，落站内信并按需发邮件。
type NotificationService struct {
	notificationRepo repository.NotificationRepository
	adminRepo        repository.AdminRepository
	emailService     *EmailService
}

// NewNotificationService 创建通知中心服务
func NewNotificationService(
	notificationRepo repository.NotificationRepository,
	adminRepo repository.AdminRepository,
	emailService *EmailService,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		adminRepo:        adminRepo,
		emailService:     emailService,
	}
}

// Dispatch 处理通知分发任务：渲染模板、写站内信、发邮件。
// 邮件失败只记警告，不触发任务重试。
func (s *NotificationService) Dispatch(ctx context.Context, payload queue.NotificationDispatchPayload) error {
	if s == nil || s.notificationRepo == nil {
		return nil
	}
	event := strings.ToLower(strings.TrimSpace(payload.Event))
	template, ok := notificationEventTemplates[event]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotificationEventInvalid, payload.Event)
	}

	if !payload.Force {
		acquired, err := acquireNotificationDedupe(ctx, payload)
		if err != nil {
			logger.Warnw("notification_dedupe_failed", "event", event, "error", err)
		}
		if err == nil && !acquired {
			return nil
		}
	}

	variables := buildNotificationTemplateVariables(payload)
	title := renderNotificationTemplate(template.Title, variables)
	body := renderNotificationTemplate(template.Body, variables)
	if strings.TrimSpace(title) == "" {
		title = "Notification"
	}
	if strings.TrimSpace(body) == "" {
		body = title
	}

	recipients, err := s.resolveRecipients(event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	notifications := make([]models.Notification, 0, len(recipients))
	for _, admin := range recipients {
		notifications = append(notifications, models.Notification{
			AdminID: admin.ID,
			Event:   event,
			Title:   title,
			Body:    body,
			BizType: strings.TrimSpace(payload.BizType),
			BizID:   payload.BizID,
		})
	}
	if err := s.notificationRepo.CreateBatch(notifications); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}

	if s.emailService != nil && s.emailService.Enabled() {
		for _, admin := range recipients {
			email := strings.TrimSpace(admin.Email)
			if email == "" {
				continue
			}
			if err := s.emailService.SendNotificationEmail(email, title, body); err != nil {
				logger.Warnw("notification_email_send_failed",
					"event", event,
					"biz_type", payload.BizType,
					"biz_id", payload.BizID,
					"admin_id", admin.ID,
					"error", err,
				)
			}
		}
	}
	return nil
}

// List 查询管理员站内通知
func (s *NotificationService) List(adminID uint, filter repository.NotificationListFilter) ([]models.Notification, int64, error) {
	filter.AdminID = adminID
	return s.notificationRepo.List(filter)
}

// UnreadCount 未读通知数量
func (s *NotificationService) UnreadCount(adminID uint) (int64, error) {
	return s.notificationRepo.UnreadCount(adminID)
}

// MarkRead 标记指定通知已读，返回实际更新条数
func (s *NotificationService) MarkRead(adminID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.notificationRepo.MarkRead(adminID, ids)
}

// MarkAllRead 标记全部通知已读
func (s *NotificationService) MarkAllRead(adminID uint) (int64, error) {
	return s.notificationRepo.MarkAllRead(adminID)
}

// NotificationPreferenceView 通知偏好视图。无显式记录视为开启。
type NotificationPreferenceView struct {
	Event   string `json:"event"`
	Enabled bool   `json:"enabled"`
}

// ListPreferences 返回管理员对全部支持事件的偏好
func (s *NotificationService) ListPreferences(adminID uint) ([]NotificationPreferenceView, error) {
	stored, err := s.notificationRepo.ListPreferences(adminID)
	if err != nil {
		return nil, err
	}
	enabledByEvent := make(map[string]bool, len(stored))
	for _, pref := range stored {
		enabledByEvent[pref.Event] = pref.Enabled
	}

	events := SupportedNotificationEvents()
	views := make([]NotificationPreferenceView, 0, len(events))
	for _, event := range events {
		enabled := true
		if value, ok := enabledByEvent[event]; ok {
			enabled = value
		}
		views = append(views, NotificationPreferenceView{Event: event, Enabled: enabled})
	}
	return views, nil
}

// UpdatePreference 更新管理员单个事件的通知偏好
func (s *NotificationService) UpdatePreference(adminID uint, event string, enabled bool) error {
	event = strings.ToLower(strings.TrimSpace(event))
	if _, ok := notificationEventTemplates[event]; !ok {
		return ErrNotificationEventInvalid
	}
	return s.notificationRepo.UpsertPreference(adminID, event, enabled)
}

// SupportedNotificationEvents 返回支持的通知事件（稳定排序）
func SupportedNotificationEvents() []string {
	events := make([]string, 0, len(notificationEventTemplates))
	for event := range notificationEventTemplates {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// resolveRecipients 计算事件接收人：全部管理员减去显式关闭该事件的
func (s *NotificationService) resolveRecipients(event string) ([]models.Admin, error) {
	if s.adminRepo == nil {
		return nil, nil
	}
	admins, err := s.adminRepo.List()
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	disabledIDs, err := s.notificationRepo.ListDisabledAdminIDs(event)
	if err != nil {
		return nil, fmt.Errorf("list disabled preferences: %w", err)
	}
	if len(disabledIDs) == 0 {
		return admins, nil
	}
	disabled := make(map[uint]struct{}, len(disabledIDs))
	for _, id := range disabledIDs {
		disabled[id] = struct{}{}
	}
	recipients := make([]models.Admin, 0, len(admins))
	for _, admin := range admins {
		if _, ok := disabled[admin.ID]; ok {
			continue
		}
		recipients = append(recipients, admin)
	}
	return recipients, nil
}

func acquireNotificationDedupe(ctx context.Context, payload queue.NotificationDispatchPayload) (bool, error) {
	if !cache.Enabled() {
		return true, nil
	}
	key := buildNotificationDedupeKey(payload)
	return cache.SetNX(ctx, key, "1", notificationDedupeTTL)
}

func buildNotificationDedupeKey(payload queue.NotificationDispatchPayload) string {
	signature := strings.Builder{}
	signature.WriteString(strings.ToLower(strings.TrimSpace(payload.Event)))
	signature.WriteString("|")
	signature.WriteString(strings.ToLower(strings.TrimSpace(payload.BizType)))
	signature.WriteString("|")
	signature.WriteString(fmt.Sprintf("%d", payload.BizID))
	signature.WriteString("|")

	keys := make([]string, 0, len(payload.Data))
	for key := range payload.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == "occurred_at" {
			continue
		}
		signature.WriteString(key)
		signature.WriteString("=")
		signature.WriteString(strings.TrimSpace(fmt.Sprintf("%v", payload.Data[key])))
		signature.WriteString(";")
	}
	hash := sha1.Sum([]byte(signature.String()))
	return "notification:dedupe:" + hex.EncodeToString(hash[:])
}

func buildNotificationTemplateVariables(payload queue.NotificationDispatchPayload) map[string]interface{} {
	data := make(map[string]interface{}, len(payload.Data)+3)
	for key, value := range payload.Data {
		data[key] = value
	}
	data["event"] = strings.ToLower(strings.TrimSpace(payload.Event))
	data["biz_type"] = strings.TrimSpace(payload.BizType)
	data["biz_id"] = fmt.Sprintf("%d", payload.BizID)
	return data
}

func renderNotificationTemplate(template string, variables map[string]interface{}) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	return notificationTemplateVarPattern.ReplaceAllStringFunc(template, func(matched string) string {
		submatch := notificationTemplateVarPattern.FindStringSubmatch(matched)
		if len(submatch) != 2 {
			return matched
		}
		key := strings.TrimSpace(submatch[1])
		value, ok := variables[key]
		if !ok {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	})
}
