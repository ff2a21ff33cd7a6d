package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/http/handlers/shared"
	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/repository"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// GetNotifications 获取当前管理员的站内通知
func (h *Handler) GetNotifications(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	unreadOnly := false
	if raw := strings.TrimSpace(c.Query("unread_only")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid unread_only flag", err)
			return
		}
		unreadOnly = parsed
	}

	notifications, total, err := h.NotificationService.List(adminID, repository.NotificationListFilter{
		Page:       page,
		PageSize:   pageSize,
		Event:      strings.TrimSpace(c.Query("event")),
		UnreadOnly: unreadOnly,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load notifications", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, notifications, pagination)
}

// GetNotificationUnreadCount 获取未读通知数量
func (h *Handler) GetNotificationUnreadCount(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	count, err := h.NotificationService.UnreadCount(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to count notifications", err)
		return
	}

	response.Success(c, gin.H{"unread": count})
}

// MarkNotificationsReadRequest 标记已读请求
type MarkNotificationsReadRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// MarkNotificationsRead 批量标记通知为已读
func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	var req MarkNotificationsReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	updated, err := h.NotificationService.MarkRead(adminID, req.IDs)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to mark notifications read", err)
		return
	}

	response.Success(c, gin.H{"updated": updated})
}

// MarkAllNotificationsRead 全部标记已读
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	updated, err := h.NotificationService.MarkAllRead(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to mark notifications read", err)
		return
	}

	response.Success(c, gin.H{"updated": updated})
}

// GetNotificationPreferences 获取通知偏好（无记录视为开启）
func (h *Handler) GetNotificationPreferences(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	preferences, err := h.NotificationService.ListPreferences(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load notification preferences", err)
		return
	}

	response.Success(c, preferences)
}

// UpdateNotificationPreferenceRequest 更新通知偏好请求
type UpdateNotificationPreferenceRequest struct {
	Event   string `json:"event" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

// UpdateNotificationPreference 更新单个事件的通知偏好
func (h *Handler) UpdateNotificationPreference(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	var req UpdateNotificationPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	if err := h.NotificationService.UpdatePreference(adminID, req.Event, *req.Enabled); err != nil {
		if errors.Is(err, service.ErrNotificationEventInvalid) {
			respondError(c, response.CodeBadRequest, "notification event not supported", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to update notification preference", err)
		return
	}

	response.Success(c, nil)
}
