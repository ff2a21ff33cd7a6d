package admin

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/cache"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/http/handlers/shared"
	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/repository"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username       string                `json:"username" binding:"required"`
	Password       string                `json:"password" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	User      map[string]interface{} `json:"user"`
	ExpiresAt string                 `json:"expires_at"`
}

// AdminLogin 管理员登录
// 连续失败达到阈值后要求图形验证码，所有尝试写入登录日志。
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	attempt := service.LoginAttemptContext{
		Username:  strings.TrimSpace(req.Username),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: currentRequestID(c),
	}

	if h.CaptchaService != nil && h.CaptchaService.Enabled() {
		recentFailures := h.LoginLogService.RecentFailures(attempt.Username, attempt.ClientIP)
		if h.CaptchaService.RequiredAfterFailures(recentFailures) {
			if captchaErr := h.CaptchaService.Verify(req.CaptchaPayload.toServicePayload()); captchaErr != nil {
				switch {
				case errors.Is(captchaErr, service.ErrCaptchaRequired):
					h.LoginLogService.RecordFailure(constants.LoginLogFailReasonCaptchaRequired, attempt)
					respondError(c, response.CodeBadRequest, "captcha required", nil)
				case errors.Is(captchaErr, service.ErrCaptchaInvalid):
					h.LoginLogService.RecordFailure(constants.LoginLogFailReasonCaptchaInvalid, attempt)
					respondError(c, response.CodeBadRequest, "captcha invalid", nil)
				default:
					h.LoginLogService.RecordFailure(constants.LoginLogFailReasonInternalError, attempt)
					respondError(c, response.CodeInternal, "captcha verification failed", captchaErr)
				}
				return
			}
		}
	}

	admin, token, expiresAt, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.LoginLogService.RecordFailure(constants.LoginLogFailReasonInvalidCredentials, attempt)
			respondError(c, response.CodeUnauthorized, "invalid username or password", nil)
			return
		}
		h.LoginLogService.RecordFailure(constants.LoginLogFailReasonInternalError, attempt)
		respondError(c, response.CodeInternal, "login failed", err)
		return
	}

	h.LoginLogService.RecordSuccess(admin.ID, attempt)

	response.Success(c, LoginResponse{
		Token: token,
		User: map[string]interface{}{
			"id":       admin.ID,
			"username": admin.Username,
			"is_super": admin.IsSuper,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// GetLoginCaptcha 获取图形验证码
func (h *Handler) GetLoginCaptcha(c *gin.Context) {
	if h.CaptchaService == nil || !h.CaptchaService.Enabled() {
		response.Success(c, gin.H{"enabled": false})
		return
	}

	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		respondError(c, response.CodeInternal, "failed to generate captcha", err)
		return
	}

	response.Success(c, gin.H{
		"enabled":      true,
		"captcha_id":   challenge.CaptchaID,
		"image_base64": challenge.ImageBase64,
	})
}

// GetAdminProfile 获取当前管理员信息
func (h *Handler) GetAdminProfile(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}

	admin, err := h.AdminRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load profile", err)
		return
	}
	if admin == nil {
		respondError(c, response.CodeNotFound, "admin not found", nil)
		return
	}

	response.Success(c, gin.H{
		"id":            admin.ID,
		"username":      admin.Username,
		"email":         admin.Email,
		"is_super":      admin.IsSuper,
		"last_login_at": admin.LastLoginAt,
		"created_at":    admin.CreatedAt,
	})
}

// UpdatePasswordRequest 修改密码请求
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdateAdminPassword 修改管理员密码
func (h *Handler) UpdateAdminPassword(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	if err := h.AuthService.ChangePassword(id, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidPassword) {
			respondError(c, response.CodeBadRequest, "old password is incorrect", nil)
			return
		}
		if errors.Is(err, service.ErrWeakPassword) {
			respondError(c, response.CodeBadRequest, passwordPolicyMessage(err), nil)
			return
		}
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "admin not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to update password", err)
		return
	}

	response.Success(c, nil)
}

// AdminLogout 登出并吊销已签发的 Token
func (h *Handler) AdminLogout(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}

	admin, err := h.AdminRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "logout failed", err)
		return
	}
	if admin == nil {
		respondError(c, response.CodeNotFound, "admin not found", nil)
		return
	}

	now := time.Now()
	admin.TokenVersion++
	admin.TokenInvalidBefore = &now
	if err := h.AdminRepo.Update(admin); err != nil {
		respondError(c, response.CodeInternal, "logout failed", err)
		return
	}
	_ = cache.SetAdminAuthState(c.Request.Context(), cache.BuildAdminAuthState(admin))

	response.Success(c, nil)
}

// GetLoginLogs 获取登录日志列表
func (h *Handler) GetLoginLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	adminID, _ := strconv.ParseUint(c.Query("admin_id"), 10, 64)
	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid time range", err)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid time range", err)
		return
	}

	logs, total, err := h.LoginLogService.List(repository.LoginLogListFilter{
		Page:        page,
		PageSize:    pageSize,
		AdminID:     uint(adminID),
		Username:    strings.TrimSpace(c.Query("username")),
		Status:      strings.TrimSpace(c.Query("status")),
		FailReason:  strings.TrimSpace(c.Query("fail_reason")),
		ClientIP:    strings.TrimSpace(c.Query("client_ip")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load login logs", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, logs, pagination)
}
