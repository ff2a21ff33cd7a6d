package service

import (
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/repository"
)

// 连续失败统计的回溯窗口
const loginFailureLookback = 15 * time.Minute

// LoginAttemptContext 单次登录尝试的请求上下文
type LoginAttemptContext struct {
	Username  string
	ClientIP  string
	UserAgent string
	RequestID string
}

// LoginLogService 登录日志服务。
// 审计登录行为，并为连续失败触发验证码提供计数。
type LoginLogService struct {
	repo repository.LoginLogRepository
}

// NewLoginLogService 创建登录日志服务
func NewLoginLogService(repo repository.LoginLogRepository) *LoginLogService {
	return &LoginLogService{repo: repo}
}

// RecordSuccess 记录登录成功
func (s *LoginLogService) RecordSuccess(adminID uint, attempt LoginAttemptContext) {
	s.record(models.LoginLog{
		AdminID:   adminID,
		Username:  strings.TrimSpace(attempt.Username),
		Status:    constants.LoginLogStatusSuccess,
		ClientIP:  strings.TrimSpace(attempt.ClientIP),
		UserAgent: attempt.UserAgent,
		RequestID: attempt.RequestID,
	})
}

// RecordFailure 记录登录失败
func (s *LoginLogService) RecordFailure(failReason string, attempt LoginAttemptContext) {
	s.record(models.LoginLog{
		Username:   strings.TrimSpace(attempt.Username),
		Status:     constants.LoginLogStatusFailed,
		FailReason: strings.TrimSpace(failReason),
		ClientIP:   strings.TrimSpace(attempt.ClientIP),
		UserAgent:  attempt.UserAgent,
		RequestID:  attempt.RequestID,
	})
}

// RecentFailures 统计回溯窗口内同账号或同IP的连续失败次数
func (s *LoginLogService) RecentFailures(username, clientIP string) int64 {
	if s == nil || s.repo == nil {
		return 0
	}
	since := time.Now().Add(-loginFailureLookback)
	count, err := s.repo.CountRecentFailures(strings.TrimSpace(username), strings.TrimSpace(clientIP), since)
	if err != nil {
		logger.Warnw("login_log_count_failures_failed", "username", username, "error", err)
		return 0
	}
	return count
}

// List 查询登录日志
func (s *LoginLogService) List(filter repository.LoginLogListFilter) ([]models.LoginLog, int64, error) {
	return s.repo.List(filter)
}

// 写日志失败不阻断登录流程，只记警告。
func (s *LoginLogService) record(log models.LoginLog) {
	if s == nil || s.repo == nil {
		return
	}
	if err := s.repo.Create(&log); err != nil {
		logger.Warnw("login_log_write_failed",
			"username", log.Username,
			"status", log.Status,
			"error", err,
		)
	}
}
