package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/models"
)

// 管理员认证状态缓存（减少每次请求查库）
const (
	adminAuthStateKey = "auth:admin:%d"

	authStateCacheTTL = 10 * time.Minute
)

// AdminAuthState 管理员认证态快照
type AdminAuthState struct {
	AdminID            uint       `json:"admin_id"`             // 管理员 ID
	Username           string     `json:"username"`             // 管理员账号
	TokenVersion       uint64     `json:"token_version"`        // Token 版本
	TokenInvalidBefore *time.Time `json:"token_invalid_before"` // 该时间点前签发的 Token 失效
	IsSuper            bool       `json:"is_super"`             // 是否超级管理员
	UpdatedAt          time.Time  `json:"updated_at"`           // 快照时间
}

// BuildAdminAuthState 从管理员模型构建认证态快照
func BuildAdminAuthState(admin *models.Admin) *AdminAuthState {
	if admin == nil {
		return nil
	}
	return &AdminAuthState{
		AdminID:            admin.ID,
		Username:           admin.Username,
		TokenVersion:       admin.TokenVersion,
		TokenInvalidBefore: admin.TokenInvalidBefore,
		IsSuper:            admin.IsSuper,
		UpdatedAt:          time.Now(),
	}
}

// GetAdminAuthState 读取管理员认证态缓存，未命中返回 nil
func GetAdminAuthState(ctx context.Context, adminID uint) (*AdminAuthState, error) {
	if !Enabled() {
		return nil, nil
	}

	var state AdminAuthState
	ok, err := GetJSON(ctx, fmt.Sprintf(adminAuthStateKey, adminID), &state)
	if err != nil || !ok {
		return nil, err
	}
	return &state, nil
}

// SetAdminAuthState 写入管理员认证态缓存
func SetAdminAuthState(ctx context.Context, state *AdminAuthState) error {
	if !Enabled() || state == nil {
		return nil
	}
	return SetJSON(ctx, fmt.Sprintf(adminAuthStateKey, state.AdminID), state, authStateCacheTTL)
}

// DelAdminAuthState 删除管理员认证态缓存（改密、禁用后调用）
func DelAdminAuthState(ctx context.Context, adminID uint) error {
	if !Enabled() {
		return nil
	}
	return Del(ctx, fmt.Sprintf(adminAuthStateKey, adminID))
}
