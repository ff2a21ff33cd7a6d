package public

import (
	"errors"

	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// CompleteSignupRequest 客户完成注册请求
type CompleteSignupRequest struct {
	Token       string `json:"token" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// CompleteSignup 客户凭邀请令牌设置密码并激活账号
func (h *Handler) CompleteSignup(c *gin.Context) {
	var req CompleteSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	user, err := h.UserService.CompleteSignup(service.CompleteSignupInput{
		Token:       req.Token,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		if errors.Is(err, service.ErrSignupTokenInvalid) {
			respondError(c, response.CodeBadRequest, "signup token invalid", nil)
			return
		}
		if errors.Is(err, service.ErrSignupTokenExpired) {
			respondError(c, response.CodeBadRequest, "signup token expired", nil)
			return
		}
		if errors.Is(err, service.ErrWeakPassword) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to complete signup", err)
		return
	}

	response.Success(c, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"status":       user.Status,
	})
}
