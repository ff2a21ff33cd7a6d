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

// GetUsers 获取客户列表
func (h *Handler) GetUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

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

	users, total, err := h.UserService.ListUsers(repository.UserListFilter{
		Page:        page,
		PageSize:    pageSize,
		Keyword:     strings.TrimSpace(c.Query("search")),
		Status:      strings.TrimSpace(c.Query("status")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load users", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, users, pagination)
}

// GetUser 获取客户详情
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	user, err := h.UserService.GetUser(id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to load user", err)
		return
	}

	response.Success(c, user)
}

// GetUserShipments 获取客户名下运单
func (h *Handler) GetUserShipments(c *gin.Context) {
	id, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	shipments, err := h.UserService.GetUserShipments(id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to load user shipments", err)
		return
	}

	response.Success(c, shipments)
}

// DisableUser 停用客户账号并吊销未完成的注册令牌
func (h *Handler) DisableUser(c *gin.Context) {
	id, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	user, err := h.UserService.DisableUser(id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to disable user", err)
		return
	}

	response.Success(c, user)
}

func parseUserIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid user id", nil)
		return 0, false
	}
	return uint(id), true
}
