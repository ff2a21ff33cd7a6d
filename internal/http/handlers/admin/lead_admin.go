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
	"github.com/shopspring/decimal"
)

// CreateLeadRequest 创建线索请求
type CreateLeadRequest struct {
	Name               string  `json:"name" binding:"required"`
	Email              string  `json:"email" binding:"required"`
	Phone              string  `json:"phone"`
	Company            string  `json:"company"`
	OriginCountry      string  `json:"origin_country"`
	DestinationCountry string  `json:"destination_country"`
	EstimatedWeight    float64 `json:"estimated_weight"`
	EstimatedValue     float64 `json:"estimated_value"`
	Notes              string  `json:"notes"`
	AssignedAdminID    *uint   `json:"assigned_admin_id"`
}

// UpdateLeadRequest 更新线索请求，缺省字段不修改
type UpdateLeadRequest struct {
	Name               *string  `json:"name"`
	Email              *string  `json:"email"`
	Phone              *string  `json:"phone"`
	Company            *string  `json:"company"`
	OriginCountry      *string  `json:"origin_country"`
	DestinationCountry *string  `json:"destination_country"`
	EstimatedWeight    *float64 `json:"estimated_weight"`
	EstimatedValue     *float64 `json:"estimated_value"`
	Notes              *string  `json:"notes"`
	Status             *string  `json:"status"`
	AssignedAdminID    *uint    `json:"assigned_admin_id"`
}

// ConvertLeadRequest 线索转运单请求
type ConvertLeadRequest struct {
	OriginAddress      string   `json:"origin_address"`
	DestinationAddress string   `json:"destination_address"`
	ShippingMethod     string   `json:"shipping_method"`
	Weight             *float64 `json:"weight"`
	DeclaredValue      *float64 `json:"declared_value"`
	ShippingCost       *float64 `json:"shipping_cost"`
	EstimatedDelivery  string   `json:"estimated_delivery"`
}

// GetLeads 获取线索列表
func (h *Handler) GetLeads(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	assignedAdminID, _ := strconv.ParseUint(c.Query("assigned_admin_id"), 10, 64)
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

	leads, total, err := h.LeadService.ListLeads(repository.LeadListFilter{
		Page:            page,
		PageSize:        pageSize,
		Status:          strings.TrimSpace(c.Query("status")),
		Search:          strings.TrimSpace(c.Query("search")),
		AssignedAdminID: uint(assignedAdminID),
		CreatedFrom:     createdFrom,
		CreatedTo:       createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load leads", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, leads, pagination)
}

// GetLead 获取线索详情
func (h *Handler) GetLead(c *gin.Context) {
	id, ok := parseLeadIDParam(c)
	if !ok {
		return
	}

	lead, err := h.LeadService.GetLead(id)
	if err != nil {
		if errors.Is(err, service.ErrLeadNotFound) {
			respondError(c, response.CodeNotFound, "lead not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to load lead", err)
		return
	}

	response.Success(c, lead)
}

// CreateLead 创建线索
func (h *Handler) CreateLead(c *gin.Context) {
	var req CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	lead, err := h.LeadService.CreateLead(service.CreateLeadInput{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Company:            req.Company,
		OriginCountry:      req.OriginCountry,
		DestinationCountry: req.DestinationCountry,
		EstimatedWeight:    decimal.NewFromFloat(req.EstimatedWeight),
		EstimatedValue:     decimal.NewFromFloat(req.EstimatedValue),
		Notes:              req.Notes,
		AssignedAdminID:    req.AssignedAdminID,
		CreatedBy:          currentAdminID(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrLeadInvalid) {
			respondError(c, response.CodeBadRequest, "lead name and email are required", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to create lead", err)
		return
	}

	response.Success(c, lead)
}

// UpdateLead 更新线索
func (h *Handler) UpdateLead(c *gin.Context) {
	id, ok := parseLeadIDParam(c)
	if !ok {
		return
	}

	var req UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	input := service.UpdateLeadInput{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Company:            req.Company,
		OriginCountry:      req.OriginCountry,
		DestinationCountry: req.DestinationCountry,
		Notes:              req.Notes,
		Status:             req.Status,
		AssignedAdminID:    req.AssignedAdminID,
	}
	if req.EstimatedWeight != nil {
		weight := decimal.NewFromFloat(*req.EstimatedWeight)
		input.EstimatedWeight = &weight
	}
	if req.EstimatedValue != nil {
		value := decimal.NewFromFloat(*req.EstimatedValue)
		input.EstimatedValue = &value
	}

	lead, err := h.LeadService.UpdateLead(id, input)
	if err != nil {
		if errors.Is(err, service.ErrLeadNotFound) {
			respondError(c, response.CodeNotFound, "lead not found", nil)
			return
		}
		if errors.Is(err, service.ErrLeadInvalid) {
			respondError(c, response.CodeBadRequest, "invalid lead input", nil)
			return
		}
		if errors.Is(err, service.ErrLeadAlreadyConverted) {
			respondError(c, response.CodeBadRequest, "lead already converted", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to update lead", err)
		return
	}

	response.Success(c, lead)
}

// DeleteLead 删除线索（软删除）
func (h *Handler) DeleteLead(c *gin.Context) {
	id, ok := parseLeadIDParam(c)
	if !ok {
		return
	}

	if err := h.LeadService.DeleteLead(id); err != nil {
		if errors.Is(err, service.ErrLeadNotFound) {
			respondError(c, response.CodeNotFound, "lead not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to delete lead", err)
		return
	}

	response.Success(c, nil)
}

// ConvertLead 线索转运单
func (h *Handler) ConvertLead(c *gin.Context) {
	id, ok := parseLeadIDParam(c)
	if !ok {
		return
	}

	var req ConvertLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	estimatedDelivery, err := parseTimeNullable(strings.TrimSpace(req.EstimatedDelivery))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid estimated_delivery", err)
		return
	}

	input := service.ConvertLeadInput{
		OriginAddress:      req.OriginAddress,
		DestinationAddress: req.DestinationAddress,
		ShippingMethod:     req.ShippingMethod,
		EstimatedDelivery:  estimatedDelivery,
		AdminID:            currentAdminID(c),
	}
	if req.Weight != nil {
		weight := decimal.NewFromFloat(*req.Weight)
		input.Weight = &weight
	}
	if req.DeclaredValue != nil {
		value := decimal.NewFromFloat(*req.DeclaredValue)
		input.DeclaredValue = &value
	}
	if req.ShippingCost != nil {
		cost := decimal.NewFromFloat(*req.ShippingCost)
		input.ShippingCost = &cost
	}

	lead, shipment, err := h.LeadService.ConvertLead(id, input)
	if err != nil {
		if errors.Is(err, service.ErrLeadNotFound) {
			respondError(c, response.CodeNotFound, "lead not found", nil)
			return
		}
		if errors.Is(err, service.ErrLeadAlreadyConverted) {
			respondError(c, response.CodeBadRequest, "lead already converted", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to convert lead", err)
		return
	}

	response.Success(c, gin.H{
		"lead":     lead,
		"shipment": shipment,
	})
}

func parseLeadIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid lead id", nil)
		return 0, false
	}
	return uint(id), true
}
