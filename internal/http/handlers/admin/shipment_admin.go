package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/http/handlers/shared"
	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/repository"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateShipmentRequest 创建运单请求
type CreateShipmentRequest struct {
	CustomerName       string   `json:"customer_name" binding:"required"`
	CustomerEmail      string   `json:"customer_email"`
	CustomerPhone      string   `json:"customer_phone"`
	OriginAddress      string   `json:"origin_address"`
	OriginCountry      string   `json:"origin_country"`
	DestinationAddress string   `json:"destination_address"`
	DestinationCountry string   `json:"destination_country"`
	ShippingMethod     string   `json:"shipping_method"`
	Weight             float64  `json:"weight"`
	DeclaredValue      float64  `json:"declared_value"`
	ShippingCost       float64  `json:"shipping_cost"`
	EstimatedDelivery  string   `json:"estimated_delivery"`
	Courier            string   `json:"courier"`
	TrackingNumber     string   `json:"tracking_number"`
	LeadID             *uint    `json:"lead_id"`
	UserID             *uint    `json:"user_id"`
}

// UpdateShipmentRequest 更新运单请求，缺省字段不修改
type UpdateShipmentRequest struct {
	CustomerName       *string  `json:"customer_name"`
	CustomerEmail      *string  `json:"customer_email"`
	CustomerPhone      *string  `json:"customer_phone"`
	OriginAddress      *string  `json:"origin_address"`
	OriginCountry      *string  `json:"origin_country"`
	DestinationAddress *string  `json:"destination_address"`
	DestinationCountry *string  `json:"destination_country"`
	ShippingMethod     *string  `json:"shipping_method"`
	Weight             *float64 `json:"weight"`
	DeclaredValue      *float64 `json:"declared_value"`
	ShippingCost       *float64 `json:"shipping_cost"`
	EstimatedDelivery  *string  `json:"estimated_delivery"`
}

// GetShipments 获取运单列表
func (h *Handler) GetShipments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 64)
	leadID, _ := strconv.ParseUint(c.Query("lead_id"), 10, 64)

	var needsReview *bool
	if raw := strings.TrimSpace(c.Query("needs_review")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid needs_review flag", err)
			return
		}
		needsReview = &parsed
	}

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

	shipments, total, err := h.ShipmentService.ListShipments(repository.ShipmentListFilter{
		Page:                     page,
		PageSize:                 pageSize,
		Status:                   strings.TrimSpace(c.Query("status")),
		Courier:                  strings.TrimSpace(c.Query("courier")),
		Search:                   strings.TrimSpace(c.Query("search")),
		UserID:                   uint(userID),
		LeadID:                   uint(leadID),
		NeedsReview:              needsReview,
		TrackingAssignmentStatus: strings.TrimSpace(c.Query("tracking_status")),
		UserAssignmentStatus:     strings.TrimSpace(c.Query("user_status")),
		CreatedFrom:              createdFrom,
		CreatedTo:                createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load shipments", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, shipments, pagination)
}

// GetShipment 获取运单详情（含事件账目）
func (h *Handler) GetShipment(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	detail, err := h.ShipmentService.GetShipmentDetail(id)
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to load shipment", err)
		return
	}

	response.Success(c, detail)
}

// CreateShipment 创建运单
func (h *Handler) CreateShipment(c *gin.Context) {
	var req CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	estimatedDelivery, err := parseTimeNullable(strings.TrimSpace(req.EstimatedDelivery))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid estimated_delivery", err)
		return
	}

	shipment, err := h.ShipmentService.CreateShipment(service.CreateShipmentInput{
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      req.CustomerPhone,
		OriginAddress:      req.OriginAddress,
		OriginCountry:      req.OriginCountry,
		DestinationAddress: req.DestinationAddress,
		DestinationCountry: req.DestinationCountry,
		ShippingMethod:     req.ShippingMethod,
		Weight:             decimal.NewFromFloat(req.Weight),
		DeclaredValue:      decimal.NewFromFloat(req.DeclaredValue),
		ShippingCost:       decimal.NewFromFloat(req.ShippingCost),
		EstimatedDelivery:  estimatedDelivery,
		Courier:            req.Courier,
		TrackingNumber:     req.TrackingNumber,
		LeadID:             req.LeadID,
		UserID:             req.UserID,
		CreatedBy:          currentAdminID(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrShipmentInvalid) {
			respondError(c, response.CodeBadRequest, "invalid shipment input", nil)
			return
		}
		if errors.Is(err, service.ErrTrackingFormatInvalid) {
			respondError(c, response.CodeUnprocessable, err.Error(), nil)
			return
		}
		var conflictErr *service.TrackingConflictError
		if errors.As(err, &conflictErr) {
			respondTrackingConflict(c, h, conflictErr)
			return
		}
		respondError(c, response.CodeInternal, "failed to create shipment", err)
		return
	}

	response.Success(c, shipment)
}

// UpdateShipment 更新运单基础信息
func (h *Handler) UpdateShipment(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	var req UpdateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	input := service.UpdateShipmentInput{
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      req.CustomerPhone,
		OriginAddress:      req.OriginAddress,
		OriginCountry:      req.OriginCountry,
		DestinationAddress: req.DestinationAddress,
		DestinationCountry: req.DestinationCountry,
		ShippingMethod:     req.ShippingMethod,
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
	if req.EstimatedDelivery != nil {
		estimatedDelivery, err := parseTimeNullable(strings.TrimSpace(*req.EstimatedDelivery))
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid estimated_delivery", err)
			return
		}
		input.EstimatedDelivery = estimatedDelivery
	}

	shipment, err := h.ShipmentService.UpdateShipment(id, input)
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrShipmentInvalid) {
			respondError(c, response.CodeBadRequest, "invalid shipment input", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to update shipment", err)
		return
	}

	response.Success(c, shipment)
}

// DeleteShipment 删除运单（软删除，终态之外需 force）
func (h *Handler) DeleteShipment(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	force := false
	if raw := strings.TrimSpace(c.Query("force")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid force flag", err)
			return
		}
		force = parsed
	}

	if err := h.ShipmentService.DeleteShipment(id, force); err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrShipmentDeleteNotAllowed) {
			respondError(c, response.CodeBadRequest, "shipment is still active, pass force=true to delete", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to delete shipment", err)
		return
	}

	response.Success(c, nil)
}

// GetShipmentEvents 获取运单事件列表
func (h *Handler) GetShipmentEvents(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	events, total, err := h.ShipmentEventService.ListShipmentEvents(repository.ShipmentEventListFilter{
		Page:       page,
		PageSize:   pageSize,
		ShipmentID: id,
		Source:     strings.TrimSpace(c.Query("source")),
		EventType:  strings.TrimSpace(c.Query("event_type")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load shipment events", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, events, pagination)
}

// UpdateShipmentStatusRequest 状态变更请求
type UpdateShipmentStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Notes    string `json:"notes"`
	Location string `json:"location"`
	Override bool   `json:"override"`
}

// UpdateShipmentStatus 手动变更运单状态
func (h *Handler) UpdateShipmentStatus(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	var req UpdateShipmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	shipment, err := h.ShipmentService.UpdateStatus(service.UpdateStatusInput{
		ShipmentID: id,
		NewStatus:  req.Status,
		Source:     constants.EventSourceManual,
		Notes:      req.Notes,
		Location:   req.Location,
		Override:   req.Override,
	})
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrShipmentStatusSame) {
			respondError(c, response.CodeBadRequest, "shipment already in target status", nil)
			return
		}
		var transitionErr *service.StatusTransitionError
		if errors.As(err, &transitionErr) {
			respondErrorWithData(c, response.CodeUnprocessable, "status transition not allowed", gin.H{
				"from":   transitionErr.From,
				"to":     transitionErr.To,
				"source": transitionErr.Source,
			}, nil)
			return
		}
		if errors.Is(err, service.ErrShipmentStatusInvalid) {
			respondError(c, response.CodeUnprocessable, "status transition not allowed", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to update shipment status", err)
		return
	}

	response.Success(c, shipment)
}

// MarkShipmentReviewed 清除人工复核标记
func (h *Handler) MarkShipmentReviewed(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	shipment, err := h.ShipmentService.MarkReviewed(id)
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to mark shipment reviewed", err)
		return
	}

	response.Success(c, shipment)
}

// SyncShipment 手动触发承运商同步
func (h *Handler) SyncShipment(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	result, err := h.CarrierSyncService.ManualSync(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCarrierSyncDisabled) {
			respondError(c, response.CodeServiceUnavailable, "carrier sync is disabled", nil)
			return
		}
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrTrackingNotAssigned) {
			respondError(c, response.CodeBadRequest, "shipment has no tracking number", nil)
			return
		}
		respondError(c, response.CodeInternal, "carrier sync failed", err)
		return
	}

	response.Success(c, result)
}

// AssignShipmentUserRequest 关联客户请求
type AssignShipmentUserRequest struct {
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// AssignShipmentUser 将运单关联到客户账号，必要时创建邀请账号
func (h *Handler) AssignShipmentUser(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	var req AssignShipmentUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.UserService.AssignUserToShipment(service.AssignUserInput{
		ShipmentID:  id,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		AdminID:     currentAdminID(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrInvalidEmail) {
			respondError(c, response.CodeBadRequest, "invalid email address", nil)
			return
		}
		if errors.Is(err, service.ErrUserDisabled) {
			respondError(c, response.CodeBadRequest, "user account is disabled", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to assign user", err)
		return
	}

	response.Success(c, result)
}

func parseShipmentIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid shipment id", nil)
		return 0, false
	}
	return uint(id), true
}
