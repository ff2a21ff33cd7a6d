package admin

import (
	"errors"

	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// AssignTrackingRequest 绑定承运商单号请求
type AssignTrackingRequest struct {
	Courier        string `json:"courier" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
	ShippingMethod string `json:"shipping_method"`
}

// ResolveTrackingConflictRequest 处理单号冲突请求
type ResolveTrackingConflictRequest struct {
	Courier        string `json:"courier" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
	ShippingMethod string `json:"shipping_method"`
	Action         string `json:"action" binding:"required"`
	Reason         string `json:"reason"`
}

// BulkTrackingRequest 批量绑定请求
type BulkTrackingRequest struct {
	Items []service.BulkAssignmentItem `json:"items" binding:"required"`
}

// AssignTracking 为运单绑定承运商单号
func (h *Handler) AssignTracking(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	var req AssignTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	shipment, err := h.TrackingService.AssignTracking(service.AssignTrackingInput{
		ShipmentID:     id,
		Courier:        req.Courier,
		TrackingNumber: req.TrackingNumber,
		ShippingMethod: req.ShippingMethod,
		AdminID:        currentAdminID(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
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
		respondError(c, response.CodeInternal, "failed to assign tracking number", err)
		return
	}

	response.Success(c, shipment)
}

// ResolveTrackingConflict 按指定动作处理单号冲突
func (h *Handler) ResolveTrackingConflict(c *gin.Context) {
	id, ok := parseShipmentIDParam(c)
	if !ok {
		return
	}

	var req ResolveTrackingConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.TrackingService.ResolveTrackingConflict(service.ResolveConflictInput{
		ShipmentID:     id,
		Courier:        req.Courier,
		TrackingNumber: req.TrackingNumber,
		ShippingMethod: req.ShippingMethod,
		Action:         req.Action,
		Reason:         req.Reason,
		AdminID:        currentAdminID(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "shipment not found", nil)
			return
		}
		if errors.Is(err, service.ErrConflictActionInvalid) {
			respondError(c, response.CodeBadRequest, "conflict resolution action not supported", nil)
			return
		}
		if errors.Is(err, service.ErrTrackingFormatInvalid) {
			respondError(c, response.CodeUnprocessable, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to resolve tracking conflict", err)
		return
	}

	response.Success(c, result)
}

// ValidateBulkTracking 批量绑定预校验（不落库）
func (h *Handler) ValidateBulkTracking(c *gin.Context) {
	var req BulkTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.TrackingService.ValidateBulkTrackingAssignments(req.Items)
	if err != nil {
		respondError(c, response.CodeInternal, "bulk validation failed", err)
		return
	}

	response.Success(c, result)
}

// ApplyBulkTracking 批量绑定，先整体校验后逐条执行
func (h *Handler) ApplyBulkTracking(c *gin.Context) {
	var req BulkTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	result, err := h.TrackingService.ApplyBulkTrackingAssignments(req.Items, currentAdminID(c))
	if err != nil {
		var validationErr *service.BulkValidationFailedError
		if errors.As(err, &validationErr) {
			respondErrorWithData(c, response.CodeUnprocessable, "bulk tracking assignment validation failed", validationErr.Result, nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to apply bulk tracking assignments", err)
		return
	}

	response.Success(c, result)
}

func respondTrackingConflict(c *gin.Context, h *Handler, conflictErr *service.TrackingConflictError) {
	respondErrorWithData(c, response.CodeConflict, "tracking number already assigned", gin.H{
		"conflict":    conflictErr.Conflict,
		"suggestions": h.TrackingService.SuggestConflictResolution(conflictErr.Conflict),
	}, nil)
}
