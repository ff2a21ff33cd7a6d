package public

import (
	"errors"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// GetPublicTracking 公开查询运单跟踪
// 输出经白标过滤，对外不区分“不存在”与“不可展示”。
func (h *Handler) GetPublicTracking(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		respondError(c, response.CodeNotFound, "tracking code not found", nil)
		return
	}

	shipment, err := h.ShipmentService.GetShipmentByTrackingCode(code)
	if err != nil {
		if errors.Is(err, service.ErrShipmentNotFound) {
			respondError(c, response.CodeNotFound, "tracking code not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "tracking lookup failed", err)
		return
	}

	events, err := h.ShipmentEventService.ListAllByShipment(shipment.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "tracking lookup failed", err)
		return
	}

	view, err := h.WhiteLabelService.SanitizeShipmentForPublic(shipment, events)
	if err != nil {
		if errors.Is(err, service.ErrTrackingCodeUnsafe) {
			logger.Warnw("public_tracking_code_unsafe",
				"shipment_id", shipment.ID,
			)
			respondError(c, response.CodeNotFound, "tracking code not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "tracking lookup failed", err)
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	response.Success(c, view)
}
