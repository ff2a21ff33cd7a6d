package public

import (
	"errors"
	"io"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/carrier"
	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/logger"

	"github.com/gin-gonic/gin"
)

const webhookBodyLimit = 1 << 20 // 1MiB

// CarrierWebhook 接收承运商推送
// 签名校验失败返回 401；通过校验后无论运单是否命中都回 200，避免承运商重试风暴。
func (h *Handler) CarrierWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	provider, err := carrier.NewByName(providerName, &h.Config.Carriers)
	if err != nil {
		respondError(c, response.CodeNotFound, "unknown webhook provider", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		respondError(c, response.CodeBadRequest, "failed to read webhook body", err)
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.GetHeader(key)
	}

	event, err := provider.VerifyAndParseWebhook(headers, body, time.Now())
	if err != nil {
		if errors.Is(err, carrier.ErrSignatureInvalid) {
			logger.Warnw("webhook_signature_invalid",
				"provider", provider.Name(),
				"client_ip", c.ClientIP(),
			)
			respondError(c, response.CodeUnauthorized, "webhook signature invalid", nil)
			return
		}
		respondError(c, response.CodeBadRequest, "webhook payload invalid", err)
		return
	}

	result, err := h.CarrierSyncService.IngestWebhook(event)
	if err != nil {
		// 未命中运单或同步停用不向承运商暴露，照常确认接收
		logger.Warnw("webhook_ingest_skipped",
			"provider", provider.Name(),
			"tracking_number", event.TrackingNumber,
			"error", err,
		)
		response.Success(c, gin.H{"accepted": true})
		return
	}

	logger.Infow("webhook_ingested",
		"provider", provider.Name(),
		"tracking_number", event.TrackingNumber,
		"appended", result.Appended,
		"deduped", result.Deduped,
		"final_status", result.FinalStatus,
	)
	response.Success(c, gin.H{
		"accepted": true,
		"appended": result.Appended,
		"deduped":  result.Deduped,
	})
}
