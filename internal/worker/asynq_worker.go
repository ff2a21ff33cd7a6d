package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/provider"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/service"

	"github.com/hibiken/asynq"
)

const cleanupSignupsBatchSize = 200

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCarrierSync, c.handleCarrierSync)
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskSignupEmail, c.handleSignupEmail)
	mux.HandleFunc(queue.TaskCleanupSignups, c.handleCleanupSignups)
}

func (c *Consumer) handleCarrierSync(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_carrier_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CarrierSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_carrier_sync_unmarshal_failed", "error", err)
		return err
	}
	if payload.ShipmentID == 0 {
		logger.Debugw("worker_carrier_sync_skip_invalid_payload", "shipment_id", payload.ShipmentID)
		return nil
	}
	if c.CarrierSyncService == nil {
		logger.Warnw("worker_carrier_sync_skip_service_nil", "shipment_id", payload.ShipmentID)
		return nil
	}
	_, err := c.CarrierSyncService.SyncShipment(ctx, payload.ShipmentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCarrierSyncDisabled):
			logger.Debugw("worker_carrier_sync_skip_disabled", "shipment_id", payload.ShipmentID)
			return nil
		case errors.Is(err, service.ErrShipmentNotFound):
			logger.Debugw("worker_carrier_sync_skip_shipment_not_found", "shipment_id", payload.ShipmentID)
			return nil
		case errors.Is(err, service.ErrTrackingNotAssigned):
			logger.Debugw("worker_carrier_sync_skip_tracking_unassigned", "shipment_id", payload.ShipmentID)
			return nil
		default:
			logger.Warnw("worker_carrier_sync_failed", "shipment_id", payload.ShipmentID, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_notification_dispatch_skip_service_nil", "event", payload.Event)
		return nil
	}
	if err := c.NotificationService.Dispatch(ctx, payload); err != nil {
		if errors.Is(err, service.ErrNotificationEventInvalid) {
			logger.Debugw("worker_notification_dispatch_skip_invalid_event", "event", payload.Event)
			return nil
		}
		logger.Warnw("worker_notification_dispatch_failed", "event", payload.Event, "biz_id", payload.BizID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleSignupEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_signup_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SignupEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_signup_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.UserID == 0 {
		logger.Debugw("worker_signup_email_skip_invalid_payload", "user_id", payload.UserID)
		return nil
	}

	user, err := c.UserRepo.GetByID(payload.UserID)
	if err != nil {
		logger.Warnw("worker_signup_email_fetch_user_failed", "user_id", payload.UserID, "error", err)
		return err
	}
	if user == nil {
		logger.Debugw("worker_signup_email_skip_user_not_found", "user_id", payload.UserID)
		return nil
	}
	if user.SignupCompletedAt != nil || strings.TrimSpace(user.SignupToken) == "" {
		logger.Debugw("worker_signup_email_skip_token_unavailable", "user_id", user.ID)
		return nil
	}

	trackingCode := ""
	if payload.ShipmentID != 0 {
		shipment, err := c.ShipmentRepo.GetByID(payload.ShipmentID)
		if err != nil {
			logger.Warnw("worker_signup_email_fetch_shipment_failed", "shipment_id", payload.ShipmentID, "error", err)
		} else if shipment != nil {
			trackingCode = shipment.TrackingCode
		}
	}

	if c.EmailService == nil || !c.EmailService.Enabled() {
		logger.Debugw("worker_signup_email_skip_email_disabled", "user_id", user.ID)
		return nil
	}

	input := service.SignupInviteEmailInput{
		DisplayName:  user.DisplayName,
		TrackingCode: trackingCode,
		SignupURL:    buildSignupURL(c.Config.Signup.PortalBaseURL, user.SignupToken),
	}
	if user.SignupTokenExpiresAt != nil {
		input.ExpiresAt = *user.SignupTokenExpiresAt
	}
	if err := c.EmailService.SendSignupInvite(user.Email, input); err != nil {
		if errors.Is(err, service.ErrEmailRecipientRejected) {
			logger.Warnw("worker_signup_email_recipient_rejected", "user_id", user.ID, "error", err)
			return nil
		}
		logger.Warnw("worker_signup_email_send_failed", "user_id", user.ID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleCleanupSignups(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_cleanup_signups_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	if c.UserService == nil {
		logger.Warnw("worker_cleanup_signups_skip_service_nil")
		return nil
	}
	expired, err := c.UserService.ExpireStaleSignups(cleanupSignupsBatchSize)
	if err != nil {
		logger.Warnw("worker_cleanup_signups_failed", "error", err)
		return err
	}
	if expired > 0 {
		logger.Infow("worker_cleanup_signups_done", "expired", expired)
	}
	return nil
}

func buildSignupURL(portalBaseURL, token string) string {
	base := strings.TrimRight(strings.TrimSpace(portalBaseURL), "/")
	if base == "" {
		base = "http://localhost:3000"
	}
	return fmt.Sprintf("%s/signup?token=%s", base, token)
}
