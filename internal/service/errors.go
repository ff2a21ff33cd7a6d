package service

import "errors"

// 服务层统一业务错误，HTTP 层按错误映射状态码与提示。
var (
	ErrNotFound = errors.New("record not found")

	ErrShipmentInvalid          = errors.New("invalid shipment input")
	ErrShipmentNotFound         = errors.New("shipment not found")
	ErrShipmentFetchFailed      = errors.New("shipment fetch failed")
	ErrShipmentCreateFailed     = errors.New("shipment create failed")
	ErrShipmentUpdateFailed     = errors.New("shipment update failed")
	ErrShipmentDeleteNotAllowed = errors.New("shipment delete not allowed")
	ErrShipmentStatusSame       = errors.New("shipment already in target status")
	ErrShipmentStatusInvalid    = errors.New("shipment status transition not allowed")

	ErrShipmentEventInvalid      = errors.New("shipment event invalid")
	ErrShipmentEventCreateFailed = errors.New("shipment event create failed")

	ErrTrackingFormatInvalid = errors.New("tracking number format invalid")
	ErrTrackingConflict      = errors.New("tracking number already assigned")
	ErrTrackingNotAssigned   = errors.New("shipment has no tracking number")
	ErrTrackingAssignFailed  = errors.New("tracking assignment failed")
	ErrTrackingCodeUnsafe    = errors.New("tracking code matches carrier number format")
	ErrConflictActionInvalid = errors.New("conflict resolution action not supported")
	ErrBulkAssignmentInvalid = errors.New("bulk tracking assignment validation failed")

	ErrCarrierSyncFailed   = errors.New("carrier sync failed")
	ErrCarrierSyncDisabled = errors.New("carrier sync disabled")

	ErrLeadInvalid          = errors.New("invalid lead input")
	ErrLeadNotFound         = errors.New("lead not found")
	ErrLeadFetchFailed      = errors.New("lead fetch failed")
	ErrLeadCreateFailed     = errors.New("lead create failed")
	ErrLeadUpdateFailed     = errors.New("lead update failed")
	ErrLeadAlreadyConverted = errors.New("lead already converted")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserFetchFailed    = errors.New("user fetch failed")
	ErrUserCreateFailed   = errors.New("user create failed")
	ErrUserUpdateFailed   = errors.New("user update failed")
	ErrUserEmailExists    = errors.New("user email already exists")
	ErrUserDisabled       = errors.New("user disabled")
	ErrSignupTokenInvalid = errors.New("signup token invalid")
	ErrSignupTokenExpired = errors.New("signup token expired")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrWeakPassword       = errors.New("password does not meet policy")

	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaConfigInvalid = errors.New("captcha config invalid")

	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrInvalidEmail              = errors.New("invalid email address")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")

	ErrNotificationEventInvalid = errors.New("notification event not supported")
	ErrNotificationNotFound     = errors.New("notification not found")

	ErrDashboardRangeInvalid = errors.New("dashboard range invalid")
)
