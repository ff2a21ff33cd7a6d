package service

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"

	"gorm.io/gorm"
)

// bulkAssignWorkers 批量绑定的固定并发数
const bulkAssignWorkers = 4

// carrierNumberPattern 承运商单号格式与校验提示
type carrierNumberPattern struct {
	Pattern *regexp.Regexp
	Hint    string
}

// carrierNumberPatterns 已知承运商的单号格式表，未知承运商走宽松格式。
var carrierNumberPatterns = map[string]carrierNumberPattern{
	constants.CourierFedex: {
		Pattern: regexp.MustCompile(`^(\d{12}|\d{15}|\d{20})$`),
		Hint:    "fedex tracking numbers are 12, 15 or 20 digits",
	},
	constants.CourierUPS: {
		Pattern: regexp.MustCompile(`^1Z[0-9A-Z]{16}$`),
		Hint:    "ups tracking numbers start with 1Z followed by 16 characters",
	},
	constants.CourierUSPS: {
		Pattern: regexp.MustCompile(`^\d{20,22}$`),
		Hint:    "usps tracking numbers are 20 to 22 digits",
	},
	constants.CourierDHL: {
		Pattern: regexp.MustCompile(`^\d{10,11}$`),
		Hint:    "dhl tracking numbers are 10 or 11 digits",
	},
}

var genericTrackingNumberPattern = regexp.MustCompile(`^[0-9A-Za-z-]{6,40}$`)

// TrackingService 承运商单号绑定与冲突处理服务
type TrackingService struct {
	shipmentRepo repository.ShipmentRepository
	eventSvc     *ShipmentEventService
	queueClient  *queue.Client
}

// NewTrackingService 创建单号服务
func NewTrackingService(
	shipmentRepo repository.ShipmentRepository,
	eventSvc *ShipmentEventService,
	queueClient *queue.Client,
) *TrackingService {
	return &TrackingService{
		shipmentRepo: shipmentRepo,
		eventSvc:     eventSvc,
		queueClient:  queueClient,
	}
}

// TrackingConflict 单号冲突详情，指明当前持有该单号的运单。
type TrackingConflict struct {
	ShipmentID     uint   `json:"shipment_id"`
	TrackingCode   string `json:"tracking_code"`
	CustomerName   string `json:"customer_name"`
	Status         string `json:"status"`
	Courier        string `json:"courier"`
	TrackingNumber string `json:"tracking_number"`
}

// TrackingConflictError 单号冲突错误，携带冲突详情
type TrackingConflictError struct {
	Conflict *TrackingConflict
}

func (e *TrackingConflictError) Error() string {
	return fmt.Sprintf("tracking number %s already assigned to shipment %s",
		e.Conflict.TrackingNumber, e.Conflict.TrackingCode)
}

// Is 支持 errors.Is(err, ErrTrackingConflict) 判定
func (e *TrackingConflictError) Is(target error) bool {
	return target == ErrTrackingConflict
}

// ConflictResolutionSuggestion 冲突处理建议
type ConflictResolutionSuggestion struct {
	Action      string `json:"action"`
	Description string `json:"description"`
}

// AssignTrackingInput 绑定单号入参
type AssignTrackingInput struct {
	ShipmentID     uint
	Courier        string
	TrackingNumber string
	ShippingMethod string
	AdminID        uint
}

// ResolveConflictInput 处理单号冲突入参
type ResolveConflictInput struct {
	ShipmentID     uint
	Courier        string
	TrackingNumber string
	ShippingMethod string
	Action         string
	Reason         string
	AdminID        uint
}

// ConflictResolutionResult 冲突处理结果
type ConflictResolutionResult struct {
	Applied        bool             `json:"applied"`
	Action         string           `json:"action"`
	Shipment       *models.Shipment `json:"shipment,omitempty"`
	PreviousHolder *models.Shipment `json:"previous_holder,omitempty"`
}

// BulkAssignmentItem 批量绑定条目
type BulkAssignmentItem struct {
	ShipmentID     uint   `json:"shipment_id"`
	Courier        string `json:"courier"`
	TrackingNumber string `json:"tracking_number"`
	ShippingMethod string `json:"shipping_method"`
}

// BulkValidationError 批量绑定校验错误
type BulkValidationError struct {
	Index      int    `json:"index"`
	ShipmentID uint   `json:"shipment_id"`
	Category   string `json:"category"`
	Message    string `json:"message"`
}

// BulkValidationResult 批量绑定校验结果
type BulkValidationResult struct {
	Valid  bool                  `json:"valid"`
	Errors []BulkValidationError `json:"errors"`
}

// BulkValidationFailedError 批量校验未通过，携带逐条错误明细
type BulkValidationFailedError struct {
	Result *BulkValidationResult
}

func (e *BulkValidationFailedError) Error() string {
	return fmt.Sprintf("bulk tracking assignment validation failed with %d errors", len(e.Result.Errors))
}

// Is 支持 errors.Is(err, ErrBulkAssignmentInvalid) 判定
func (e *BulkValidationFailedError) Is(target error) bool {
	return target == ErrBulkAssignmentInvalid
}

// BulkApplyItemResult 批量绑定单条执行结果
type BulkApplyItemResult struct {
	Index      int    `json:"index"`
	ShipmentID uint   `json:"shipment_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BulkApplyResult 批量绑定执行汇总
type BulkApplyResult struct {
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Items     []BulkApplyItemResult `json:"items"`
}

// ValidateTrackingNumberFormat 校验单号是否符合承运商格式
func (s *TrackingService) ValidateTrackingNumberFormat(courier, trackingNumber string) error {
	number := normalizeTrackingNumber(trackingNumber)
	if number == "" {
		return fmt.Errorf("%w: tracking number is required", ErrTrackingFormatInvalid)
	}
	if known, ok := carrierNumberPatterns[normalizeCourier(courier)]; ok {
		if !known.Pattern.MatchString(number) {
			return fmt.Errorf("%w: %s", ErrTrackingFormatInvalid, known.Hint)
		}
		return nil
	}
	if !genericTrackingNumberPattern.MatchString(number) {
		return fmt.Errorf("%w: tracking numbers must be 6 to 40 letters, digits or dashes", ErrTrackingFormatInvalid)
	}
	return nil
}

// CheckTrackingNumberConflict 检查单号是否已被其他运单占用
func (s *TrackingService) CheckTrackingNumberConflict(courier, trackingNumber string, excludeShipmentID uint) (*TrackingConflict, error) {
	courier = normalizeCourier(courier)
	number := normalizeTrackingNumber(trackingNumber)
	holder, err := s.shipmentRepo.GetByCarrierTracking(courier, number)
	if err != nil {
		return nil, ErrShipmentFetchFailed
	}
	if holder == nil || holder.ID == excludeShipmentID {
		return nil, nil
	}
	return conflictFromShipment(holder, courier, number), nil
}

// SuggestConflictResolution 给出固定的冲突处理建议菜单
func (s *TrackingService) SuggestConflictResolution(conflict *TrackingConflict) []ConflictResolutionSuggestion {
	if conflict == nil {
		return nil
	}
	holder := fmt.Sprintf("%s (%s)", conflict.TrackingCode, conflict.CustomerName)
	return []ConflictResolutionSuggestion{
		{
			Action:      constants.ConflictActionOverride,
			Description: fmt.Sprintf("remove the tracking number from shipment %s and assign it here", holder),
		},
		{
			Action:      constants.ConflictActionSkip,
			Description: fmt.Sprintf("keep the tracking number on shipment %s and leave this shipment unchanged", holder),
		},
		{
			Action:      constants.ConflictActionUpdateExisting,
			Description: fmt.Sprintf("keep the assignment on shipment %s and refresh its shipping details", holder),
		},
	}
}

// AssignTracking 为运单绑定承运商单号。格式与冲突校验都通过后落库，
// 随后异步触发一次承运商同步。
func (s *TrackingService) AssignTracking(input AssignTrackingInput) (*models.Shipment, error) {
	courier := normalizeCourier(input.Courier)
	number := normalizeTrackingNumber(input.TrackingNumber)
	if err := s.ValidateTrackingNumberFormat(courier, number); err != nil {
		return nil, err
	}

	var shipment *models.Shipment
	err := s.shipmentRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.shipmentRepo.WithTx(tx)
		locked, err := repo.GetByIDForUpdate(input.ShipmentID)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		if locked == nil {
			return ErrShipmentNotFound
		}
		if err := s.assignWithinTx(tx, locked, courier, number, input.ShippingMethod, input.AdminID, time.Now()); err != nil {
			return err
		}
		shipment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	enqueueCarrierSync(s.queueClient, shipment.ID)
	s.notifyTrackingAssigned(shipment, courier, number)
	return shipment, nil
}

// assignWithinTx 事务内完成冲突复查、字段落库与 tracking_assigned 事件。
// 复查带行锁，两个并发绑定不会同时通过。
func (s *TrackingService) assignWithinTx(tx *gorm.DB, shipment *models.Shipment, courier, trackingNumber, shippingMethod string, adminID uint, now time.Time) error {
	repo := s.shipmentRepo.WithTx(tx)
	holder, err := repo.GetByCarrierTrackingForUpdate(courier, trackingNumber)
	if err != nil {
		return ErrShipmentFetchFailed
	}
	if holder != nil && holder.ID != shipment.ID {
		return &TrackingConflictError{Conflict: conflictFromShipment(holder, courier, trackingNumber)}
	}

	method := strings.TrimSpace(shippingMethod)
	updates := map[string]interface{}{
		"courier":                    courier,
		"tracking_number":            trackingNumber,
		"tracking_assignment_status": constants.TrackingAssignmentAssigned,
		"updated_at":                 now,
	}
	if method != "" {
		updates["shipping_method"] = method
	}
	if err := repo.UpdateFields(shipment.ID, updates); err != nil {
		return ErrTrackingAssignFailed
	}

	if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
		ShipmentID:  shipment.ID,
		EventType:   constants.EventTypeTrackingAssigned,
		Source:      constants.EventSourceManual,
		SourceID:    formatAdminSourceID(adminID),
		Description: fmt.Sprintf("carrier tracking number %s assigned", trackingNumber),
		EventTime:   now,
		Metadata: models.JSON{
			"courier":         courier,
			"tracking_number": trackingNumber,
		},
		CreatedBy: adminID,
	}); err != nil {
		return err
	}

	shipment.Courier = courier
	shipment.TrackingNumber = trackingNumber
	shipment.TrackingAssignmentStatus = constants.TrackingAssignmentAssigned
	if method != "" {
		shipment.ShippingMethod = method
	}
	shipment.UpdatedAt = now
	return nil
}

// ResolveTrackingConflict 处理单号冲突。override 与 update_existing 在一个
// 事务内完成，事务中带行锁复查冲突，skip 不产生任何写入。
func (s *TrackingService) ResolveTrackingConflict(input ResolveConflictInput) (*ConflictResolutionResult, error) {
	action := strings.ToLower(strings.TrimSpace(input.Action))
	switch action {
	case constants.ConflictActionOverride, constants.ConflictActionSkip, constants.ConflictActionUpdateExisting:
	default:
		return nil, ErrConflictActionInvalid
	}
	courier := normalizeCourier(input.Courier)
	number := normalizeTrackingNumber(input.TrackingNumber)
	if err := s.ValidateTrackingNumberFormat(courier, number); err != nil {
		return nil, err
	}

	if action == constants.ConflictActionSkip {
		return &ConflictResolutionResult{Applied: false, Action: action}, nil
	}

	result := &ConflictResolutionResult{Action: action}
	err := s.shipmentRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.shipmentRepo.WithTx(tx)
		target, err := repo.GetByIDForUpdate(input.ShipmentID)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		if target == nil {
			return ErrShipmentNotFound
		}
		holder, err := repo.GetByCarrierTrackingForUpdate(courier, number)
		if err != nil {
			return ErrShipmentFetchFailed
		}
		now := time.Now()

		switch action {
		case constants.ConflictActionOverride:
			if holder != nil && holder.ID != target.ID {
				if err := s.releaseWithinTx(tx, holder, target, input.Reason, input.AdminID, now); err != nil {
					return err
				}
				result.PreviousHolder = holder
			}
			if err := s.assignWithinTx(tx, target, courier, number, input.ShippingMethod, input.AdminID, now); err != nil {
				return err
			}
			result.Applied = true
			result.Shipment = target
		case constants.ConflictActionUpdateExisting:
			if holder == nil || holder.ID == target.ID {
				// 冲突已不存在，无可修正的持有方
				result.Applied = false
				return nil
			}
			if err := s.refreshHolderWithinTx(tx, holder, input.ShippingMethod, input.Reason, input.AdminID, now); err != nil {
				return err
			}
			result.Applied = true
			result.Shipment = holder
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.notifyConflictResolved(result, courier, number)
		if action == constants.ConflictActionOverride && result.Shipment != nil {
			enqueueCarrierSync(s.queueClient, result.Shipment.ID)
		}
	}
	return result, nil
}

// releaseWithinTx 事务内从原持有运单上摘除单号并记 tracking_removed 事件
func (s *TrackingService) releaseWithinTx(tx *gorm.DB, holder, target *models.Shipment, reason string, adminID uint, now time.Time) error {
	repo := s.shipmentRepo.WithTx(tx)
	if err := repo.UpdateFields(holder.ID, map[string]interface{}{
		"courier":                    "",
		"tracking_number":            "",
		"tracking_assignment_status": constants.TrackingAssignmentUnassigned,
		"updated_at":                 now,
	}); err != nil {
		return ErrTrackingAssignFailed
	}

	metadata := models.JSON{
		"courier":         holder.Courier,
		"tracking_number": holder.TrackingNumber,
		"reassigned_to":   target.TrackingCode,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata["reason"] = reason
	}
	if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
		ShipmentID:  holder.ID,
		EventType:   constants.EventTypeTrackingRemoved,
		Source:      constants.EventSourceManual,
		SourceID:    formatAdminSourceID(adminID),
		Description: fmt.Sprintf("carrier tracking number reassigned to shipment %s", target.TrackingCode),
		EventTime:   now,
		Metadata:    metadata,
		CreatedBy:   adminID,
	}); err != nil {
		return err
	}

	holder.Courier = ""
	holder.TrackingNumber = ""
	holder.TrackingAssignmentStatus = constants.TrackingAssignmentUnassigned
	holder.UpdatedAt = now
	return nil
}

// refreshHolderWithinTx 事务内修正原持有运单的绑定信息并记修正事件
func (s *TrackingService) refreshHolderWithinTx(tx *gorm.DB, holder *models.Shipment, shippingMethod, reason string, adminID uint, now time.Time) error {
	repo := s.shipmentRepo.WithTx(tx)
	updates := map[string]interface{}{
		"tracking_assignment_status": constants.TrackingAssignmentAssigned,
		"updated_at":                 now,
	}
	if method := strings.TrimSpace(shippingMethod); method != "" {
		updates["shipping_method"] = method
		holder.ShippingMethod = method
	}
	if err := repo.UpdateFields(holder.ID, updates); err != nil {
		return ErrTrackingAssignFailed
	}

	metadata := models.JSON{
		"courier":         holder.Courier,
		"tracking_number": holder.TrackingNumber,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata["reason"] = reason
	}
	if _, _, err := s.eventSvc.AddEventTx(tx, AddShipmentEventInput{
		ShipmentID:  holder.ID,
		EventType:   constants.EventTypeTrackingAssigned,
		Source:      constants.EventSourceManual,
		SourceID:    formatAdminSourceID(adminID),
		Description: "carrier tracking assignment details refreshed",
		EventTime:   now,
		Metadata:    metadata,
		CreatedBy:   adminID,
	}); err != nil {
		return err
	}
	holder.UpdatedAt = now
	return nil
}

// ValidateBulkTrackingAssignments 批量绑定预校验。三类错误相互独立：
// 单号格式、与存量数据冲突、批次内重复（重复的每一条都会标记）。
func (s *TrackingService) ValidateBulkTrackingAssignments(items []BulkAssignmentItem) (*BulkValidationResult, error) {
	result := &BulkValidationResult{Valid: true}

	type batchKey struct {
		Courier string
		Number  string
	}
	occurrences := make(map[batchKey][]int, len(items))

	for i, item := range items {
		courier := normalizeCourier(item.Courier)
		number := normalizeTrackingNumber(item.TrackingNumber)
		occurrences[batchKey{Courier: courier, Number: number}] = append(occurrences[batchKey{Courier: courier, Number: number}], i)

		if err := s.ValidateTrackingNumberFormat(courier, number); err != nil {
			result.Errors = append(result.Errors, BulkValidationError{
				Index:      i,
				ShipmentID: item.ShipmentID,
				Category:   constants.BulkErrorFormat,
				Message:    err.Error(),
			})
			continue
		}
		conflict, err := s.CheckTrackingNumberConflict(courier, number, item.ShipmentID)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			result.Errors = append(result.Errors, BulkValidationError{
				Index:      i,
				ShipmentID: item.ShipmentID,
				Category:   constants.BulkErrorConflict,
				Message:    fmt.Sprintf("tracking number already assigned to shipment %s (%s)", conflict.TrackingCode, conflict.CustomerName),
			})
		}
	}

	for i, item := range items {
		key := batchKey{Courier: normalizeCourier(item.Courier), Number: normalizeTrackingNumber(item.TrackingNumber)}
		if len(occurrences[key]) > 1 {
			result.Errors = append(result.Errors, BulkValidationError{
				Index:      i,
				ShipmentID: item.ShipmentID,
				Category:   constants.BulkErrorDuplicateInBatch,
				Message:    fmt.Sprintf("tracking number appears %d times in this batch", len(occurrences[key])),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ApplyBulkTrackingAssignments 批量绑定。先整体校验（任一错误则整批拒绝），
// 校验通过后用固定并发逐条执行，单条失败不影响其余条目。
func (s *TrackingService) ApplyBulkTrackingAssignments(items []BulkAssignmentItem, adminID uint) (*BulkApplyResult, error) {
	validation, err := s.ValidateBulkTrackingAssignments(items)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, &BulkValidationFailedError{Result: validation}
	}

	result := &BulkApplyResult{
		Total: len(items),
		Items: make([]BulkApplyItemResult, len(items)),
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := bulkAssignWorkers
	if workers > len(items) {
		workers = len(items)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]
				itemResult := BulkApplyItemResult{Index: i, ShipmentID: item.ShipmentID}
				if _, err := s.AssignTracking(AssignTrackingInput{
					ShipmentID:     item.ShipmentID,
					Courier:        item.Courier,
					TrackingNumber: item.TrackingNumber,
					ShippingMethod: item.ShippingMethod,
					AdminID:        adminID,
				}); err != nil {
					itemResult.Error = err.Error()
					logger.Warnw("bulk_tracking_assign_item_failed",
						"shipment_id", item.ShipmentID,
						"index", i,
						"error", err,
					)
				} else {
					itemResult.Success = true
				}
				result.Items[i] = itemResult
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, item := range result.Items {
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (s *TrackingService) notifyTrackingAssigned(shipment *models.Shipment, courier, trackingNumber string) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventTrackingAssigned,
		BizType: constants.NotificationBizTypeShipment,
		BizID:   shipment.ID,
		Data: map[string]interface{}{
			"tracking_code":   shipment.TrackingCode,
			"courier":         courier,
			"tracking_number": trackingNumber,
		},
	})
	if err != nil {
		logger.Warnw("tracking_notify_enqueue_failed",
			"shipment_id", shipment.ID,
			"event", constants.NotificationEventTrackingAssigned,
			"error", err,
		)
	}
}

func (s *TrackingService) notifyConflictResolved(result *ConflictResolutionResult, courier, trackingNumber string) {
	if s.queueClient == nil || !s.queueClient.Enabled() || result.Shipment == nil {
		return
	}
	data := map[string]interface{}{
		"action":          result.Action,
		"tracking_code":   result.Shipment.TrackingCode,
		"courier":         courier,
		"tracking_number": trackingNumber,
	}
	if result.PreviousHolder != nil {
		data["previous_tracking_code"] = result.PreviousHolder.TrackingCode
	}
	err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{
		Event:   constants.NotificationEventTrackingConflict,
		BizType: constants.NotificationBizTypeShipment,
		BizID:   result.Shipment.ID,
		Data:    data,
	})
	if err != nil {
		logger.Warnw("tracking_notify_enqueue_failed",
			"shipment_id", result.Shipment.ID,
			"event", constants.NotificationEventTrackingConflict,
			"error", err,
		)
	}
}

func conflictFromShipment(holder *models.Shipment, courier, trackingNumber string) *TrackingConflict {
	return &TrackingConflict{
		ShipmentID:     holder.ID,
		TrackingCode:   holder.TrackingCode,
		CustomerName:   holder.CustomerName,
		Status:         holder.Status,
		Courier:        courier,
		TrackingNumber: trackingNumber,
	}
}

// matchesCarrierNumberFormat 判断字符串是否撞上任一承运商单号格式
func matchesCarrierNumberFormat(value string) bool {
	for _, known := range carrierNumberPatterns {
		if known.Pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func normalizeCourier(courier string) string {
	return strings.ToLower(strings.TrimSpace(courier))
}

func normalizeTrackingNumber(trackingNumber string) string {
	return strings.ToUpper(strings.TrimSpace(trackingNumber))
}

// enqueueCarrierSync 异步触发承运商同步，失败只记警告
func enqueueCarrierSync(client *queue.Client, shipmentID uint) {
	if client == nil || !client.Enabled() {
		return
	}
	if err := client.EnqueueCarrierSync(queue.CarrierSyncPayload{ShipmentID: shipmentID}); err != nil {
		logger.Warnw("shipment_enqueue_carrier_sync_failed",
			"shipment_id", shipmentID,
			"error", err,
		)
	}
}
