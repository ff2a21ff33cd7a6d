package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/models"
)

func TestValidateTrackingNumberFormat(t *testing.T) {
	svc := &TrackingService{}

	cases := []struct {
		name    string
		courier string
		number  string
		wantErr bool
	}{
		{name: "ups_valid", courier: "ups", number: "1Z999AA10123456784", wantErr: false},
		{name: "ups_lowercase_input", courier: "UPS", number: "1z999aa10123456784", wantErr: false},
		{name: "ups_too_short", courier: "ups", number: "1Z999AA101", wantErr: true},
		{name: "fedex_12_digits", courier: "fedex", number: "123456789012", wantErr: false},
		{name: "fedex_13_digits", courier: "fedex", number: "1234567890123", wantErr: true},
		{name: "usps_20_digits", courier: "usps", number: "12345678901234567890", wantErr: false},
		{name: "dhl_10_digits", courier: "dhl", number: "1234567890", wantErr: false},
		{name: "dhl_too_long", courier: "dhl", number: "123456789012", wantErr: true},
		{name: "unknown_carrier_generic", courier: "royalmail", number: "AB-123456", wantErr: false},
		{name: "unknown_carrier_too_short", courier: "royalmail", number: "AB1", wantErr: true},
		{name: "empty_number", courier: "ups", number: "  ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ValidateTrackingNumberFormat(tc.courier, tc.number)
			if tc.wantErr {
				if !errors.Is(err, ErrTrackingFormatInvalid) {
					t.Fatalf("expected ErrTrackingFormatInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAssignTrackingConflictNamesHolder(t *testing.T) {
	shipmentSvc, trackingSvc, _ := setupShipmentServiceTest(t)

	holder := mustCreateShipment(t, shipmentSvc, "First Holder")
	if _, err := trackingSvc.AssignTracking(AssignTrackingInput{
		ShipmentID:     holder.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		AdminID:        1,
	}); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}

	other := mustCreateShipment(t, shipmentSvc, "Second Customer")
	_, err := trackingSvc.AssignTracking(AssignTrackingInput{
		ShipmentID:     other.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		AdminID:        1,
	})
	var conflictErr *TrackingConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected TrackingConflictError, got %v", err)
	}
	if !errors.Is(err, ErrTrackingConflict) {
		t.Fatalf("conflict error should match ErrTrackingConflict sentinel")
	}
	if conflictErr.Conflict.ShipmentID != holder.ID {
		t.Fatalf("conflict should name holder %d, got %d", holder.ID, conflictErr.Conflict.ShipmentID)
	}
	if conflictErr.Conflict.CustomerName != "First Holder" {
		t.Fatalf("conflict should surface holder customer name, got %q", conflictErr.Conflict.CustomerName)
	}

	suggestions := trackingSvc.SuggestConflictResolution(conflictErr.Conflict)
	if len(suggestions) != 3 {
		t.Fatalf("expected 3 resolution suggestions, got %d", len(suggestions))
	}
}

func TestAssignTrackingReassignSameShipmentNoConflict(t *testing.T) {
	shipmentSvc, trackingSvc, _ := setupShipmentServiceTest(t)
	shipment := mustCreateShipment(t, shipmentSvc, "Repeat Customer")

	for i := 0; i < 2; i++ {
		if _, err := trackingSvc.AssignTracking(AssignTrackingInput{
			ShipmentID:     shipment.ID,
			Courier:        "dhl",
			TrackingNumber: "1234567890",
			AdminID:        1,
		}); err != nil {
			t.Fatalf("assign attempt %d failed: %v", i+1, err)
		}
	}
}

func TestResolveTrackingConflictOverride(t *testing.T) {
	shipmentSvc, trackingSvc, _ := setupShipmentServiceTest(t)

	holder := mustCreateShipment(t, shipmentSvc, "First Holder")
	if _, err := trackingSvc.AssignTracking(AssignTrackingInput{
		ShipmentID:     holder.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		AdminID:        1,
	}); err != nil {
		t.Fatalf("seed assign failed: %v", err)
	}
	target := mustCreateShipment(t, shipmentSvc, "Second Customer")

	result, err := trackingSvc.ResolveTrackingConflict(ResolveConflictInput{
		ShipmentID:     target.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		Action:         constants.ConflictActionOverride,
		Reason:         "data entry mixup",
		AdminID:        2,
	})
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if !result.Applied {
		t.Fatalf("override should be applied")
	}
	if result.Shipment == nil || result.Shipment.ID != target.ID {
		t.Fatalf("override should land on target shipment")
	}
	if result.PreviousHolder == nil || result.PreviousHolder.ID != holder.ID {
		t.Fatalf("override should report the previous holder")
	}

	reloadedHolder, err := shipmentSvc.GetShipment(holder.ID)
	if err != nil {
		t.Fatalf("reload holder failed: %v", err)
	}
	if reloadedHolder.TrackingNumber != "" || reloadedHolder.TrackingAssignmentStatus != constants.TrackingAssignmentUnassigned {
		t.Fatalf("holder should be released, got %+v", reloadedHolder)
	}

	reloadedTarget, err := shipmentSvc.GetShipment(target.ID)
	if err != nil {
		t.Fatalf("reload target failed: %v", err)
	}
	if reloadedTarget.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("target should hold the tracking number, got %q", reloadedTarget.TrackingNumber)
	}
}

func TestResolveTrackingConflictSkipWritesNothing(t *testing.T) {
	shipmentSvc, trackingSvc, db := setupShipmentServiceTest(t)
	target := mustCreateShipment(t, shipmentSvc, "Second Customer")

	var before int64
	db.Model(&models.ShipmentEvent{}).Count(&before)

	result, err := trackingSvc.ResolveTrackingConflict(ResolveConflictInput{
		ShipmentID:     target.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		Action:         constants.ConflictActionSkip,
		AdminID:        2,
	})
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if result.Applied {
		t.Fatalf("skip should not be applied")
	}

	var after int64
	db.Model(&models.ShipmentEvent{}).Count(&after)
	if after != before {
		t.Fatalf("skip must not write ledger entries, before=%d after=%d", before, after)
	}
}

func TestResolveTrackingConflictUnknownAction(t *testing.T) {
	_, trackingSvc, _ := setupShipmentServiceTest(t)

	if _, err := trackingSvc.ResolveTrackingConflict(ResolveConflictInput{
		ShipmentID:     1,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		Action:         "merge",
	}); !errors.Is(err, ErrConflictActionInvalid) {
		t.Fatalf("expected ErrConflictActionInvalid, got %v", err)
	}
}

func TestValidateBulkTrackingAssignments(t *testing.T) {
	shipmentSvc, trackingSvc, _ := setupShipmentServiceTest(t)

	holder := mustCreateShipment(t, shipmentSvc, "First Holder")
	if _, err := trackingSvc.AssignTracking(AssignTrackingInput{
		ShipmentID:     holder.ID,
		Courier:        "ups",
		TrackingNumber: "1Z999AA10123456784",
		AdminID:        1,
	}); err != nil {
		t.Fatalf("seed assign failed: %v", err)
	}
	a := mustCreateShipment(t, shipmentSvc, "A")
	b := mustCreateShipment(t, shipmentSvc, "B")
	c := mustCreateShipment(t, shipmentSvc, "C")

	result, err := trackingSvc.ValidateBulkTrackingAssignments([]BulkAssignmentItem{
		{ShipmentID: a.ID, Courier: "ups", TrackingNumber: "bad"},                   // 格式错误
		{ShipmentID: b.ID, Courier: "ups", TrackingNumber: "1Z999AA10123456784"},    // 与存量冲突
		{ShipmentID: c.ID, Courier: "dhl", TrackingNumber: "1234567890"},            // 批内重复
		{ShipmentID: holder.ID, Courier: "dhl", TrackingNumber: "1234567890"},       // 批内重复
	})
	if err != nil {
		t.Fatalf("bulk validation failed: %v", err)
	}
	if result.Valid {
		t.Fatalf("validation should fail")
	}

	categories := map[string]int{}
	for _, item := range result.Errors {
		categories[item.Category]++
	}
	if categories[constants.BulkErrorFormat] != 1 {
		t.Fatalf("expected 1 format error, got %d", categories[constants.BulkErrorFormat])
	}
	if categories[constants.BulkErrorConflict] != 1 {
		t.Fatalf("expected 1 conflict error, got %d", categories[constants.BulkErrorConflict])
	}
	// 重复的每一条都要标记
	if categories[constants.BulkErrorDuplicateInBatch] != 2 {
		t.Fatalf("expected 2 duplicate_in_batch errors, got %d", categories[constants.BulkErrorDuplicateInBatch])
	}
}

func TestApplyBulkTrackingAssignmentsFailClosed(t *testing.T) {
	shipmentSvc, trackingSvc, db := setupShipmentServiceTest(t)
	a := mustCreateShipment(t, shipmentSvc, "A")
	b := mustCreateShipment(t, shipmentSvc, "B")

	_, err := trackingSvc.ApplyBulkTrackingAssignments([]BulkAssignmentItem{
		{ShipmentID: a.ID, Courier: "dhl", TrackingNumber: "1234567890"},
		{ShipmentID: b.ID, Courier: "ups", TrackingNumber: "oops"},
	}, 1)
	var validationErr *BulkValidationFailedError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected BulkValidationFailedError, got %v", err)
	}
	if !errors.Is(err, ErrBulkAssignmentInvalid) {
		t.Fatalf("bulk failure should match ErrBulkAssignmentInvalid sentinel")
	}

	// 任一错误则整批拒绝，合法条目也不得落库
	var count int64
	db.Model(&models.Shipment{}).Where("tracking_assignment_status = ?", constants.TrackingAssignmentAssigned).Count(&count)
	if count != 0 {
		t.Fatalf("no assignment may be applied on a failed batch, got %d", count)
	}
}

func TestApplyBulkTrackingAssignmentsAllValid(t *testing.T) {
	shipmentSvc, trackingSvc, _ := setupShipmentServiceTest(t)
	a := mustCreateShipment(t, shipmentSvc, "A")
	b := mustCreateShipment(t, shipmentSvc, "B")

	result, err := trackingSvc.ApplyBulkTrackingAssignments([]BulkAssignmentItem{
		{ShipmentID: a.ID, Courier: "dhl", TrackingNumber: "1234567890"},
		{ShipmentID: b.ID, Courier: "fedex", TrackingNumber: "123456789012"},
	}, 1)
	if err != nil {
		t.Fatalf("bulk apply failed: %v", err)
	}
	if result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 successes, got %+v", result)
	}

	for _, id := range []uint{a.ID, b.ID} {
		shipment, err := shipmentSvc.GetShipment(id)
		if err != nil {
			t.Fatalf("reload shipment %d failed: %v", id, err)
		}
		if shipment.TrackingAssignmentStatus != constants.TrackingAssignmentAssigned {
			t.Fatalf("shipment %d should be assigned", id)
		}
	}
}

func TestMatchesCarrierNumberFormat(t *testing.T) {
	if !matchesCarrierNumberFormat("1Z999AA10123456784") {
		t.Fatalf("ups-shaped value should match")
	}
	if matchesCarrierNumberFormat("TRK-A1B2C3D4E5") {
		t.Fatalf("internal tracking code shape should not match carrier formats")
	}
}

func TestGenerateTrackingCodeShape(t *testing.T) {
	code := generateTrackingCode()
	if !strings.HasPrefix(code, constants.TrackingCodePrefix) {
		t.Fatalf("code %q should carry prefix %s", code, constants.TrackingCodePrefix)
	}
	if len(code) != len(constants.TrackingCodePrefix)+constants.TrackingCodeLength {
		t.Fatalf("unexpected code length: %q", code)
	}
}
