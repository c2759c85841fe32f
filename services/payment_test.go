package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services/gateway"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// newTestPaymentService wires a payment service against the sandbox gateway
// (no base URL configured), with receipts and caching disabled.
func newTestPaymentService(db *gorm.DB) *PaymentService {
	return NewPaymentService(db, gateway.NewClient(gateway.Config{}), nil, nil)
}

func createTestRequest(t *testing.T, db *gorm.DB, amount interface{}) *model.Request {
	t.Helper()

	req := &model.Request{
		Ref:           "DEM-2025-000001",
		ServiceCode:   "acte-naissance",
		Status:        model.RequestStatusNew,
		CustomerEmail: "client@example.sn",
	}
	if amount != nil {
		req.Data = datatypes.JSONMap{"amount": amount}
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func TestInitiateRecordsPendingLedgerEntry(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, err := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{
		Channel:           "mobile_money",
		CustomerEmail:     "client@example.sn",
		CustomerFirstName: "Awa",
		CustomerLastName:  "Diop",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if result.Reference == "" || !strings.HasPrefix(result.Reference, "PAY-") {
		t.Errorf("reference = %q, want PAY- prefix", result.Reference)
	}
	if result.Action == "" {
		t.Error("expected a gateway action URL")
	}
	if result.Fields["sessionId"] == "" {
		t.Error("expected a session id field")
	}

	var payment model.Payment
	if err := db.Where("reference = ?", result.Reference).First(&payment).Error; err != nil {
		t.Fatalf("payment not recorded: %v", err)
	}
	if payment.Status != model.PaymentStatusPending {
		t.Errorf("status = %q, want pending", payment.Status)
	}
	if payment.Amount != 50000 {
		t.Errorf("amount = %d, want 50000", payment.Amount)
	}
	if payment.ExpiresAt == nil {
		t.Error("ExpiresAt not set")
	}

	// The pending hook mirrored onto the request
	var after model.Request
	db.First(&after, req.ID)
	if after.PaymentStatus != model.RequestPaymentPending {
		t.Errorf("request payment status = %q, want %q", after.PaymentStatus, model.RequestPaymentPending)
	}
}

func TestInitiateUnresolvableAmountWritesNothing(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, nil)

	_, err := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{
		CustomerEmail: "client@example.sn",
	})
	if !errors.Is(err, ErrAmountUnresolved) {
		t.Fatalf("err = %v, want ErrAmountUnresolved", err)
	}

	var count int64
	db.Model(&model.Payment{}).Count(&count)
	if count != 0 {
		t.Errorf("payment count = %d, want 0", count)
	}
}

func TestInitiateAlreadyPaidGuard(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, err := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	payment, _ := svc.FindByReference(result.Reference)
	if _, err := svc.MarkSucceeded(context.Background(), payment.ID, "00", "ok"); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}

	// Repay not requested: a second initiation is refused
	_, err = svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("err = %v, want ErrAlreadyPaid", err)
	}

	// Repay requested: allowed
	_, err = svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn", Repay: true})
	if err != nil {
		t.Errorf("repay Initiate: %v", err)
	}
}

func TestRequestPaymentEndToEnd(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, err := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{
		Channel:           "card",
		CustomerEmail:     "client@example.sn",
		CustomerFirstName: "Awa",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Gateway confirms with a success code on the return URL
	payment, err := svc.HandleReturn(context.Background(), ReturnParams{
		Reference:    result.Reference,
		ResponseCode: "00",
		Message:      "Transaction approuvée",
	})
	if err != nil {
		t.Fatalf("HandleReturn: %v", err)
	}

	if payment.Status != model.PaymentStatusSucceeded {
		t.Errorf("status = %q, want succeeded", payment.Status)
	}
	if payment.PaidAt == nil {
		t.Error("PaidAt not set")
	}
	if payment.NotificationCount != 1 {
		t.Errorf("notification count = %d, want 1", payment.NotificationCount)
	}

	var after model.Request
	db.First(&after, req.ID)
	if after.PaymentStatus != model.RequestPaymentConfirmed {
		t.Errorf("request payment status = %q, want %q", after.PaymentStatus, model.RequestPaymentConfirmed)
	}
	if after.PaidAmount != 50000 {
		t.Errorf("paid amount = %d, want 50000", after.PaidAmount)
	}
}

func TestHandleReturnCancellation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(20000))

	result, _ := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})

	payment, err := svc.HandleReturn(context.Background(), ReturnParams{
		Reference:    result.Reference,
		ResponseCode: "17",
		Message:      "Annulé par le client",
	})
	if err != nil {
		t.Fatalf("HandleReturn: %v", err)
	}
	if payment.Status != model.PaymentStatusCancelled {
		t.Errorf("status = %q, want cancelled", payment.Status)
	}
	if payment.CancelledAt == nil {
		t.Error("CancelledAt not set")
	}

	var after model.Request
	db.First(&after, req.ID)
	if after.PaymentStatus != model.RequestPaymentFailed {
		t.Errorf("request payment status = %q, want %q", after.PaymentStatus, model.RequestPaymentFailed)
	}
}

func TestHandleReturnUnknownReference(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)

	_, err := svc.HandleReturn(context.Background(), ReturnParams{Reference: "PAY-NOPE"})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("err = %v, want ErrPaymentNotFound", err)
	}
}

func TestHandleReturnFindsBySessionID(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(20000))

	result, _ := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})

	payment, err := svc.HandleReturn(context.Background(), ReturnParams{
		SessionID:    result.Fields["sessionId"],
		ResponseCode: "000",
	})
	if err != nil {
		t.Fatalf("HandleReturn by session: %v", err)
	}
	if payment.Reference != result.Reference {
		t.Errorf("resolved reference = %q, want %q", payment.Reference, result.Reference)
	}
	if payment.Status != model.PaymentStatusSucceeded {
		t.Errorf("status = %q, want succeeded", payment.Status)
	}
}

func TestMarkSucceededIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, _ := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})
	payment, _ := svc.FindByReference(result.Reference)

	first, err := svc.MarkSucceeded(context.Background(), payment.ID, "00", "ok")
	if err != nil {
		t.Fatalf("first MarkSucceeded: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	second, err := svc.MarkSucceeded(context.Background(), payment.ID, "00", "ok")
	if err != nil {
		t.Fatalf("replayed MarkSucceeded: %v", err)
	}

	if !second.PaidAt.Equal(*first.PaidAt) {
		t.Errorf("PaidAt moved on replay: %v -> %v", first.PaidAt, second.PaidAt)
	}
}

func TestTerminalStatusRejectsFurtherTransitions(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, _ := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})
	payment, _ := svc.FindByReference(result.Reference)
	if _, err := svc.MarkSucceeded(context.Background(), payment.ID, "00", "ok"); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}

	_, err := svc.ApplyStatus(context.Background(), payment.ID, model.PaymentStatusFailed, "99", "late failure")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestExpireStale(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)
	req := createTestRequest(t, db, float64(50000))

	result, _ := svc.Initiate(context.Background(), PayableTypeRequest, req.ID, InitiateInput{CustomerEmail: "client@example.sn"})
	payment, _ := svc.FindByReference(result.Reference)

	// Backdate the expiry window
	past := time.Now().Add(-time.Hour)
	if err := db.Model(payment).Update("expires_at", past).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	expired, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	reloaded, _ := svc.FindByReference(result.Reference)
	if reloaded.Status != model.PaymentStatusExpired {
		t.Errorf("status = %q, want expired", reloaded.Status)
	}

	// The sweep is idempotent: a second pass finds nothing
	expired, _ = svc.ExpireStale(context.Background())
	if expired != 0 {
		t.Errorf("second sweep expired = %d, want 0", expired)
	}
}

func TestUnfulfilledPayments(t *testing.T) {
	db := newTestDB(t)
	svc := newTestPaymentService(db)

	training := model.Training{Code: "FORM001", Title: "Droit OHADA", Price: 80000, Active: true}
	db.Create(&training)

	// No user resolvable: the succeeded hook leaves a warning
	result, err := svc.Initiate(context.Background(), PayableTypeTraining, training.ID, InitiateInput{})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	payment, _ := svc.FindByReference(result.Reference)
	if _, err := svc.MarkSucceeded(context.Background(), payment.ID, "00", "ok"); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}

	unfulfilled, err := svc.UnfulfilledPayments(context.Background())
	if err != nil {
		t.Fatalf("UnfulfilledPayments: %v", err)
	}
	if len(unfulfilled) != 1 {
		t.Fatalf("unfulfilled count = %d, want 1", len(unfulfilled))
	}
	if unfulfilled[0].Reference != result.Reference {
		t.Errorf("reference = %q, want %q", unfulfilled[0].Reference, result.Reference)
	}
}

func TestOutcomeFromCode(t *testing.T) {
	cases := []struct {
		code string
		want gateway.Outcome
	}{
		{"00", gateway.OutcomeSucceeded},
		{"000", gateway.OutcomeSucceeded},
		{"17", gateway.OutcomeCancelled},
		{"54", gateway.OutcomeExpired},
		{"05", gateway.OutcomeFailed},
		{"", gateway.OutcomeFailed},
	}

	for _, tc := range cases {
		if got := gateway.OutcomeFromCode(tc.code); got != tc.want {
			t.Errorf("OutcomeFromCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
