package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/services/gateway"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *services.PaymentService) {
	t.Helper()

	dsn := fmt.Sprintf("file:paytestdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&model.User{},
		&model.Payment{},
		&model.ReferenceSequence{},
		&model.Request{},
		&model.Training{},
		&model.TrainingRegistration{},
		&model.Plan{},
		&model.Subscription{},
		&model.CatalogItem{},
		&model.Purchase{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	svc := services.NewPaymentService(db, gateway.NewClient(gateway.Config{}), nil, nil)
	handler := NewPaymentHandler(db, svc)

	app := fiber.New()
	app.Post("/pay/:payableType/:payableId", handler.Initiate)
	app.Get("/pay/return", handler.Return)

	return app, db, svc
}

func createPayableRequest(t *testing.T, db *gorm.DB) *model.Request {
	t.Helper()

	req := &model.Request{
		Ref:           "DEM-2025-000001",
		ServiceCode:   "acte-naissance",
		Status:        model.RequestStatusNew,
		CustomerEmail: "client@example.sn",
		Data:          datatypes.JSONMap{"amount": float64(50000)},
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func initiateTestPayment(t *testing.T, db *gorm.DB, svc *services.PaymentService, req *model.Request) *model.Payment {
	t.Helper()

	result, err := svc.Initiate(context.Background(), services.PayableTypeRequest, req.ID, services.InitiateInput{
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	payment, err := svc.FindByReference(result.Reference)
	if err != nil {
		t.Fatalf("FindByReference: %v", err)
	}
	return payment
}

func TestInitiateAcceptsGatewayFieldNames(t *testing.T) {
	app, db, _ := newTestApp(t)
	req := createPayableRequest(t, db)

	body := `{"channel":"card","customerEmail":"awa@example.sn","customerFirstName":"Awa","customerLastName":"Diop","customerPhoneNumber":"+221770000000"}`
	httpReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/pay/request/%d", req.ID), strings.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payment model.Payment
	if err := db.Where("payable_type = ? AND payable_id = ?", services.PayableTypeRequest, req.ID).First(&payment).Error; err != nil {
		t.Fatalf("payment not recorded: %v", err)
	}
	if payment.CustomerEmail != "awa@example.sn" {
		t.Errorf("customer email = %q, want awa@example.sn", payment.CustomerEmail)
	}
	if payment.CustomerFirstName != "Awa" || payment.CustomerLastName != "Diop" {
		t.Errorf("customer name = %q %q", payment.CustomerFirstName, payment.CustomerLastName)
	}
	if payment.CustomerPhone != "+221770000000" {
		t.Errorf("customer phone = %q", payment.CustomerPhone)
	}
}

func TestReturnAcceptsLowercaseResponseCode(t *testing.T) {
	app, db, svc := newTestApp(t)
	req := createPayableRequest(t, db)
	payment := initiateTestPayment(t, db, svc, req)

	// Some provider channels post back "responsecode", not "responseCode"
	url := fmt.Sprintf("/pay/return?reference=%s&responsecode=00&message=ok", payment.Reference)
	httpReq, _ := http.NewRequest(http.MethodGet, url, nil)

	resp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	reloaded, _ := svc.FindByReference(payment.Reference)
	if reloaded.Status != model.PaymentStatusSucceeded {
		t.Errorf("payment status = %q, want succeeded", reloaded.Status)
	}

	var after model.Request
	db.First(&after, req.ID)
	if after.PaymentStatus != model.RequestPaymentConfirmed {
		t.Errorf("request payment status = %q, want %q", after.PaymentStatus, model.RequestPaymentConfirmed)
	}
}

func TestReturnAcceptsReferenceNumberAlias(t *testing.T) {
	app, db, svc := newTestApp(t)
	req := createPayableRequest(t, db)
	payment := initiateTestPayment(t, db, svc, req)

	url := fmt.Sprintf("/pay/return?referenceNumber=%s&responseCode=00", payment.Reference)
	httpReq, _ := http.NewRequest(http.MethodGet, url, nil)

	resp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	reloaded, _ := svc.FindByReference(payment.Reference)
	if reloaded.Status != model.PaymentStatusSucceeded {
		t.Errorf("payment status = %q, want succeeded", reloaded.Status)
	}
}

func TestReturnAcceptsHashcodeAlias(t *testing.T) {
	app, db, svc := newTestApp(t)
	req := createPayableRequest(t, db)
	payment := initiateTestPayment(t, db, svc, req)

	// Sandbox gateway accepts any signature; the point is that "hashcode"
	// reaches the verification path instead of being dropped
	url := fmt.Sprintf("/pay/return?reference=%s&responsecode=00&hashcode=abc123", payment.Reference)
	httpReq, _ := http.NewRequest(http.MethodGet, url, nil)

	resp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	reloaded, _ := svc.FindByReference(payment.Reference)
	if reloaded.Status != model.PaymentStatusSucceeded {
		t.Errorf("payment status = %q, want succeeded", reloaded.Status)
	}
}

func TestReturnUnknownReferenceDegrades(t *testing.T) {
	app, _, _ := newTestApp(t)

	httpReq, _ := http.NewRequest(http.MethodGet, "/pay/return?referenceNumber=PAY-NOPE&responsecode=00", nil)
	resp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 for unknown reference", resp.StatusCode)
	}
}
