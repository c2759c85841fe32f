package services

import (
	"errors"
	"testing"
	"time"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/datatypes"
)

func TestResolveDataAmountFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		data datatypes.JSONMap
		want int64
		ok   bool
	}{
		{
			name: "amount wins over later keys",
			data: datatypes.JSONMap{"amount": float64(50000), "price_cfa": float64(99999)},
			want: 50000,
			ok:   true,
		},
		{
			name: "price_cfa rounded to nearest integer",
			data: datatypes.JSONMap{"price_cfa": float64(75000.4)},
			want: 75000,
			ok:   true,
		},
		{
			name: "montant as string",
			data: datatypes.JSONMap{"montant": "12500"},
			want: 12500,
			ok:   true,
		},
		{
			name: "unparseable string skipped, later key used",
			data: datatypes.JSONMap{"amount": "gratuit", "total": float64(3000)},
			want: 3000,
			ok:   true,
		},
		{
			name: "no usable key",
			data: datatypes.JSONMap{"nom": "Diallo"},
			ok:   false,
		},
		{
			name: "empty map",
			data: datatypes.JSONMap{},
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := resolveDataAmount(tc.data)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("amount = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRequestAmountResolution(t *testing.T) {
	req := &model.Request{Ref: "DEM-2025-000001"}
	payable := &RequestPayable{Request: req}

	// Empty data, zero paid amount: unresolvable
	if _, err := payable.AmountXOF(); !errors.Is(err, ErrAmountUnresolved) {
		t.Errorf("err = %v, want ErrAmountUnresolved", err)
	}

	// Positive paid amount is the fallback
	req.PaidAmount = 5000
	amount, err := payable.AmountXOF()
	if err != nil {
		t.Fatalf("AmountXOF: %v", err)
	}
	if amount != 5000 {
		t.Errorf("amount = %d, want 5000", amount)
	}

	// Data beats the paid amount
	req.Data = datatypes.JSONMap{"amount": float64(25000)}
	amount, _ = payable.AmountXOF()
	if amount != 25000 {
		t.Errorf("amount = %d, want 25000", amount)
	}
}

func TestTrainingFulfillmentIdempotent(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "awa@example.sn")

	training := model.Training{Code: "FORM001", Title: "Droit OHADA", Price: 80000, Active: true}
	if err := db.Create(&training).Error; err != nil {
		t.Fatalf("create training: %v", err)
	}

	payment := model.Payment{
		Reference:     "PAY-TEST01",
		PayableType:   PayableTypeTraining,
		PayableID:     training.ID,
		Amount:        80000,
		Currency:      "XOF",
		CustomerEmail: user.Email,
		Status:        model.PaymentStatusSucceeded,
		Meta:          datatypes.JSONMap{"user_id": float64(user.ID)},
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}

	registry := DefaultPayableRegistry()
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	var first model.TrainingRegistration
	if err := db.Where("training_id = ? AND user_id = ?", training.ID, user.ID).First(&first).Error; err != nil {
		t.Fatalf("registration not created: %v", err)
	}
	if first.Status != model.RegistrationStatusPaid {
		t.Errorf("status = %q, want paid", first.Status)
	}
	if first.PaidAt == nil {
		t.Fatal("PaidAt not set")
	}

	// Replayed delivery must find the same line, not create a second one
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	var count int64
	db.Model(&model.TrainingRegistration{}).
		Where("training_id = ? AND user_id = ?", training.ID, user.ID).
		Count(&count)
	if count != 1 {
		t.Errorf("registration count = %d, want 1", count)
	}

	var second model.TrainingRegistration
	db.Where("training_id = ? AND user_id = ?", training.ID, user.ID).First(&second)
	if !second.PaidAt.Equal(*first.PaidAt) {
		t.Errorf("PaidAt moved on replay: %v -> %v", first.PaidAt, second.PaidAt)
	}
}

func TestTrainingFulfillmentWithoutUserWarns(t *testing.T) {
	db := newTestDB(t)

	training := model.Training{Code: "FORM002", Title: "Contentieux fiscal", Price: 60000, Active: true}
	if err := db.Create(&training).Error; err != nil {
		t.Fatalf("create training: %v", err)
	}

	payment := model.Payment{
		Reference:   "PAY-TEST02",
		PayableType: PayableTypeTraining,
		PayableID:   training.ID,
		Amount:      60000,
		Status:      model.PaymentStatusSucceeded,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}

	// No user, no email: the hook records a warning instead of failing
	registry := DefaultPayableRegistry()
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var reloaded model.Payment
	db.First(&reloaded, payment.ID)
	if reloaded.MetaString("fulfillment_warning") == "" {
		t.Error("expected fulfillment_warning in payment meta")
	}

	var count int64
	db.Model(&model.TrainingRegistration{}).Count(&count)
	if count != 0 {
		t.Errorf("registration count = %d, want 0", count)
	}
}

func TestSubscriptionRenewalIdempotentPerReference(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "moussa@example.sn")

	plan := model.Plan{Code: "SRV001", Name: "Veille juridique", MonthlyPrice: 15000, YearlyPrice: 150000, Active: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	sub := model.Subscription{UserID: user.ID, PlanID: plan.ID, Period: model.PeriodMonthly, Status: model.SubscriptionStatusPending}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	payment := model.Payment{
		Reference:   "PAY-SUB01",
		PayableType: PayableTypeSubscription,
		PayableID:   sub.ID,
		Amount:      15000,
		Status:      model.PaymentStatusSucceeded,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}

	registry := DefaultPayableRegistry()
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	var after model.Subscription
	db.First(&after, sub.ID)
	if after.Status != model.SubscriptionStatusActive {
		t.Errorf("status = %q, want active", after.Status)
	}
	if after.CurrentCycleEnd == nil {
		t.Fatal("cycle end not set")
	}
	firstEnd := *after.CurrentCycleEnd

	wantEnd := after.CurrentCycleStart.AddDate(0, 1, 0)
	if !firstEnd.Equal(wantEnd) {
		t.Errorf("cycle end = %v, want start+1 month = %v", firstEnd, wantEnd)
	}

	// Same reference replayed: the cycle must not move
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("replay dispatch: %v", err)
	}
	db.First(&after, sub.ID)
	if !after.CurrentCycleEnd.Equal(firstEnd) {
		t.Errorf("cycle end moved on replay: %v -> %v", firstEnd, after.CurrentCycleEnd)
	}

	// A new reference extends from the current cycle end, not from now
	renewal := model.Payment{
		Reference:   "PAY-SUB02",
		PayableType: PayableTypeSubscription,
		PayableID:   sub.ID,
		Amount:      15000,
		Status:      model.PaymentStatusSucceeded,
	}
	if err := db.Create(&renewal).Error; err != nil {
		t.Fatalf("create renewal payment: %v", err)
	}
	if err := registry.Dispatch(db, &renewal); err != nil {
		t.Fatalf("renewal dispatch: %v", err)
	}

	db.First(&after, sub.ID)
	wantRenewed := firstEnd.AddDate(0, 1, 0)
	if !after.CurrentCycleEnd.Equal(wantRenewed) {
		t.Errorf("renewed cycle end = %v, want %v", after.CurrentCycleEnd, wantRenewed)
	}
	if after.LastPaymentRef != "PAY-SUB02" {
		t.Errorf("LastPaymentRef = %q, want PAY-SUB02", after.LastPaymentRef)
	}
}

func TestSubscriptionYearlyCycle(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "fatou@example.sn")

	plan := model.Plan{Code: "SRV002", Name: "Accès premium", YearlyPrice: 150000, Active: true}
	db.Create(&plan)
	sub := model.Subscription{UserID: user.ID, PlanID: plan.ID, Period: model.PeriodYearly, Status: model.SubscriptionStatusPending}
	db.Create(&sub)

	payable := &SubscriptionPayable{Subscription: &sub}
	sub.Plan = &plan

	amount, err := payable.AmountXOF()
	if err != nil {
		t.Fatalf("AmountXOF: %v", err)
	}
	if amount != 150000 {
		t.Errorf("amount = %d, want yearly price 150000", amount)
	}

	payment := model.Payment{Reference: "PAY-SUB03", Status: model.PaymentStatusSucceeded}
	if err := payable.OnPaymentSucceeded(db, &payment); err != nil {
		t.Fatalf("OnPaymentSucceeded: %v", err)
	}

	wantEnd := sub.CurrentCycleStart.AddDate(1, 0, 0)
	if !sub.CurrentCycleEnd.Equal(wantEnd) {
		t.Errorf("cycle end = %v, want start+1 year = %v", sub.CurrentCycleEnd, wantEnd)
	}
}

func TestPurchaseDeliveryIdempotent(t *testing.T) {
	db := newTestDB(t)

	item := model.CatalogItem{Code: "PROD001", Name: "Modèle de statuts SARL", Price: 10000, PayloadKey: "catalog/prod001.pdf", Active: true}
	db.Create(&item)
	purchase := model.Purchase{Ref: "PUR-20250828-00001", CatalogItemID: item.ID, CustomerEmail: "client@example.sn", UnitPrice: 10000, Currency: "XOF", Status: model.PurchaseStatusPending}
	db.Create(&purchase)

	payment := model.Payment{
		Reference:   "PAY-PUR01",
		PayableType: PayableTypePurchase,
		PayableID:   purchase.ID,
		Amount:      10000,
		Status:      model.PaymentStatusSucceeded,
	}
	db.Create(&payment)

	registry := DefaultPayableRegistry()
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var after model.Purchase
	db.First(&after, purchase.ID)
	if after.Status != model.PurchaseStatusPaid {
		t.Errorf("status = %q, want paid", after.Status)
	}
	if after.DeliveredAt == nil {
		t.Fatal("DeliveredAt not set")
	}
	if after.DeliveredPayload["payload_key"] != "catalog/prod001.pdf" {
		t.Errorf("payload_key = %v", after.DeliveredPayload["payload_key"])
	}
	firstDelivered := *after.DeliveredAt

	time.Sleep(5 * time.Millisecond)
	if err := registry.Dispatch(db, &payment); err != nil {
		t.Fatalf("replay dispatch: %v", err)
	}
	db.First(&after, purchase.ID)
	if !after.DeliveredAt.Equal(firstDelivered) {
		t.Errorf("DeliveredAt moved on replay: %v -> %v", firstDelivered, after.DeliveredAt)
	}
}

func TestDispatchUnknownPayableType(t *testing.T) {
	db := newTestDB(t)
	registry := DefaultPayableRegistry()

	payment := model.Payment{PayableType: "invoice", PayableID: 1, Status: model.PaymentStatusSucceeded}
	err := registry.Dispatch(db, &payment)
	if !errors.Is(err, ErrUnknownPayableType) {
		t.Errorf("err = %v, want ErrUnknownPayableType", err)
	}
}
