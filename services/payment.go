package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services/gateway"
	"github.com/afrilegal/juris-api/services/storage"
	"github.com/afrilegal/juris-api/utils/cache"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrPaymentNotFound is returned for unknown references; the return
	// handler degrades it to a generic "unknown" status
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrAlreadyPaid is returned when initiating payment for a payable
	// that already has a succeeded payment and repay was not requested
	ErrAlreadyPaid = errors.New("payable already has a succeeded payment")

	// ErrInvalidTransition is returned for status edges outside the state machine
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

const (
	// PendingPaymentTTL is how long an unpaid session stays actionable
	// before the expiry sweep transitions it to expired
	PendingPaymentTTL = 30 * time.Minute

	// sessionCacheTTL bounds the session-to-reference lookup entries
	sessionCacheTTL = 2 * time.Hour
)

// PaymentService owns the payment ledger: initiation, the status state
// machine and fulfillment dispatch. Status update, hook invocation and
// payable mutation run in one transaction so a payment can never be recorded
// succeeded while its fulfillment silently fails to persist.
type PaymentService struct {
	db       *gorm.DB
	registry *PayableRegistry
	gateway  *gateway.Client
	storage  *storage.SpacesClient // optional; receipts are skipped when nil
	cache    *cache.RedisCache     // optional
}

// NewPaymentService creates a new payment service. storageClient and
// redisCache may be nil.
func NewPaymentService(db *gorm.DB, gw *gateway.Client, storageClient *storage.SpacesClient, redisCache *cache.RedisCache) *PaymentService {
	return &PaymentService{
		db:       db,
		registry: DefaultPayableRegistry(),
		gateway:  gw,
		storage:  storageClient,
		cache:    redisCache,
	}
}

// Registry exposes the payable registry for read endpoints that need labels
func (s *PaymentService) Registry() *PayableRegistry {
	return s.registry
}

// InitiateInput carries the checkout form for a payment initiation
type InitiateInput struct {
	Channel           string
	CustomerEmail     string
	CustomerFirstName string
	CustomerLastName  string
	CustomerPhone     string
	Repay             bool
	UserID            *uint
}

// InitiateResult is what the caller needs to auto-submit to the gateway
type InitiateResult struct {
	Action    string            `json:"action"`
	Fields    map[string]string `json:"fields"`
	Reference string            `json:"reference"`
}

// Initiate resolves the payable's amount, opens a gateway session and records
// the pending ledger entry. Amount resolution failures surface before any
// payment row is written.
func (s *PaymentService) Initiate(ctx context.Context, payableType string, payableID uint, in InitiateInput) (*InitiateResult, error) {
	payable, err := s.registry.Resolve(s.db, payableType, payableID)
	if err != nil {
		return nil, err
	}

	amount, err := payable.AmountXOF()
	if err != nil {
		return nil, err
	}

	if !in.Repay {
		var succeeded int64
		err := s.db.Model(&model.Payment{}).
			Where("payable_type = ? AND payable_id = ? AND status = ?",
				payableType, payableID, model.PaymentStatusSucceeded).
			Count(&succeeded).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check existing payments: %w", err)
		}
		if succeeded > 0 {
			return nil, ErrAlreadyPaid
		}
	}

	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		Amount:        amount,
		Currency:      "XOF",
		Label:         payable.Label(),
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerFirstName + " " + in.CustomerLastName,
		CustomerPhone: in.CustomerPhone,
		Channel:       in.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway session: %w", err)
	}

	now := time.Now()
	expires := now.Add(PendingPaymentTTL)

	payment := model.Payment{
		Reference:         session.Reference,
		SessionID:         session.SessionID,
		PayableType:       payableType,
		PayableID:         payableID,
		Amount:            amount,
		Currency:          "XOF",
		Channel:           in.Channel,
		CustomerFirstName: in.CustomerFirstName,
		CustomerLastName:  in.CustomerLastName,
		CustomerEmail:     in.CustomerEmail,
		CustomerPhone:     in.CustomerPhone,
		Status:            model.PaymentStatusPending,
		InitializedAt:     &now,
		ExpiresAt:         &expires,
		Meta:              datatypes.JSONMap{"label": payable.Label()},
	}
	if in.UserID != nil {
		payment.Meta["user_id"] = *in.UserID
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return s.registry.Dispatch(tx, &payment)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, "paysession:"+session.SessionID, session.Reference, sessionCacheTTL); err != nil {
			log.Println("Warning: failed to cache payment session:", err)
		}
	}

	return &InitiateResult{
		Action:    session.ActionURL,
		Fields:    map[string]string{"sessionId": session.SessionID},
		Reference: session.Reference,
	}, nil
}

// ReturnParams are the provider-supplied query parameters on the return URL
type ReturnParams struct {
	Reference    string
	SessionID    string
	ResponseCode string
	Message      string
	Hash         string
}

// HandleReturn processes a gateway return or webhook delivery. Delivery
// tracking is updated on every call, including replays.
func (s *PaymentService) HandleReturn(ctx context.Context, params ReturnParams) (*model.Payment, error) {
	payment, err := s.findForReturn(ctx, params)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"notification_count": gorm.Expr("notification_count + 1"),
		"last_notified_at":   now,
	}
	if err := s.db.Model(payment).UpdateColumns(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}

	if params.Hash != "" && !s.gateway.VerifySignature(params.Reference, params.SessionID, params.ResponseCode, params.Hash) {
		payment.SetMeta("signature_mismatch", true)
		if err := s.db.Model(payment).Update("meta", payment.Meta).Error; err != nil {
			return nil, fmt.Errorf("failed to flag signature mismatch: %w", err)
		}
		return payment, nil
	}

	var target model.PaymentStatus
	switch gateway.OutcomeFromCode(params.ResponseCode) {
	case gateway.OutcomeSucceeded:
		target = model.PaymentStatusSucceeded
	case gateway.OutcomeCancelled:
		target = model.PaymentStatusCancelled
	case gateway.OutcomeExpired:
		target = model.PaymentStatusExpired
	default:
		target = model.PaymentStatusFailed
	}

	return s.ApplyStatus(ctx, payment.ID, target, params.ResponseCode, params.Message)
}

// findForReturn resolves the payment behind return parameters, trying the
// reference, the session cache and the session column in that order.
func (s *PaymentService) findForReturn(ctx context.Context, params ReturnParams) (*model.Payment, error) {
	reference := params.Reference
	if reference == "" && params.SessionID != "" && s.cache != nil {
		if cached, err := s.cache.Get(ctx, "paysession:"+params.SessionID); err == nil {
			reference = cached
		}
	}

	var payment model.Payment
	query := s.db
	switch {
	case reference != "" && params.SessionID != "":
		query = query.Where("reference = ? OR session_id = ?", reference, params.SessionID)
	case reference != "":
		query = query.Where("reference = ?", reference)
	case params.SessionID != "":
		query = query.Where("session_id = ?", params.SessionID)
	default:
		return nil, ErrPaymentNotFound
	}

	if err := query.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// ApplyStatus runs the state machine. The status write, the fulfillment hook
// and the payable mutation commit or roll back together. Re-delivering a
// terminal success is a no-op transition that still re-runs the idempotent
// succeeded hook.
func (s *PaymentService) ApplyStatus(ctx context.Context, paymentID uint, target model.PaymentStatus, code, message string) (*model.Payment, error) {
	var payment model.Payment

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("failed to load payment: %w", err)
		}

		if payment.Status == target {
			if target == model.PaymentStatusSucceeded {
				// webhook redelivery; hooks are idempotent
				return s.registry.Dispatch(tx, &payment)
			}
			return nil
		}

		if !payment.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, payment.Status, target)
		}

		now := time.Now()
		payment.Status = target
		if code != "" {
			payment.ResponseCode = code
		}
		if message != "" {
			payment.ResponseMessage = message
		}
		switch target {
		case model.PaymentStatusSucceeded:
			payment.PaidAt = &now
		case model.PaymentStatusCancelled:
			payment.CancelledAt = &now
		}

		if err := tx.Save(&payment).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		return s.registry.Dispatch(tx, &payment)
	})
	if err != nil {
		return nil, err
	}

	if payment.Status == model.PaymentStatusSucceeded {
		s.uploadReceipt(ctx, &payment)
	}

	return &payment, nil
}

// MarkSucceeded is the single authorized terminal-success transition.
// Re-invoking it on an already-succeeded payment is a no-op, not an error.
func (s *PaymentService) MarkSucceeded(ctx context.Context, paymentID uint, responseCode, responseMessage string) (*model.Payment, error) {
	return s.ApplyStatus(ctx, paymentID, model.PaymentStatusSucceeded, responseCode, responseMessage)
}

// FindByReference loads a payment by its gateway reference
func (s *PaymentService) FindByReference(reference string) (*model.Payment, error) {
	var payment model.Payment
	if err := s.db.Where("reference = ?", reference).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// ExpireStale transitions payments past their expiry window to expired,
// through the same state machine and dispatcher path as gateway-driven
// transitions. Returns the number of payments expired.
func (s *PaymentService) ExpireStale(ctx context.Context) (int, error) {
	var stale []model.Payment
	err := s.db.
		Where("status IN ?", []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusInitiated,
			model.PaymentStatusProcessing,
		}).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	expired := 0
	for _, payment := range stale {
		if _, err := s.ApplyStatus(ctx, payment.ID, model.PaymentStatusExpired, "", "expired by sweep"); err != nil {
			log.Println("Warning: failed to expire payment", payment.Reference, ":", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// UnfulfilledPayments lists succeeded payments whose fulfillment hook left a
// warning in the meta map. This is the operator surface for "paid but
// unfulfilled" records.
func (s *PaymentService) UnfulfilledPayments(ctx context.Context) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.
		Where("status = ?", model.PaymentStatusSucceeded).
		Where(datatypes.JSONQuery("meta").HasKey("fulfillment_warning")).
		Order("paid_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfulfilled payments: %w", err)
	}
	return payments, nil
}

// uploadReceipt stores a JSON receipt for a succeeded payment. Best effort:
// receipts are a convenience copy, the ledger row stays authoritative.
func (s *PaymentService) uploadReceipt(ctx context.Context, payment *model.Payment) {
	if s.storage == nil {
		return
	}

	receipt := map[string]interface{}{
		"reference": payment.Reference,
		"label":     payment.MetaString("label"),
		"amount":    payment.Amount,
		"currency":  payment.Currency,
		"channel":   payment.Channel,
		"customer":  payment.CustomerFirstName + " " + payment.CustomerLastName,
		"email":     payment.CustomerEmail,
		"paid_at":   payment.PaidAt,
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		log.Println("Warning: failed to encode receipt:", err)
		return
	}

	key := "receipts/" + payment.Reference + ".json"
	if err := s.storage.UploadBytes(ctx, key, data, "application/json"); err != nil {
		log.Println("Warning: failed to upload receipt:", err)
		return
	}

	payment.SetMeta("receipt_key", key)
	if err := s.db.Model(payment).Update("meta", payment.Meta).Error; err != nil {
		log.Println("Warning: failed to record receipt key:", err)
	}
}
