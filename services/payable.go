package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payable type tags used in the payments table polymorphic link
const (
	PayableTypeRequest      = "request"
	PayableTypeTraining     = "training"
	PayableTypeSubscription = "subscription"
	PayableTypePurchase     = "purchase"
)

var (
	// ErrAmountUnresolved is returned when no usable amount can be
	// determined for a payable resource. It must surface before any
	// payment row is written.
	ErrAmountUnresolved = errors.New("unable to resolve payable amount")

	// ErrUnknownPayableType is returned for type tags with no registered resolver
	ErrUnknownPayableType = errors.New("unknown payable type")
)

// Payable is implemented by every resource that can owe money. The three
// lifecycle hooks run inside the transaction that records the payment status
// change and must tolerate redundant invocation: delivery from the gateway is
// at-least-once, never exactly-once.
type Payable interface {
	// AmountXOF returns the amount owed in minor-unit-free XOF
	AmountXOF() (int64, error)
	// Label returns the human-readable description used on payment pages and receipts
	Label() string

	OnPaymentPending(tx *gorm.DB, payment *model.Payment) error
	OnPaymentSucceeded(tx *gorm.DB, payment *model.Payment) error
	OnPaymentFailed(tx *gorm.DB, payment *model.Payment) error
}

// PayableResolver loads the concrete resource behind a type tag + id.
type PayableResolver func(tx *gorm.DB, id uint) (Payable, error)

// PayableRegistry maps type tags to resolvers. Dispatch is a pure
// lookup-and-invoke shim; all business logic lives in the variants.
type PayableRegistry struct {
	resolvers map[string]PayableResolver
}

// NewPayableRegistry creates an empty registry
func NewPayableRegistry() *PayableRegistry {
	return &PayableRegistry{resolvers: make(map[string]PayableResolver)}
}

// Register adds a resolver for a type tag
func (r *PayableRegistry) Register(typeTag string, resolver PayableResolver) {
	r.resolvers[typeTag] = resolver
}

// Resolve loads the payable behind the polymorphic reference
func (r *PayableRegistry) Resolve(tx *gorm.DB, typeTag string, id uint) (Payable, error) {
	resolver, ok := r.resolvers[typeTag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayableType, typeTag)
	}
	return resolver(tx, id)
}

// Dispatch resolves the payment's payable and invokes the hook matching the
// payment's current status. Statuses without a hook (initiated, processing)
// are a no-op.
func (r *PayableRegistry) Dispatch(tx *gorm.DB, payment *model.Payment) error {
	payable, err := r.Resolve(tx, payment.PayableType, payment.PayableID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case model.PaymentStatusPending:
		return payable.OnPaymentPending(tx, payment)
	case model.PaymentStatusSucceeded:
		return payable.OnPaymentSucceeded(tx, payment)
	case model.PaymentStatusFailed, model.PaymentStatusCancelled, model.PaymentStatusExpired:
		return payable.OnPaymentFailed(tx, payment)
	}
	return nil
}

// DefaultPayableRegistry wires the four resource variants.
func DefaultPayableRegistry() *PayableRegistry {
	r := NewPayableRegistry()

	r.Register(PayableTypeRequest, func(tx *gorm.DB, id uint) (Payable, error) {
		var req model.Request
		if err := tx.First(&req, id).Error; err != nil {
			return nil, fmt.Errorf("failed to load request %d: %w", id, err)
		}
		return &RequestPayable{Request: &req}, nil
	})

	r.Register(PayableTypeTraining, func(tx *gorm.DB, id uint) (Payable, error) {
		var training model.Training
		if err := tx.First(&training, id).Error; err != nil {
			return nil, fmt.Errorf("failed to load training %d: %w", id, err)
		}
		return &TrainingPayable{Training: &training}, nil
	})

	r.Register(PayableTypeSubscription, func(tx *gorm.DB, id uint) (Payable, error) {
		var sub model.Subscription
		if err := tx.Preload("Plan").First(&sub, id).Error; err != nil {
			return nil, fmt.Errorf("failed to load subscription %d: %w", id, err)
		}
		return &SubscriptionPayable{Subscription: &sub}, nil
	})

	r.Register(PayableTypePurchase, func(tx *gorm.DB, id uint) (Payable, error) {
		var purchase model.Purchase
		if err := tx.Preload("CatalogItem").First(&purchase, id).Error; err != nil {
			return nil, fmt.Errorf("failed to load purchase %d: %w", id, err)
		}
		return &PurchasePayable{Purchase: &purchase}, nil
	})

	return r
}

// amountKeys is the ordered fallback search for amounts buried in schema-less
// request data. The historical field names come from successive generations
// of the per-variant form configuration.
var amountKeys = []string{"amount", "price_cfa", "montant", "total_amount", "total"}

// resolveDataAmount scans a free-form data map for the first usable numeric
// amount, rounded to the nearest integer.
func resolveDataAmount(data datatypes.JSONMap) (int64, bool) {
	for _, key := range amountKeys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		if v, ok := coerceAmount(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func coerceAmount(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(math.Round(v)), true
	case float32:
		return int64(math.Round(float64(v))), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int64(math.Round(f)), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return int64(math.Round(f)), true
	}
	return 0, false
}
