package model

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentStatus is the lifecycle state of a payment ledger entry
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusInitiated  PaymentStatus = "initiated"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusExpired    PaymentStatus = "expired"
)

// IsTerminal reports whether the status is absorbing: succeeded, failed,
// cancelled and expired have no outgoing transitions.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	}
	return false
}

// paymentTransitions lists the allowed forward edges of the ledger state machine.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusInitiated, PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusInitiated:  {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
}

// CanTransitionTo reports whether moving from the current status to next is a
// valid edge of the state machine.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment is the ledger entry for money state. It references the payable
// resource polymorphically through PayableType + PayableID and is never
// deleted; it is the financial audit record.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Gateway identity
	Reference string `gorm:"type:varchar(100);uniqueIndex" json:"reference"`
	SessionID string `gorm:"type:varchar(100);index" json:"session_id"`

	// Polymorphic payable link; never both empty once initialized
	PayableType string `gorm:"type:varchar(30);not null;index:idx_payments_payable" json:"payable_type"`
	PayableID   uint   `gorm:"not null;index:idx_payments_payable" json:"payable_id"`

	// Money, stored as minor-unit-free XOF integers
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(10);default:'XOF'" json:"currency"`
	Channel  string `gorm:"type:varchar(50)" json:"channel"`

	// Customer snapshot captured at initiation; immutable afterwards so the
	// audit trail survives later edits on the payable resource
	CustomerFirstName string `gorm:"type:varchar(100)" json:"customer_first_name"`
	CustomerLastName  string `gorm:"type:varchar(100)" json:"customer_last_name"`
	CustomerEmail     string `gorm:"type:varchar(255);index" json:"customer_email"`
	CustomerPhone     string `gorm:"type:varchar(30)" json:"customer_phone"`

	Status          PaymentStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ResponseCode    string        `gorm:"type:varchar(20)" json:"response_code"`
	ResponseMessage string        `gorm:"type:text" json:"response_message"`

	InitializedAt *time.Time `json:"initialized_at"`
	PaidAt        *time.Time `json:"paid_at"`
	CancelledAt   *time.Time `json:"cancelled_at"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at"`

	// Webhook/retry delivery tracking
	NotificationCount int        `gorm:"default:0" json:"notification_count"`
	LastNotifiedAt    *time.Time `json:"last_notified_at"`

	// Open key-value map for provider response details and fulfillment
	// side-channel information (warnings, derived record ids)
	Meta datatypes.JSONMap `gorm:"type:jsonb" json:"meta,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// MetaString reads a string value from the payment meta map.
func (p *Payment) MetaString(key string) string {
	if p.Meta == nil {
		return ""
	}
	if v, ok := p.Meta[key].(string); ok {
		return v
	}
	return ""
}

// SetMeta writes a key into the meta map, allocating it on first use.
func (p *Payment) SetMeta(key string, value interface{}) {
	if p.Meta == nil {
		p.Meta = datatypes.JSONMap{}
	}
	p.Meta[key] = value
}

// PaymentResponse is the API view of a payment
type PaymentResponse struct {
	ID          uint          `json:"id"`
	Reference   string        `json:"reference"`
	PayableType string        `json:"payable_type"`
	PayableID   uint          `json:"payable_id"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Channel     string        `json:"channel"`
	Status      PaymentStatus `json:"status"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ToResponse converts a Payment to its API view
func (p *Payment) ToResponse() PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		Reference:   p.Reference,
		PayableType: p.PayableType,
		PayableID:   p.PayableID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Channel:     p.Channel,
		Status:      p.Status,
		PaidAt:      p.PaidAt,
		CreatedAt:   p.CreatedAt,
	}
}
