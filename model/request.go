package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment outcome markers mirrored onto a document request. These are the
// French-language strings the back office displays; they are distinct from
// the request's own workflow status.
const (
	RequestPaymentPending   = "paiement en attente"
	RequestPaymentConfirmed = "paiement confirmé"
	RequestPaymentFailed    = "paiement échoué"
)

// Request workflow statuses (independent of payment state)
const (
	RequestStatusNew        = "nouvelle"
	RequestStatusProcessing = "en traitement"
	RequestStatusDone       = "traitée"
)

// Request is a document-generation request. The requester's submitted form
// lives in the schema-less Data map, which is where the amount owed is
// usually buried (per-variant form configuration decides the field names).
type Request struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Ref         string `gorm:"type:varchar(30);uniqueIndex;not null" json:"ref"` // DEM-{year}-{6-digit sequence}
	ServiceCode string `gorm:"type:varchar(30);index" json:"service_code"`
	Status      string `gorm:"type:varchar(50);default:'nouvelle'" json:"status"`

	// Payment outcome mirror
	PaymentStatus string `gorm:"type:varchar(50)" json:"payment_status"`
	PaidStatus    string `gorm:"type:varchar(50)" json:"paid_status"`
	PaidAmount    int64  `gorm:"default:0" json:"paid_amount"`
	Currency      string `gorm:"type:varchar(10)" json:"currency"`

	// Requester
	UserID        *uint  `gorm:"index" json:"user_id,omitempty"`
	CustomerEmail string `gorm:"type:varchar(255);index" json:"customer_email"`

	Data datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName specifies the table name for Request
func (Request) TableName() string {
	return "requests"
}
