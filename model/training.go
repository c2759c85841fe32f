package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Registration line statuses
const (
	RegistrationStatusPaid = "paid"
)

// Training is a training session offered on the marketplace with a fixed price.
type Training struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Code        string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"` // FORM003
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"` // XOF
	StartsAt    *time.Time     `json:"starts_at"`
	Capacity    int            `gorm:"default:0" json:"capacity"`
	Active      bool           `gorm:"default:true" json:"active"`

	Registrations []TrainingRegistration `gorm:"foreignKey:TrainingID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Training
func (Training) TableName() string {
	return "trainings"
}

// TrainingRegistration is the derived record created by training fulfillment.
// It is keyed by (training, user), not by payment, so replayed success
// deliveries find the same line instead of creating duplicates.
type TrainingRegistration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TrainingID uint `gorm:"not null;uniqueIndex:idx_registrations_training_user" json:"training_id"`
	UserID     uint `gorm:"not null;uniqueIndex:idx_registrations_training_user" json:"user_id"`

	Status    string     `gorm:"type:varchar(30)" json:"status"`
	PaidAt    *time.Time `json:"paid_at"`
	Amount    int64      `gorm:"default:0" json:"amount"`
	Currency  string     `gorm:"type:varchar(10)" json:"currency"`
	PaymentID *uint      `gorm:"index" json:"payment_id,omitempty"` // back-reference to the confirming payment

	Meta datatypes.JSONMap `gorm:"type:jsonb" json:"meta,omitempty"`

	Training Training `gorm:"foreignKey:TrainingID" json:"training,omitempty"`
	User     User     `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for TrainingRegistration
func (TrainingRegistration) TableName() string {
	return "training_registrations"
}
