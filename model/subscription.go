package model

import (
	"time"

	"gorm.io/gorm"
)

// Subscription billing periods
const (
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// Subscription statuses
const (
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusExpired  = "expired"
)

// Plan is a subscription plan with monthly and yearly pricing in XOF.
type Plan struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Code         string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"` // SRV002
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Description  string         `gorm:"type:text" json:"description"`
	MonthlyPrice int64          `gorm:"default:0" json:"monthly_price"`
	YearlyPrice  int64          `gorm:"default:0" json:"yearly_price"`
	Active       bool           `gorm:"default:true" json:"active"`

	Subscriptions []Subscription `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Plan
func (Plan) TableName() string {
	return "plans"
}

// Subscription links a user to a plan with a billing cycle window. The cycle
// is recomputed on each confirmed payment; LastPaymentRef records the last
// payment applied so replayed deliveries do not shift the paid period.
type Subscription struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint `gorm:"not null;index" json:"user_id"`
	PlanID uint `gorm:"not null;index" json:"plan_id"`

	Period string `gorm:"type:varchar(10);default:'monthly'" json:"period"` // monthly, yearly
	Status string `gorm:"type:varchar(30);default:'pending'" json:"status"`

	CurrentCycleStart *time.Time `json:"current_cycle_start"`
	CurrentCycleEnd   *time.Time `json:"current_cycle_end"`
	LastPaymentRef    string     `gorm:"type:varchar(100)" json:"last_payment_ref"`

	User User  `gorm:"foreignKey:UserID" json:"-"`
	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// TableName specifies the table name for Subscription
func (Subscription) TableName() string {
	return "subscriptions"
}
