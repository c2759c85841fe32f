package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered user (back-office admin or customer)
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	FirstName    string         `gorm:"type:varchar(100)" json:"first_name"`
	LastName     string         `gorm:"type:varchar(100)" json:"last_name"`
	Phone        string         `gorm:"type:varchar(30)" json:"phone"`
	Role         string         `gorm:"type:varchar(20);default:'client'" json:"role"` // client, admin
	TokenVersion int            `gorm:"default:0" json:"-"`                            // Increment to invalidate all user tokens

	// Relationships
	Subscriptions []Subscription         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Registrations []TrainingRegistration `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Purchases     []Purchase             `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
}

// FullName returns the display name used on receipts
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}
