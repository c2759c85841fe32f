package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Purchase statuses
const (
	PurchaseStatusPending = "pending"
	PurchaseStatusPaid    = "paid"
	PurchaseStatusFailed  = "failed"
)

// CatalogItem is a boutique item (document template, legal guide, ...)
// delivered as a stored payload once its purchase is paid.
type CatalogItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Code        string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"` // PROD014
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"` // XOF
	PayloadKey  string         `gorm:"type:varchar(255)" json:"-"` // object storage key of the deliverable
	Active      bool           `gorm:"default:true" json:"active"`

	Purchases []Purchase `gorm:"foreignKey:CatalogItemID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for CatalogItem
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// Purchase is a boutique order line. Its reference scheme is
// PUR-{yyyymmdd}-{5-digit sequence}, separate from document request refs.
type Purchase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Ref           string `gorm:"type:varchar(30);uniqueIndex;not null" json:"ref"`
	CatalogItemID uint   `gorm:"not null;index" json:"catalog_item_id"`
	UserID        *uint  `gorm:"index" json:"user_id,omitempty"`
	CustomerEmail string `gorm:"type:varchar(255);index" json:"customer_email"`

	UnitPrice int64  `gorm:"not null" json:"unit_price"` // XOF, captured at checkout time
	Currency  string `gorm:"type:varchar(10);default:'XOF'" json:"currency"`
	Status    string `gorm:"type:varchar(30);default:'pending';index" json:"status"`

	DeliveredAt      *time.Time        `json:"delivered_at"`
	DeliveredPayload datatypes.JSONMap `gorm:"type:jsonb" json:"delivered_payload,omitempty"`

	CatalogItem CatalogItem `gorm:"foreignKey:CatalogItemID" json:"catalog_item,omitempty"`
	User        *User       `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for Purchase
func (Purchase) TableName() string {
	return "purchases"
}
