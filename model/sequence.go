package model

// ReferenceSequence is a named atomic counter backing reference generation.
// Each scope (e.g. "request_2025", "purchase_20250828", "code_FORM") owns one
// row; increments go through a single upsert so concurrent creations cannot
// read the same value.
type ReferenceSequence struct {
	Name  string `gorm:"primaryKey;type:varchar(50)" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

// TableName specifies the table name for ReferenceSequence
func (ReferenceSequence) TableName() string {
	return "reference_sequences"
}
