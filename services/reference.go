package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ReferenceService produces unique, human-readable references for business
// resources. Counters live in the reference_sequences table and are bumped
// with a single upsert, so two concurrent creations can never read the same
// value the way a count-then-format scheme would.
type ReferenceService struct {
	db *gorm.DB
}

// NewReferenceService creates a new reference service
func NewReferenceService(db *gorm.DB) *ReferenceService {
	return &ReferenceService{db: db}
}

// next atomically increments the named counter and returns the new value.
// It runs on the caller's transaction so a rolled-back insert does not burn
// the sequence hole silently into a referenced row.
func (s *ReferenceService) next(tx *gorm.DB, name string) (int64, error) {
	if tx == nil {
		tx = s.db
	}

	var value int64
	err := tx.Raw(
		`INSERT INTO reference_sequences (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = reference_sequences.value + 1
		 RETURNING value`,
		name,
	).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence %s: %w", name, err)
	}

	return value, nil
}

// NextRequestRef returns a document request reference scoped to the current
// calendar year, e.g. DEM-2025-000042.
func (s *ReferenceService) NextRequestRef(tx *gorm.DB) (string, error) {
	year := time.Now().Year()
	n, err := s.next(tx, fmt.Sprintf("request_%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DEM-%d-%06d", year, n), nil
}

// NextPurchaseRef returns a boutique purchase reference scoped to the current
// day, e.g. PUR-20250828-00007.
func (s *ReferenceService) NextPurchaseRef(tx *gorm.DB) (string, error) {
	day := time.Now().Format("20060102")
	n, err := s.next(tx, "purchase_"+day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PUR-%s-%05d", day, n), nil
}

// NextBusinessCode returns a short globally-scoped code for a business entity,
// e.g. FORM003, PROD014, SRV002.
func (s *ReferenceService) NextBusinessCode(tx *gorm.DB, prefix string) (string, error) {
	n, err := s.next(tx, "code_"+prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, n), nil
}

// IsUniqueViolation reports whether err is a unique-constraint conflict.
// Reference collisions are retryable, not fatal.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// WithUniqueRetry runs fn up to three times while it fails with a
// unique-constraint conflict. fn receives the attempt number starting at 0.
func WithUniqueRetry(fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn(attempt)
		if err == nil || !IsUniqueViolation(err) {
			return err
		}
	}
	return err
}
