package services

import (
	"fmt"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/gorm"
)

// RequestPayable adapts a document request to the Payable capability. All
// three hooks are pure field assignments, so re-applying them produces the
// same state.
type RequestPayable struct {
	Request *model.Request
}

// AmountXOF scans the request's free-form data in the fixed fallback order,
// then falls back to a previously recorded positive paid amount.
func (p *RequestPayable) AmountXOF() (int64, error) {
	if amount, ok := resolveDataAmount(p.Request.Data); ok {
		return amount, nil
	}
	if p.Request.PaidAmount > 0 {
		return p.Request.PaidAmount, nil
	}
	return 0, fmt.Errorf("%w: request %s", ErrAmountUnresolved, p.Request.Ref)
}

// Label returns the receipt description for the request
func (p *RequestPayable) Label() string {
	if p.Request.ServiceCode != "" {
		return fmt.Sprintf("Demande: %s (%s)", p.Request.ServiceCode, p.Request.Ref)
	}
	return fmt.Sprintf("Demande de document (%s)", p.Request.Ref)
}

// OnPaymentPending marks the request as awaiting payment and copies the
// currency from the payment if the request has none yet.
func (p *RequestPayable) OnPaymentPending(tx *gorm.DB, payment *model.Payment) error {
	p.Request.PaymentStatus = model.RequestPaymentPending
	p.Request.PaidStatus = model.RequestPaymentPending
	if p.Request.Currency == "" {
		p.Request.Currency = payment.Currency
	}
	return tx.Save(p.Request).Error
}

// OnPaymentSucceeded confirms the payment on the request and copies the paid
// amount and currency from the ledger entry.
func (p *RequestPayable) OnPaymentSucceeded(tx *gorm.DB, payment *model.Payment) error {
	p.Request.PaymentStatus = model.RequestPaymentConfirmed
	p.Request.PaidStatus = model.RequestPaymentConfirmed
	p.Request.PaidAmount = payment.Amount
	p.Request.Currency = payment.Currency
	return tx.Save(p.Request).Error
}

// OnPaymentFailed marks the request's payment as failed
func (p *RequestPayable) OnPaymentFailed(tx *gorm.DB, payment *model.Payment) error {
	p.Request.PaymentStatus = model.RequestPaymentFailed
	p.Request.PaidStatus = model.RequestPaymentFailed
	return tx.Save(p.Request).Error
}
