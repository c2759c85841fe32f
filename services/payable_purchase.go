package services

import (
	"fmt"
	"time"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PurchasePayable adapts a boutique purchase to the Payable capability, so
// catalog checkout runs through the same dispatcher as every other resource
// instead of being fulfilled inline by its endpoint.
type PurchasePayable struct {
	Purchase *model.Purchase
}

// AmountXOF returns the unit price captured at checkout, falling back to the
// catalog item's current price.
func (p *PurchasePayable) AmountXOF() (int64, error) {
	if p.Purchase.UnitPrice > 0 {
		return p.Purchase.UnitPrice, nil
	}
	if p.Purchase.CatalogItem.Price > 0 {
		return p.Purchase.CatalogItem.Price, nil
	}
	return 0, fmt.Errorf("%w: purchase %s", ErrAmountUnresolved, p.Purchase.Ref)
}

// Label returns the receipt description for the purchase
func (p *PurchasePayable) Label() string {
	return fmt.Sprintf("Achat: %s (%s)", p.Purchase.CatalogItem.Name, p.Purchase.Ref)
}

// OnPaymentPending keeps the purchase pending
func (p *PurchasePayable) OnPaymentPending(tx *gorm.DB, payment *model.Payment) error {
	if p.Purchase.Status == model.PurchaseStatusPaid {
		return nil
	}
	p.Purchase.Status = model.PurchaseStatusPending
	return tx.Save(p.Purchase).Error
}

// OnPaymentSucceeded marks the purchase paid and records the delivered
// payload pointer. An already-delivered purchase is left untouched.
func (p *PurchasePayable) OnPaymentSucceeded(tx *gorm.DB, payment *model.Payment) error {
	purchase := p.Purchase

	if purchase.Status == model.PurchaseStatusPaid && purchase.DeliveredAt != nil {
		return nil
	}

	now := time.Now()
	purchase.Status = model.PurchaseStatusPaid
	purchase.DeliveredAt = &now
	purchase.DeliveredPayload = datatypes.JSONMap{
		"item_code":         purchase.CatalogItem.Code,
		"payload_key":       purchase.CatalogItem.PayloadKey,
		"payment_reference": payment.Reference,
	}

	return tx.Save(purchase).Error
}

// OnPaymentFailed marks a never-paid purchase as failed
func (p *PurchasePayable) OnPaymentFailed(tx *gorm.DB, payment *model.Payment) error {
	if p.Purchase.Status == model.PurchaseStatusPaid {
		return nil
	}
	p.Purchase.Status = model.PurchaseStatusFailed
	return tx.Save(p.Purchase).Error
}
